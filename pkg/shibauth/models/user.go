package models

import (
	"fmt"
	"time"
)

// User is a local account correlated 1:1 with an identity asserted by the
// fronting SSO proxy. The username is the durable correlation key: it is the
// cleaned value of the trusted header at first login and is never rewritten
// afterwards.
//
// Users never carry a usable password. Authentication is delegated to the
// identity provider, so PasswordHash holds a random placeholder fixed at
// creation time.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email        string     `gorm:"size:255" json:"email,omitempty"`
	FirstName    string     `gorm:"size:255" json:"first_name,omitempty"`
	LastName     string     `gorm:"size:255" json:"last_name,omitempty"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	// Extra holds mapped identity-provider attributes that have no dedicated
	// column (affiliation, account type, ...). Stored as a JSON blob.
	Extra map[string]string `gorm:"serializer:json" json:"extra,omitempty"`

	// Many-to-many relationship with groups
	Groups []Group `gorm:"many2many:user_groups;" json:"groups,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// GetDisplayName returns "First Last" when both are set, otherwise the username.
func (u *User) GetDisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

// HasGroup checks if the user belongs to the specified group.
// Requires Groups to be preloaded.
func (u *User) HasGroup(groupName string) bool {
	for _, g := range u.Groups {
		if g.Name == groupName {
			return true
		}
	}
	return false
}

// GetGroupNames returns a slice of group names the user belongs to.
func (u *User) GetGroupNames() []string {
	names := make([]string, len(u.Groups))
	for i, g := range u.Groups {
		names[i] = g.Name
	}
	return names
}

// Field returns the value of a mapped attribute field by its local name.
// Dedicated columns are checked first, then the Extra blob.
func (u *User) Field(name string) string {
	switch name {
	case "username":
		return u.Username
	case "email":
		return u.Email
	case "first_name":
		return u.FirstName
	case "last_name":
		return u.LastName
	}
	return u.Extra[name]
}

// SetField assigns a mapped attribute field by its local name. Unknown names
// land in the Extra blob. The username cannot be reassigned through here.
func (u *User) SetField(name, value string) {
	switch name {
	case "username":
		// correlation key, fixed at creation
	case "email":
		u.Email = value
	case "first_name":
		u.FirstName = value
	case "last_name":
		u.LastName = value
	default:
		if u.Extra == nil {
			u.Extra = make(map[string]string)
		}
		u.Extra[name] = value
	}
}

// Validate checks if the user has valid configuration.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}
