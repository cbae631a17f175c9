package models

import (
	"fmt"
	"time"
)

// Group is a named role container. Groups are created on demand the first
// time a group attribute references them and are never deleted by the
// authentication path, even when their last member leaves.
type Group struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Many-to-many relationship with users
	Users []User `gorm:"many2many:user_groups;" json:"users,omitempty"`
}

// TableName returns the table name for Group.
func (Group) TableName() string {
	return "groups"
}

// Validate checks if the group has valid configuration.
func (g *Group) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("group name is required")
	}
	return nil
}

// AllModels returns every model registered for schema migration.
func AllModels() []any {
	return []any{
		&User{},
		&Group{},
	}
}
