// Package store persists users, groups, and their memberships behind the
// Store interface. The production implementation is GORM-backed and supports
// SQLite and PostgreSQL through the same codebase.
package store

import (
	"context"
	"time"

	"github.com/campuskit/shibgate/pkg/shibauth/models"
)

// Store is the persistence surface the authentication core depends on.
// Implementations must make GetOrCreateUser safe under concurrent calls for
// the same username: exactly one row is created, every caller gets it back.
type Store interface {
	// Users
	GetUser(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (string, error)
	// GetOrCreateUser returns the existing user with create.Username, or
	// persists create and returns it. The bool reports whether a row was
	// created by this call.
	GetOrCreateUser(ctx context.Context, create *models.User) (*models.User, bool, error)
	// UpdateUserFields overwrites the named mapped fields on the stored user.
	UpdateUserFields(ctx context.Context, user *models.User, fields map[string]string) error
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Groups
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	CreateGroup(ctx context.Context, group *models.Group) (string, error)
	GetOrCreateGroup(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// Memberships
	AddUserToGroup(ctx context.Context, username, groupName string) error
	RemoveUserFromGroup(ctx context.Context, username, groupName string) error

	Close() error
}
