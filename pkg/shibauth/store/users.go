package store

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/shibgate/pkg/shibauth/models"
)

func (s *GORMStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound, "Groups")
}

func (s *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound, "Groups")
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return listAll[models.User](s.db, ctx, "Groups")
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	user.CreatedAt = time.Now()
	return create(s.db, ctx, user, user.ID, func(u *models.User, id string) { u.ID = id }, models.ErrDuplicateUser)
}

// GetOrCreateUser resolves create.Username to a persisted user, inserting
// create when no row exists. Creation relies on the username unique
// constraint: when two requests race on the same first login, one insert
// succeeds and the loser re-fetches the winner's row. The constraint race is
// absorbed here, never surfaced to the authentication path.
func (s *GORMStore) GetOrCreateUser(ctx context.Context, create *models.User) (*models.User, bool, error) {
	existing, err := s.GetUser(ctx, create.Username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return nil, false, err
	}

	if _, err := s.CreateUser(ctx, create); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			// Lost the race. The row exists now; fetch it.
			user, err := s.GetUser(ctx, create.Username)
			return user, false, err
		}
		return nil, false, err
	}
	return create, true, nil
}

// UpdateUserFields overwrites the given mapped fields on the stored user and
// refreshes the in-memory copy. Fields are addressed by their local attribute
// names ("email", "first_name", custom extras).
func (s *GORMStore) UpdateUserFields(ctx context.Context, user *models.User, fields map[string]string) error {
	for name, value := range fields {
		user.SetField(name, value)
	}
	return s.db.WithContext(ctx).
		Model(user).
		Select("Email", "FirstName", "LastName", "Extra").
		Updates(user).Error
}

func (s *GORMStore) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update("last_login", at)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
