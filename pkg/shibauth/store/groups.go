package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/shibgate/pkg/shibauth/models"
)

func (s *GORMStore) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	return getByField[models.Group](s.db, ctx, "name", name, models.ErrGroupNotFound)
}

func (s *GORMStore) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return listAll[models.Group](s.db, ctx)
}

func (s *GORMStore) CreateGroup(ctx context.Context, group *models.Group) (string, error) {
	if err := group.Validate(); err != nil {
		return "", err
	}
	group.CreatedAt = time.Now()
	return create(s.db, ctx, group, group.ID, func(g *models.Group, id string) { g.ID = id }, models.ErrDuplicateGroup)
}

// GetOrCreateGroup resolves a group by name, inserting it when absent. Like
// GetOrCreateUser it absorbs the unique-constraint race under concurrent
// creation of the same group name.
func (s *GORMStore) GetOrCreateGroup(ctx context.Context, name string) (*models.Group, error) {
	group, err := s.GetGroup(ctx, name)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, models.ErrGroupNotFound) {
		return nil, err
	}

	created := &models.Group{Name: name}
	if _, err := s.CreateGroup(ctx, created); err != nil {
		if errors.Is(err, models.ErrDuplicateGroup) {
			return s.GetGroup(ctx, name)
		}
		return nil, err
	}
	return created, nil
}

func (s *GORMStore) AddUserToGroup(ctx context.Context, username, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		var group models.Group
		if err := tx.Where("name = ?", groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&user).Association("Groups").Append(&group)
	})
}

func (s *GORMStore) RemoveUserFromGroup(ctx context.Context, username, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		var group models.Group
		if err := tx.Where("name = ?", groupName).First(&group).Error; err != nil {
			// Group not found is not an error for remove operation
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		return tx.Model(&user).Association("Groups").Delete(&group)
	})
}

func (s *GORMStore) GetGroupMembers(ctx context.Context, groupName string) ([]*models.User, error) {
	if _, err := s.GetGroup(ctx, groupName); err != nil {
		return nil, err
	}

	var users []*models.User
	if err := s.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("groups.name = ?", groupName).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
