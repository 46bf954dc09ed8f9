package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"maplemail/models"
)

// UserStore gives read-only access to the consumer app's users.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// ListWithEmail returns every user that can actually receive mail.
func (s *UserStore) ListWithEmail(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("email IS NOT NULL AND email != ''").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Get returns the user or (nil, nil) when no such user exists.
func (s *UserStore) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}
