package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"maplemail/models"
)

// SequenceStore reads admin-authored email sequences. Dispatch never
// writes to them.
type SequenceStore struct {
	db *gorm.DB
}

func NewSequenceStore(db *gorm.DB) *SequenceStore {
	return &SequenceStore{db: db}
}

// ListActive returns every active sequence with its emails preloaded in
// position order, so a slice index is a stable email index.
func (s *SequenceStore) ListActive(ctx context.Context) ([]models.EmailSequence, error) {
	var sequences []models.EmailSequence
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SequenceStatusActive).
		Preload("Emails", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&sequences).Error
	if err != nil {
		return nil, fmt.Errorf("list active sequences: %w", err)
	}
	return sequences, nil
}

// Get returns one sequence with ordered emails, or (nil, nil) when it
// no longer exists.
func (s *SequenceStore) Get(ctx context.Context, id uint) (*models.EmailSequence, error) {
	var sequence models.EmailSequence
	err := s.db.WithContext(ctx).
		Preload("Emails", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&sequence, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence %d: %w", id, err)
	}
	return &sequence, nil
}

// List returns all sequences, active first, for the admin surface.
func (s *SequenceStore) List(ctx context.Context) ([]models.EmailSequence, error) {
	var sequences []models.EmailSequence
	err := s.db.WithContext(ctx).
		Preload("Emails", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("status ASC, created_at DESC").
		Find(&sequences).Error
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return sequences, nil
}
