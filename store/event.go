package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"maplemail/models"
)

// EventStore persists incoming domain events before they are
// dispatched, so a crashed dispatch leaves an inspectable record.
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Create(ctx context.Context, event *models.Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}
