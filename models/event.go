package models

import "gorm.io/gorm"

// Event is a domain event recorded by the consumer application, e.g. a
// vendor approval or a first purchase. Its creation is the sole trigger
// for event-based dispatch.
type Event struct {
	gorm.Model
	Type   string `gorm:"not null;index" json:"type"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
}
