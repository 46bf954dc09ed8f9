package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	LogStatusPending = "pending"
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
	LogStatusRetry   = "retry"

	TriggerTypeScheduled = "scheduled"
	TriggerTypeEvent     = "event"
)

// EmailLog records one send attempt for a (sequence, email index, user)
// tuple. Rows are created pending immediately before the attempt and
// updated in place to their outcome; they are never deleted.
type EmailLog struct {
	gorm.Model
	ExternalID string `gorm:"type:uuid;uniqueIndex" json:"external_id"`

	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	EmailIndex int  `gorm:"not null" json:"email_index"`
	UserID     uint `gorm:"index" json:"user_id"`

	Recipient string `gorm:"not null;index" json:"recipient"`
	Subject   string `json:"subject"`

	// SentAt is when the first attempt was made, not when the message
	// was delivered. The retry window is measured from it.
	SentAt time.Time `gorm:"index" json:"sent_at"`

	Status     string `gorm:"default:'pending';index" json:"status"` // pending, success, failed, retry
	Error      string `json:"error,omitempty"`
	RetryCount int    `gorm:"default:0" json:"retry_count"`

	TriggerType  string `json:"trigger_type"` // scheduled, event
	TriggerValue string `json:"trigger_value"`

	// DedupeKey is set only when the row reaches success. Its unique
	// index is what makes one success per tuple hold under races.
	DedupeKey *string `gorm:"uniqueIndex" json:"-"`
}

// DedupeKey builds the suppression key for a (sequence, email index,
// user) tuple.
func DedupeKey(sequenceID uint, emailIndex int, userID uint) string {
	return fmt.Sprintf("%d:%d:%d", sequenceID, emailIndex, userID)
}
