package models

import "gorm.io/gorm"

const (
	SequenceTypeUser   = "user"
	SequenceTypeVendor = "vendor"

	SequenceStatusActive   = "active"
	SequenceStatusInactive = "inactive"
)

// EmailSequence is an admin-authored email campaign. Only active
// sequences are considered for dispatch; the service never creates or
// edits them.
type EmailSequence struct {
	gorm.Model
	Name   string `gorm:"not null" json:"name"`
	Type   string `gorm:"default:'user'" json:"type"`              // user, vendor
	Status string `gorm:"default:'inactive';index" json:"status"` // active, inactive

	// Relations. The position of an email in this slice is its email
	// index, which is part of the deduplication key.
	Emails []SequenceEmail `gorm:"foreignKey:SequenceID" json:"emails,omitempty"`
}

// SequenceEmail is a single email within a sequence. It carries either
// a day-offset trigger or an event trigger, never both.
type SequenceEmail struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	Position   int  `gorm:"not null" json:"position"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"` // HTML

	SendAfterDays *int    `json:"send_after_days,omitempty"`
	TriggerEvent  *string `json:"trigger_event,omitempty"`
}

// TriggerKind classifies how a sequence email is delivered.
type TriggerKind string

const (
	TriggerKindScheduled TriggerKind = "scheduled"
	TriggerKindEvent     TriggerKind = "event"
	TriggerKindInvalid   TriggerKind = "invalid"
)

// Trigger is the resolved delivery trigger of a sequence email.
// Exactly one of AfterDays or Event is meaningful, selected by Kind.
type Trigger struct {
	Kind      TriggerKind
	AfterDays int
	Event     string
}

// Trigger classifies the email's delivery trigger. An email with both
// fields set, or neither, is invalid and is skipped by every dispatch
// path.
func (e *SequenceEmail) Trigger() Trigger {
	scheduled := e.SendAfterDays != nil && *e.SendAfterDays >= 0
	event := e.TriggerEvent != nil && *e.TriggerEvent != ""

	switch {
	case scheduled && !event:
		return Trigger{Kind: TriggerKindScheduled, AfterDays: *e.SendAfterDays}
	case event && !scheduled:
		return Trigger{Kind: TriggerKindEvent, Event: *e.TriggerEvent}
	default:
		return Trigger{Kind: TriggerKindInvalid}
	}
}
