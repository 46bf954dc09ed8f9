package models

import "gorm.io/gorm"

// User is owned by the consumer application; this service only reads
// it. Users without an email address are never recipients, and the
// account creation time drives day-offset delivery.
type User struct {
	gorm.Model
	Email *string `gorm:"index" json:"email,omitempty"`
	Name  string  `json:"name"`
}

// HasEmail reports whether the user is an eligible recipient.
func (u *User) HasEmail() bool {
	return u.Email != nil && *u.Email != ""
}
