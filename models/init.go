package models

import "gorm.io/gorm"

// Migrate creates or updates the dispatcher's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&EmailSequence{},
		&SequenceEmail{},
		&Event{},
		&EmailLog{},
	)
}
