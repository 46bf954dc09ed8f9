package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"maplemail/models"
)

// LogStore owns the email_logs table, the single shared mutable
// resource of the three dispatch paths.
type LogStore struct {
	db *gorm.DB
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

// CreatePendingIfUnsent inserts a pending log row unless a success row
// already exists for the same (sequence, email index, user) tuple. The
// lookup and the insert run in one transaction so two racing dispatch
// paths cannot both pass the suppression check. Returns false when the
// send is suppressed.
func (s *LogStore) CreatePendingIfUnsent(ctx context.Context, entry *models.EmailLog) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.EmailLog{}).
			Where("sequence_id = ? AND email_index = ? AND user_id = ? AND status = ?",
				entry.SequenceID, entry.EmailIndex, entry.UserID, models.LogStatusSuccess).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		entry.Status = models.LogStatusPending
		entry.SentAt = time.Now()
		if entry.ExternalID == "" {
			entry.ExternalID = uuid.NewString()
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create pending log: %w", err)
	}
	return created, nil
}

// MarkSuccess records a delivered send and claims the tuple's dedupe
// key. If another run claimed the key first, the row still records its
// outcome but without the key, so the unique index keeps holding one
// effective success per tuple.
func (s *LogStore) MarkSuccess(ctx context.Context, entry *models.EmailLog) error {
	key := models.DedupeKey(entry.SequenceID, entry.EmailIndex, entry.UserID)
	err := s.db.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
		"status":     models.LogStatusSuccess,
		"error":      "",
		"dedupe_key": key,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.db.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
			"status": models.LogStatusSuccess,
			"error":  "duplicate send: tuple already succeeded in a concurrent run",
		}).Error
	}
	if err != nil {
		return fmt.Errorf("mark log %d success: %w", entry.ID, err)
	}
	return nil
}

// MarkFailed records a failed attempt with its error message. SentAt is
// left untouched so the retry window is measured from the first
// attempt.
func (s *LogStore) MarkFailed(ctx context.Context, entry *models.EmailLog, sendErr error) error {
	msg := ""
	if sendErr != nil {
		msg = sendErr.Error()
	}
	err := s.db.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
		"status": models.LogStatusFailed,
		"error":  msg,
	}).Error
	if err != nil {
		return fmt.Errorf("mark log %d failed: %w", entry.ID, err)
	}
	return nil
}

// MarkRetrying flips the row to retry and consumes one unit of retry
// budget before the attempt is made, so a crash mid-attempt cannot
// yield a free retry.
func (s *LogStore) MarkRetrying(ctx context.Context, entry *models.EmailLog) error {
	err := s.db.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
		"status":      models.LogStatusRetry,
		"retry_count": gorm.Expr("retry_count + ?", 1),
	}).Error
	if err != nil {
		return fmt.Errorf("mark log %d retrying: %w", entry.ID, err)
	}
	entry.RetryCount++
	return nil
}

// HasSuccess reports whether the tuple already has a success row.
func (s *LogStore) HasSuccess(ctx context.Context, sequenceID uint, emailIndex int, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("sequence_id = ? AND email_index = ? AND user_id = ? AND status = ?",
			sequenceID, emailIndex, userID, models.LogStatusSuccess).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check success log: %w", err)
	}
	return count > 0, nil
}

// FindFailedRetryable returns failed rows still inside the retry budget
// and the recency window, oldest first.
func (s *LogStore) FindFailedRetryable(ctx context.Context, now time.Time, maxAttempts int, window time.Duration) ([]models.EmailLog, error) {
	var entries []models.EmailLog
	err := s.db.WithContext(ctx).
		Where("status = ? AND retry_count < ? AND sent_at > ?",
			models.LogStatusFailed, maxAttempts, now.Add(-window)).
		Order("sent_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("find retryable logs: %w", err)
	}
	return entries, nil
}

// MarkBounced fails the recipient's most recent success row with a
// bounce reason. Returns false when no row matched.
func (s *LogStore) MarkBounced(ctx context.Context, recipient, reason string) (bool, error) {
	var entry models.EmailLog
	err := s.db.WithContext(ctx).
		Where("recipient = ? AND status = ?", recipient, models.LogStatusSuccess).
		Order("sent_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find log for bounce %s: %w", recipient, err)
	}

	err = s.db.WithContext(ctx).Model(&entry).Updates(map[string]interface{}{
		"status":     models.LogStatusFailed,
		"error":      "bounced: " + reason,
		"dedupe_key": nil,
	}).Error
	if err != nil {
		return false, fmt.Errorf("mark log %d bounced: %w", entry.ID, err)
	}
	return true, nil
}

// LogFilter narrows admin log listings.
type LogFilter struct {
	Status     string
	SequenceID uint
	Limit      int
}

// List returns log rows for the admin surface, newest first.
func (s *LogStore) List(ctx context.Context, filter LogFilter) ([]models.EmailLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Model(&models.EmailLog{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SequenceID != 0 {
		q = q.Where("sequence_id = ?", filter.SequenceID)
	}

	var entries []models.EmailLog
	if err := q.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return entries, nil
}

// ListAfter returns rows created after the given row ID, oldest first.
// The websocket tail polls with it.
func (s *LogStore) ListAfter(ctx context.Context, afterID uint, limit int) ([]models.EmailLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.EmailLog
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list logs after %d: %w", afterID, err)
	}
	return entries, nil
}

// LastID returns the newest log row ID, or 0 when the table is empty.
func (s *LogStore) LastID(ctx context.Context) (uint, error) {
	var entry models.EmailLog
	err := s.db.WithContext(ctx).Order("id DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last log id: %w", err)
	}
	return entry.ID, nil
}
