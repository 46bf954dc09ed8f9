package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"maplemail/models"
)

// MaxRetryAttempts caps how many extra attempts a failed send gets.
const MaxRetryAttempts = 3

// retryWindow excludes failures old enough that the send may no longer
// be relevant.
const retryWindow = 24 * time.Hour

// SequenceSource reads admin-authored sequences.
type SequenceSource interface {
	ListActive(ctx context.Context) ([]models.EmailSequence, error)
	Get(ctx context.Context, id uint) (*models.EmailSequence, error)
}

// UserSource reads the consumer app's users. Get returns (nil, nil)
// for unknown users.
type UserSource interface {
	ListWithEmail(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id uint) (*models.User, error)
}

// LogStore is the shared attempt ledger. CreatePendingIfUnsent is the
// suppression check and the pending insert in one atomic step.
type LogStore interface {
	CreatePendingIfUnsent(ctx context.Context, entry *models.EmailLog) (bool, error)
	MarkSuccess(ctx context.Context, entry *models.EmailLog) error
	MarkFailed(ctx context.Context, entry *models.EmailLog, sendErr error) error
	MarkRetrying(ctx context.Context, entry *models.EmailLog) error
	FindFailedRetryable(ctx context.Context, now time.Time, maxAttempts int, window time.Duration) ([]models.EmailLog, error)
}

// Mailer is the outbound transport. Send may fail transiently or
// permanently; callers record the outcome, they don't retry inline.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Locker serializes runs across replicas. Acquire returns false when
// another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// attemptSend runs one send through the full log lifecycle: atomically
// insert a pending row unless the tuple already succeeded, attempt the
// send, record the outcome. Every failure is absorbed into log state or
// the logger so one bad email never aborts a batch. Returns true when a
// send was attempted (suppressed and errored-out pairs return false).
func attemptSend(ctx context.Context, logs LogStore, mailer Mailer, logger *logrus.Entry, entry *models.EmailLog, body string) bool {
	fields := logrus.Fields{
		"sequence_id": entry.SequenceID,
		"email_index": entry.EmailIndex,
		"user_id":     entry.UserID,
		"recipient":   entry.Recipient,
	}

	created, err := logs.CreatePendingIfUnsent(ctx, entry)
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("failed to create pending log")
		return false
	}
	if !created {
		logger.WithFields(fields).Debug("already sent, skipping")
		return false
	}

	if err := mailer.Send(entry.Recipient, entry.Subject, body); err != nil {
		logger.WithFields(fields).WithError(err).Warn("send failed")
		if err := logs.MarkFailed(ctx, entry, err); err != nil {
			logger.WithFields(fields).WithError(err).Error("failed to record send failure")
		}
		return true
	}

	if err := logs.MarkSuccess(ctx, entry); err != nil {
		logger.WithFields(fields).WithError(err).Error("failed to record send success")
	}
	return true
}
