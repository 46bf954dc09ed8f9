package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"maplemail/models"
)

const (
	retryLockKey  = "dispatch:retry"
	sweepInterval = 4 * time.Hour
)

// RetrySweeper re-attempts failed sends that are still inside the retry
// budget and the 24h recency window.
type RetrySweeper struct {
	sequences SequenceSource
	logs      LogStore
	mailer    Mailer
	lock      Locker
	logger    *logrus.Entry
}

func NewRetrySweeper(sequences SequenceSource, logs LogStore, mailer Mailer, lock Locker, logger *logrus.Entry) *RetrySweeper {
	return &RetrySweeper{
		sequences: sequences,
		logs:      logs,
		mailer:    mailer,
		lock:      lock,
		logger:    logger,
	}
}

// Start blocks until ctx is cancelled, sweeping every 4 hours.
func (s *RetrySweeper) Start(ctx context.Context) {
	s.logger.Infof("retry sweeper started, every %s", sweepInterval)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry sweeper shutting down")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.WithError(err).Error("retry sweep failed")
				sentry.CaptureException(err)
			}
		}
	}
}

// RunOnce executes one sweep. A failure loading the eligible set aborts
// the sweep; one entry's failure never stops the rest.
func (s *RetrySweeper) RunOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx, retryLockKey, time.Hour)
	if err != nil {
		s.logger.WithError(err).Warn("run lock unavailable, proceeding unlocked")
	} else if !acquired {
		s.logger.Info("another replica is sweeping retries, skipping")
		return nil
	} else {
		defer s.lock.Release(ctx, retryLockKey)
	}

	entries, err := s.logs.FindFailedRetryable(ctx, time.Now(), MaxRetryAttempts, retryWindow)
	if err != nil {
		return fmt.Errorf("load retryable logs: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	retried, recovered := 0, 0
	for i := range entries {
		entry := &entries[i]
		fields := logrus.Fields{
			"log_id":      entry.ID,
			"sequence_id": entry.SequenceID,
			"email_index": entry.EmailIndex,
			"retry_count": entry.RetryCount,
		}

		sequence, err := s.sequences.Get(ctx, entry.SequenceID)
		if err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("sequence lookup failed, skipping entry")
			continue
		}
		// A vanished or deactivated sequence skips the entry without
		// consuming retry budget; the row ages out of the 24h window.
		if sequence == nil {
			s.logger.WithFields(fields).Info("sequence no longer exists, skipping entry")
			continue
		}
		if sequence.Status != models.SequenceStatusActive {
			s.logger.WithFields(fields).Info("sequence inactive, skipping entry")
			continue
		}
		if entry.EmailIndex < 0 || entry.EmailIndex >= len(sequence.Emails) {
			s.logger.WithFields(fields).Info("email index out of range, skipping entry")
			continue
		}
		email := &sequence.Emails[entry.EmailIndex]

		// Budget is consumed before the attempt so a crash mid-send
		// cannot grant a free retry.
		if err := s.logs.MarkRetrying(ctx, entry); err != nil {
			s.logger.WithFields(fields).WithError(err).Error("failed to mark entry retrying")
			continue
		}
		retried++

		if err := s.mailer.Send(entry.Recipient, email.Subject, email.Body); err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("retry send failed")
			if err := s.logs.MarkFailed(ctx, entry, err); err != nil {
				s.logger.WithFields(fields).WithError(err).Error("failed to record retry failure")
			}
			continue
		}

		if err := s.logs.MarkSuccess(ctx, entry); err != nil {
			s.logger.WithFields(fields).WithError(err).Error("failed to record retry success")
			continue
		}
		recovered++
	}

	s.logger.WithFields(logrus.Fields{
		"eligible":  len(entries),
		"retried":   retried,
		"recovered": recovered,
	}).Info("retry sweep complete")
	return nil
}
