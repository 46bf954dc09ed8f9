package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"maplemail/models"
)

func newRetrySweeper(sequences *fakeSequences, logs *fakeLogs, mailer Mailer) *RetrySweeper {
	return NewRetrySweeper(sequences, logs, mailer, NoopLock{}, testLogger())
}

func failedLog(sequenceID uint, emailIndex int, userID uint, retryCount int, age time.Duration) *models.EmailLog {
	return &models.EmailLog{
		SequenceID:   sequenceID,
		EmailIndex:   emailIndex,
		UserID:       userID,
		Recipient:    "u1@example.com",
		Subject:      "Welcome",
		SentAt:       time.Now().Add(-age),
		Status:       models.LogStatusFailed,
		Error:        "smtp: connection reset",
		RetryCount:   retryCount,
		TriggerType:  models.TriggerTypeScheduled,
		TriggerValue: "1",
	}
}

func retrySequence(id uint, status string, emails ...models.SequenceEmail) models.EmailSequence {
	return models.EmailSequence{
		Model:  gorm.Model{ID: id},
		Name:   "Welcome",
		Status: status,
		Emails: emails,
	}
}

func TestRetrySweeperRecoversFailedSend(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, 1, time.Hour))
	mailer := &fakeMailer{}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 retry send, got %d", len(mailer.sent))
	}
	entry := logs.entries[0]
	if entry.Status != models.LogStatusSuccess {
		t.Errorf("expected recovered entry to be success, got %s", entry.Status)
	}
	if entry.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", entry.RetryCount)
	}
}

func TestRetrySweeperRecordsRepeatedFailure(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, 0, time.Hour))
	mailer := &fakeMailer{failSubject: map[string]error{
		"Welcome": errors.New("smtp: still broken"),
	}}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	entry := logs.entries[0]
	if entry.Status != models.LogStatusFailed {
		t.Errorf("expected entry to stay failed, got %s", entry.Status)
	}
	// Budget is consumed before the attempt, so the failed row keeps
	// the incremented count.
	if entry.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", entry.RetryCount)
	}
	if entry.Error != "smtp: still broken" {
		t.Errorf("expected the new error to be captured, got %q", entry.Error)
	}
}

func TestRetrySweeperHonorsRetryBudget(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, MaxRetryAttempts, time.Hour))
	mailer := &fakeMailer{}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("expected no retry once the budget is spent")
	}
	if logs.entries[0].RetryCount != MaxRetryAttempts {
		t.Errorf("expected retry count to stay at %d", MaxRetryAttempts)
	}
}

func TestRetrySweeperHonorsRecencyWindow(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, 0, 25*time.Hour))
	mailer := &fakeMailer{}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("expected entries older than the window to be excluded")
	}
	if logs.entries[0].RetryCount != 0 {
		t.Errorf("expected no budget consumed for an expired entry")
	}
}

func TestRetrySweeperSkipsMissingSequence(t *testing.T) {
	sequences := &fakeSequences{}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, 1, time.Hour))
	mailer := &fakeMailer{}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	entry := logs.entries[0]
	if entry.Status != models.LogStatusFailed {
		t.Errorf("expected entry to stay failed, got %s", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Errorf("expected no budget consumed when the sequence is gone, got %d", entry.RetryCount)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("expected no send for an orphaned entry")
	}
}

func TestRetrySweeperSkipsInactiveSequence(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusInactive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, 1, time.Hour))
	mailer := &fakeMailer{}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(mailer.sent) != 0 || logs.entries[0].RetryCount != 1 {
		t.Errorf("expected inactive sequences to be skipped without consuming budget")
	}
}

func TestRetrySweeperSkipsOutOfRangeIndex(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 5, 10, 1, time.Hour))
	mailer := &fakeMailer{}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(mailer.sent) != 0 || logs.entries[0].RetryCount != 1 {
		t.Errorf("expected out-of-range indexes to be skipped without consuming budget")
	}
}

func TestRetrySweeperFailuresAreIndependent(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive,
			scheduledEmail(1, "Welcome"),
			scheduledEmail(3, "Check-in"),
		),
	}}
	logs := &fakeLogs{}
	first := failedLog(1, 0, 10, 0, 2*time.Hour)
	logs.add(first)
	second := failedLog(1, 1, 10, 0, time.Hour)
	logs.add(second)
	mailer := &fakeMailer{failSubject: map[string]error{
		"Welcome": errors.New("smtp: mailbox full"),
	}}
	s := newRetrySweeper(sequences, logs, mailer)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if first.Status != models.LogStatusFailed {
		t.Errorf("expected first entry to stay failed, got %s", first.Status)
	}
	if second.Status != models.LogStatusSuccess {
		t.Errorf("expected second entry to recover, got %s", second.Status)
	}
}

func TestRetrySweeperSkipsWhenLockHeld(t *testing.T) {
	sequences := &fakeSequences{sequences: []models.EmailSequence{
		retrySequence(1, models.SequenceStatusActive, scheduledEmail(1, "Welcome")),
	}}
	logs := &fakeLogs{}
	logs.add(failedLog(1, 0, 10, 0, time.Hour))
	mailer := &fakeMailer{}
	s := NewRetrySweeper(sequences, logs, mailer, heldLock{}, testLogger())

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(mailer.sent) != 0 || logs.entries[0].RetryCount != 0 {
		t.Errorf("expected the sweep to yield while another replica holds the lock")
	}
}
