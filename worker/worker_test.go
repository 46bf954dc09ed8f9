package worker

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"maplemail/models"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

type fakeSequences struct {
	sequences []models.EmailSequence
	listErr   error
	getErr    error
}

func (f *fakeSequences) ListActive(ctx context.Context) ([]models.EmailSequence, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var active []models.EmailSequence
	for _, seq := range f.sequences {
		if seq.Status == models.SequenceStatusActive {
			active = append(active, seq)
		}
	}
	return active, nil
}

func (f *fakeSequences) Get(ctx context.Context, id uint) (*models.EmailSequence, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.sequences {
		if f.sequences[i].ID == id {
			return &f.sequences[i], nil
		}
	}
	return nil, nil
}

type fakeUsers struct {
	users   []models.User
	listErr error
}

func (f *fakeUsers) ListWithEmail(ctx context.Context) ([]models.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var eligible []models.User
	for _, u := range f.users {
		if u.HasEmail() {
			eligible = append(eligible, u)
		}
	}
	return eligible, nil
}

func (f *fakeUsers) Get(ctx context.Context, id uint) (*models.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i], nil
		}
	}
	return nil, nil
}

type fakeLogs struct {
	entries   []*models.EmailLog
	nextID    uint
	createErr error
}

func (f *fakeLogs) CreatePendingIfUnsent(ctx context.Context, entry *models.EmailLog) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	for _, e := range f.entries {
		if e.SequenceID == entry.SequenceID && e.EmailIndex == entry.EmailIndex &&
			e.UserID == entry.UserID && e.Status == models.LogStatusSuccess {
			return false, nil
		}
	}
	f.nextID++
	entry.ID = f.nextID
	entry.Status = models.LogStatusPending
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}
	f.entries = append(f.entries, entry)
	return true, nil
}

// find locates the stored row so updates through a detached copy (as
// the retry sweeper holds) behave like the real store's update-by-id.
func (f *fakeLogs) find(id uint) *models.EmailLog {
	for _, e := range f.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (f *fakeLogs) MarkSuccess(ctx context.Context, entry *models.EmailLog) error {
	key := models.DedupeKey(entry.SequenceID, entry.EmailIndex, entry.UserID)
	for _, e := range []*models.EmailLog{entry, f.find(entry.ID)} {
		if e == nil {
			continue
		}
		e.Status = models.LogStatusSuccess
		e.Error = ""
		e.DedupeKey = &key
		e.RetryCount = entry.RetryCount
	}
	return nil
}

func (f *fakeLogs) MarkFailed(ctx context.Context, entry *models.EmailLog, sendErr error) error {
	msg := ""
	if sendErr != nil {
		msg = sendErr.Error()
	}
	for _, e := range []*models.EmailLog{entry, f.find(entry.ID)} {
		if e == nil {
			continue
		}
		e.Status = models.LogStatusFailed
		e.Error = msg
		e.RetryCount = entry.RetryCount
	}
	return nil
}

func (f *fakeLogs) MarkRetrying(ctx context.Context, entry *models.EmailLog) error {
	entry.Status = models.LogStatusRetry
	entry.RetryCount++
	if stored := f.find(entry.ID); stored != nil && stored != entry {
		stored.Status = models.LogStatusRetry
		stored.RetryCount = entry.RetryCount
	}
	return nil
}

func (f *fakeLogs) FindFailedRetryable(ctx context.Context, now time.Time, maxAttempts int, window time.Duration) ([]models.EmailLog, error) {
	var eligible []models.EmailLog
	for _, e := range f.entries {
		if e.Status == models.LogStatusFailed && e.RetryCount < maxAttempts && e.SentAt.After(now.Add(-window)) {
			eligible = append(eligible, *e)
		}
	}
	return eligible, nil
}

func (f *fakeLogs) add(entry *models.EmailLog) {
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, entry)
}

func (f *fakeLogs) byTuple(sequenceID uint, emailIndex int, userID uint) []*models.EmailLog {
	var matched []*models.EmailLog
	for _, e := range f.entries {
		if e.SequenceID == sequenceID && e.EmailIndex == emailIndex && e.UserID == userID {
			matched = append(matched, e)
		}
	}
	return matched
}

func (f *fakeLogs) countStatus(status string) int {
	n := 0
	for _, e := range f.entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	sent        []sentMail
	failSubject map[string]error
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	if err, ok := f.failSubject[subject]; ok {
		return err
	}
	f.sent = append(f.sent, sentMail{to, subject, htmlBody})
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (heldLock) Release(ctx context.Context, key string) error {
	return nil
}

func scheduledEmail(afterDays int, subject string) models.SequenceEmail {
	return models.SequenceEmail{
		Subject:       subject,
		Body:          "<p>" + subject + "</p>",
		SendAfterDays: &afterDays,
	}
}

func eventEmail(trigger, subject string) models.SequenceEmail {
	return models.SequenceEmail{
		Subject:      subject,
		Body:         "<p>" + subject + "</p>",
		TriggerEvent: &trigger,
	}
}

func emailPtr(s string) *string {
	return &s
}
