package worker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"maplemail/models"
)

// EventDispatcher delivers event-triggered emails as soon as a domain
// event is recorded.
type EventDispatcher struct {
	sequences SequenceSource
	users     UserSource
	logs      LogStore
	mailer    Mailer
	logger    *logrus.Entry
}

func NewEventDispatcher(sequences SequenceSource, users UserSource, logs LogStore, mailer Mailer, logger *logrus.Entry) *EventDispatcher {
	return &EventDispatcher{
		sequences: sequences,
		users:     users,
		logs:      logs,
		mailer:    mailer,
		logger:    logger,
	}
}

// Dispatch processes one event. Matching (email, index) pairs across
// all active sequences are collected first and then attempted
// sequentially, so every outcome is recorded before Dispatch returns.
// It returns how many sends were attempted; a failed send for one pair
// does not stop the others.
func (d *EventDispatcher) Dispatch(ctx context.Context, event models.Event) (int, error) {
	if event.Type == "" || event.UserID == 0 {
		d.logger.WithField("event_id", event.ID).Warn("event missing type or user, ignoring")
		return 0, nil
	}

	user, err := d.users.Get(ctx, event.UserID)
	if err != nil {
		return 0, fmt.Errorf("resolve user %d: %w", event.UserID, err)
	}
	if user == nil || !user.HasEmail() {
		d.logger.WithFields(logrus.Fields{
			"event_type": event.Type,
			"user_id":    event.UserID,
		}).Info("event user has no address, ignoring")
		return 0, nil
	}

	sequences, err := d.sequences.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sequences: %w", err)
	}

	type match struct {
		sequenceID uint
		email      *models.SequenceEmail
		index      int
	}
	var matches []match
	for si := range sequences {
		seq := &sequences[si]
		for i := range seq.Emails {
			trig := seq.Emails[i].Trigger()
			if trig.Kind == models.TriggerKindEvent && trig.Event == event.Type {
				matches = append(matches, match{seq.ID, &seq.Emails[i], i})
			}
		}
	}

	attempted := 0
	for _, m := range matches {
		entry := &models.EmailLog{
			SequenceID:   m.sequenceID,
			EmailIndex:   m.index,
			UserID:       user.ID,
			Recipient:    *user.Email,
			Subject:      m.email.Subject,
			TriggerType:  models.TriggerTypeEvent,
			TriggerValue: event.Type,
		}
		if attemptSend(ctx, d.logs, d.mailer, d.logger, entry, m.email.Body) {
			attempted++
		}
	}

	d.logger.WithFields(logrus.Fields{
		"event_type": event.Type,
		"user_id":    event.UserID,
		"matches":    len(matches),
		"attempted":  attempted,
	}).Info("event dispatch complete")
	return attempted, nil
}
