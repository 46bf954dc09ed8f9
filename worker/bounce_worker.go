package worker

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"maplemail/config"
)

const bounceInterval = 10 * time.Minute

// finalRecipientRe matches the DSN Final-Recipient field inside a
// delivery status report body.
var finalRecipientRe = regexp.MustCompile(`(?i)Final-Recipient:\s*rfc822;\s*<?([^\s>]+@[^\s>]+)>?`)

// BounceLogStore marks delivered log rows as bounced.
type BounceLogStore interface {
	MarkBounced(ctx context.Context, recipient, reason string) (bool, error)
}

// BounceWatcher polls the bounce mailbox over IMAP and folds delivery
// failures back into the email log, so a "success" row that later
// bounced doesn't stay green on the admin surface.
type BounceWatcher struct {
	cfg    config.IMAPConfig
	logs   BounceLogStore
	logger *logrus.Entry
}

func NewBounceWatcher(cfg config.IMAPConfig, logs BounceLogStore, logger *logrus.Entry) *BounceWatcher {
	return &BounceWatcher{cfg: cfg, logs: logs, logger: logger}
}

// Start blocks until ctx is cancelled, sweeping the mailbox every 10
// minutes.
func (w *BounceWatcher) Start(ctx context.Context) {
	w.logger.Infof("bounce watcher started, every %s", bounceInterval)

	ticker := time.NewTicker(bounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("bounce watcher shutting down")
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.WithError(err).Warn("bounce sweep failed")
			}
		}
	}
}

func (w *BounceWatcher) sweep(ctx context.Context) error {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port), nil)
	if err != nil {
		return fmt.Errorf("dial imap: %w", err)
	}
	defer c.Logout()

	if err := c.Login(w.cfg.Username, w.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(w.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("select %s: %w", w.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	marked := 0
	for msg := range messages {
		recipient, reason := w.parseBounce(msg.GetBody(section))
		if recipient == "" {
			continue
		}
		found, err := w.logs.MarkBounced(ctx, recipient, reason)
		if err != nil {
			w.logger.WithField("recipient", recipient).WithError(err).Error("failed to record bounce")
			continue
		}
		if found {
			marked++
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetch bounces: %w", err)
	}

	// Processed messages stay in the mailbox but are flagged seen.
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.Store(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		w.logger.WithError(err).Warn("failed to flag bounce messages seen")
	}

	w.logger.WithFields(logrus.Fields{"messages": len(ids), "marked": marked}).Info("bounce sweep complete")
	return nil
}

// parseBounce extracts the failed recipient from an X-Failed-Recipients
// header or a DSN Final-Recipient field in the body.
func (w *BounceWatcher) parseBounce(r io.Reader) (recipient, reason string) {
	if r == nil {
		return "", ""
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", ""
	}

	subject, _ := mr.Header.Subject()
	if subject == "" {
		subject = "delivery failure"
	}

	if failed := mr.Header.Get("X-Failed-Recipients"); failed != "" {
		return strings.TrimSpace(failed), subject
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		if m := finalRecipientRe.FindSubmatch(body); m != nil {
			return string(m[1]), subject
		}
	}
	return "", ""
}
