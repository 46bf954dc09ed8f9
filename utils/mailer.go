package utils

import (
	"fmt"
	"time"

	"github.com/badoux/checkmail"
	"gopkg.in/gomail.v2"

	"maplemail/config"
)

// defaultSendTimeout bounds how long one send may block a batch.
const defaultSendTimeout = 30 * time.Second

// SMTPMailer sends sequence emails through a credentialed SMTP relay.
type SMTPMailer struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
	timeout   time.Duration
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		timeout:   defaultSendTimeout,
	}
}

// Send delivers one HTML email. Missing transport credentials and
// malformed recipients fail the attempt without dialing, so they
// surface in the email log like any other send error.
func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if m.host == "" || m.fromEmail == "" {
		return fmt.Errorf("smtp transport is not configured")
	}
	if err := checkmail.ValidateFormat(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.host, m.port, m.username, m.password)

	// gomail has no deadline support; race the send against a timer so
	// one hung dial cannot stall a whole batch.
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send to %s: %w", to, err)
		}
		return nil
	case <-time.After(m.timeout):
		return fmt.Errorf("send to %s timed out after %s", to, m.timeout)
	}
}
