// Package email sends queued reminders over SMTP.
package email

import (
	"errors"
	"fmt"
	"os"

	mail "gopkg.in/mail.v2"
)

// ErrConfig signals incomplete SMTP configuration. It is surfaced to the
// caller instead of being recorded as an ordinary delivery failure.
var ErrConfig = errors.New("smtp configuration incomplete")

const signature = "--\nAutomatisch gesendet vom Creative Space Snackbot"

type Client struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	subject  string
}

func NewClient(smtpHost string, smtpPort int, username, password, from, subject string) *Client {
	return &Client{
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
		from:     from,
		subject:  subject,
	}
}

// Send delivers the message. The description, when present, is appended as
// a footnote above the signature; an attachment path that no longer
// resolves is skipped rather than failing the send.
func (c *Client) Send(to, body, attachment, description string) error {
	if err := c.checkConfig(); err != nil {
		return err
	}

	message := mail.NewMessage()

	message.SetHeader("From", c.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", c.subject)
	message.SetBody("text/plain", compose(body, description))

	if attachment != "" {
		if _, err := os.Stat(attachment); err == nil {
			message.Attach(attachment)
		}
	}

	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)

	if err := dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

func (c *Client) checkConfig() error {
	for name, value := range map[string]string{
		"SMTP_HOST": c.smtpHost,
		"SMTP_USER": c.username,
		"SMTP_PASS": c.password,
		"SMTP_FROM": c.from,
	} {
		if value == "" {
			return fmt.Errorf("%w: %s must be set", ErrConfig, name)
		}
	}
	return nil
}

func compose(body, description string) string {
	footnote := "\n\n" + signature
	if description != "" {
		footnote = fmt.Sprintf("\n\nBeschreibung: %s%s", description, footnote)
	}
	return body + footnote
}
