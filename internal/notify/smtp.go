package notify

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail over SMTP using gomail.
type SMTPSender struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPSender creates a new SMTPSender
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Send delivers a single HTML message with optional attachments
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string, attachments ...Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	for _, att := range attachments {
		content := att.Content
		m.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	return nil
}
