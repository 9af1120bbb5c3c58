package services

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"museum-ticketing-platform/internal/config"
)

// EmailMessage is a rendered transactional email
type EmailMessage struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Tags        map[string]string
	Attachments []EmailAttachment
}

// EmailAttachment is an in-memory file attached to an email
type EmailAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// NewMailer picks the mail transport from configuration: Resend when an API key
// is present, SMTP when a host is present, otherwise a mailer that only logs.
func NewMailer(resendCfg config.ResendConfig, smtpCfg config.EmailConfig, logger *logrus.Logger) Mailer {
	switch {
	case resendCfg.APIKey != "":
		logger.Info("Email: using Resend API")
		return NewResendMailer(resendCfg, logger)
	case smtpCfg.SMTPHost != "":
		logger.WithField("host", smtpCfg.SMTPHost).Info("Email: using SMTP")
		return NewSMTPMailer(smtpCfg, logger)
	default:
		logger.Warn("Email: no transport configured, confirmation emails will only be logged")
		return NewLogMailer(logger)
	}
}

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	config config.EmailConfig
	dialer *gomail.Dialer
	logger *logrus.Logger
}

// NewSMTPMailer creates an SMTP mailer
func NewSMTPMailer(cfg config.EmailConfig, logger *logrus.Logger) *SMTPMailer {
	return &SMTPMailer{
		config: cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		logger: logger,
	}
}

// Send delivers one message
func (m *SMTPMailer) Send(ctx context.Context, msg *EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.config.FromEmail, m.config.FromName)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	} else {
		gm.SetBody("text/html", msg.HTML)
	}

	for _, a := range msg.Attachments {
		content := a.Content
		gm.Attach(a.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email sent via SMTP")
	return nil
}

// LogMailer logs messages instead of sending them
type LogMailer struct {
	logger *logrus.Logger
}

// NewLogMailer creates a mailer for development
func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message envelope
func (m *LogMailer) Send(ctx context.Context, msg *EmailMessage) error {
	m.logger.WithFields(logrus.Fields{
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": len(msg.Attachments),
	}).Info("Email not sent (no transport configured)")
	return nil
}
