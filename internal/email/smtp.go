package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPService sends compliance reports via SMTP.
//
// Works with Mailhog in development (no authentication) and any standard
// SMTP relay in production with username/password authentication.
type SMTPService struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPService creates a new SMTP-based delivery service.
func NewSMTPService(config SMTPConfig, logger *slog.Logger) *SMTPService {
	if config.From == "" {
		config.From = "reports@siteguard.local"
	}
	if config.FromName == "" {
		config.FromName = "SiteGuard"
	}
	return &SMTPService{config: config, logger: logger}
}

// SendComplianceReport delivers the rendered report to all recipients in a
// single message.
func (s *SMTPService) SendComplianceReport(ctx context.Context, recipients []string, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	// SMTP gives no provider ID back; generate one for the Message-ID header
	// so the report record can reference the sent message.
	messageID := fmt.Sprintf("<%s@siteguard>", uuid.New())
	msg := s.buildMessage(recipients, subject, body, messageID)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := smtp.SendMail(addr, auth, s.config.From, recipients, msg); err != nil {
		s.logger.Error("failed to send compliance report",
			"recipients", len(recipients),
			"subject", subject,
			"error", err,
		)
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.logger.Info("compliance report sent",
		"recipients", len(recipients),
		"subject", subject,
		"message_id", messageID,
	)
	return messageID, nil
}

// buildMessage constructs the RFC 5322 message bytes.
func (s *SMTPService) buildMessage(recipients []string, subject, body, messageID string) []byte {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return []byte(b.String())
}

var _ Service = (*SMTPService)(nil)
