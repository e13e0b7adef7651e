// Package email provides outbound delivery of composed compliance reports.
//
// Delivery is the only delegated action in the workflow: it runs solely after
// the authorization clarification manager has confirmed a credential is on
// file. This package never decides whether it may send; it only sends.
package email

import (
	"context"
	"errors"
)

// ErrDeliveryFailed indicates the external provider rejected the send. The
// report keeps its rendered content and ID so a retry does not re-render.
var ErrDeliveryFailed = errors.New("report delivery failed")

// Service is the interface for sending compliance reports.
//
// Implementations:
// - SMTPService: SMTP protocol (Mailhog for dev, a relay for production)
// All methods are context-aware for timeout and cancellation support.
type Service interface {
	// SendComplianceReport delivers a rendered report to the recipients and
	// returns the provider message ID on success. Failures are reported as
	// ErrDeliveryFailed (wrapped).
	SendComplianceReport(ctx context.Context, recipients []string, subject, body string) (string, error)
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}
