// Package email renders and delivers notification mail.
package email

import (
	"context"

	"rental_inspections_backend/platform/config"
)

// InspectionUpdate is the content of a mail about an inspection.
type InspectionUpdate struct {
	RecipientName  string
	Heading        string
	Summary        string
	InspectionType string
	ScheduledAt    string
	Details        []string
	InspectionURL  string
}

// DisputeUpdate is the content of a mail about a dispute.
type DisputeUpdate struct {
	RecipientName string
	Heading       string
	Summary       string
	DisputeType   string
	Reason        string
	Resolution    string
	InspectionURL string
}

type Sender interface {
	SendInspectionUpdateEmail(ctx context.Context, toEmail, subject string, update InspectionUpdate) error
	SendDisputeUpdateEmail(ctx context.Context, toEmail, subject string, update DisputeUpdate) error
}

type NoopSender struct{}

func (NoopSender) SendInspectionUpdateEmail(ctx context.Context, toEmail, subject string, update InspectionUpdate) error {
	return nil
}

func (NoopSender) SendDisputeUpdateEmail(ctx context.Context, toEmail, subject string, update DisputeUpdate) error {
	return nil
}

// NewSender returns an SMTP sender, or a NoopSender when mail is not configured.
func NewSender(cfg config.SMTPConfig) (Sender, error) {
	if !cfg.IsEmailEnabled() {
		return NoopSender{}, nil
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	), nil
}
