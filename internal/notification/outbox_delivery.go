package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rental_inspections_backend/internal/email"
	"rental_inspections_backend/internal/events"
	notificationoutbox "rental_inspections_backend/internal/notification/outbox"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
)

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox repository not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}
	m.log.Info("processing outbox due event", "outboxId", e.OutboxID)
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outboxKindEmail {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var processErr error
	switch rec.Template {
	case templateInspectionUpdate, templateDisputeUpdate:
		processErr = m.processEmailOutbox(ctx, rec)
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if processErr != nil {
		// The row now carries the retry schedule; a task error would make
		// the queue deliver it a second time.
		m.handleOutboxDeliveryError(ctx, rec, processErr)
		return nil
	}
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return nil
}

func (m *Module) processEmailOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload emailOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	if payload.RecipientID == uuid.Nil || payload.Subject == "" {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+"recipientId and subject are required")
		return nil
	}

	if m.users == nil {
		return fmt.Errorf("user directory not configured")
	}
	recipient, err := m.users.GetRecipient(ctx, payload.RecipientID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			m.log.Info("outbox recipient no longer exists; marking succeeded", "outboxId", rec.ID.String(), "recipientId", payload.RecipientID)
			_ = m.outbox.MarkSucceeded(ctx, rec.ID)
			return nil
		}
		return err
	}
	if recipient.Email == "" {
		m.log.Debug("outbox recipient has no email address; marking succeeded", "outboxId", rec.ID.String())
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	subject := email.Subject(payload.Subject)
	link := m.inspectionURL(payload.InspectionID)
	switch rec.Template {
	case templateDisputeUpdate:
		err = m.sender.SendDisputeUpdateEmail(ctx, recipient.Email, subject, email.DisputeUpdate{
			RecipientName: recipient.Name,
			Heading:       payload.Heading,
			Summary:       payload.Summary,
			DisputeType:   humanize(payload.DisputeType),
			Reason:        payload.Reason,
			Resolution:    payload.Resolution,
			InspectionURL: link,
		})
	default:
		err = m.sender.SendInspectionUpdateEmail(ctx, recipient.Email, subject, email.InspectionUpdate{
			RecipientName:  recipient.Name,
			Heading:        payload.Heading,
			Summary:        payload.Summary,
			InspectionType: humanize(payload.InspectionType),
			ScheduledAt:    formatScheduledAt(payload.ScheduledAt),
			Details:        payload.Details,
			InspectionURL:  link,
		})
	}
	if err != nil {
		return err
	}

	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	m.log.Info("email outbox delivered", "outboxId", rec.ID.String(), "recipientId", payload.RecipientID, "template", rec.Template)
	return nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"kind", rec.Kind,
			"template", rec.Template,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"kind", rec.Kind,
		"template", rec.Template,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if apperr.Is(err, apperr.KindNotFound) {
		m.log.Debug("outbox record purged before delivery; skipping", "outboxId", outboxID)
		return notificationoutbox.Record{}, false, nil
	}
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded || rec.Status == notificationoutbox.StatusFailed {
		m.log.Debug("outbox record already finished; skipping", "outboxId", rec.ID.String(), "status", rec.Status)
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	m.log.Debug("outbox record marked processing", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return rec, true, nil
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec notificationoutbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

func formatScheduledAt(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("Mon 2 Jan 2006, 15:04 UTC")
}
