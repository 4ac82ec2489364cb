// Package notification turns inspection and dispute events into outbox
// records and delivers them by email.
// Domain modules publish events only; they never know about recipients,
// templates, or mail providers.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rental_inspections_backend/internal/email"
	"rental_inspections_backend/internal/events"
	notificationoutbox "rental_inspections_backend/internal/notification/outbox"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/logger"

	"github.com/google/uuid"
)

// OutboxStore persists pending notifications and their delivery state.
type OutboxStore interface {
	Insert(ctx context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

// Recipient is the contact data of a user that receives a notification.
type Recipient struct {
	ID    uuid.UUID
	Email string
	Name  string
}

// UserDirectory resolves user IDs to contact data at delivery time.
type UserDirectory interface {
	GetRecipient(ctx context.Context, userID uuid.UUID) (*Recipient, error)
}

// Module handles all notification-related event subscriptions.
type Module struct {
	outbox OutboxStore
	users  UserDirectory
	sender email.Sender
	cfg    config.NotificationConfig
	log    *logger.Logger
	now    func() time.Time
}

// New creates a new notification module.
func New(outbox OutboxStore, users UserDirectory, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{
		outbox: outbox,
		users:  users,
		sender: sender,
		cfg:    cfg,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string { return "notification" }

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	// Inspection lifecycle
	bus.Subscribe(events.InspectionCreated{}.EventName(), m)
	bus.Subscribe(events.InspectionStatusChanged{}.EventName(), m)
	bus.Subscribe(events.InspectorAssigned{}.EventName(), m)
	bus.Subscribe(events.NegotiationStepRecorded{}.EventName(), m)

	// Disputes
	bus.Subscribe(events.DisputeRaised{}.EventName(), m)
	bus.Subscribe(events.DisputeAssigned{}.EventName(), m)
	bus.Subscribe(events.DisputeResolved{}.EventName(), m)

	// Delivery
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.InspectionCreated:
		return m.handleInspectionCreated(ctx, e)
	case events.InspectionStatusChanged:
		return m.handleInspectionStatusChanged(ctx, e)
	case events.InspectorAssigned:
		return m.handleInspectorAssigned(ctx, e)
	case events.NegotiationStepRecorded:
		return m.handleNegotiationStepRecorded(ctx, e)
	case events.DisputeRaised:
		return m.handleDisputeRaised(ctx, e)
	case events.DisputeAssigned:
		return m.handleDisputeAssigned(ctx, e)
	case events.DisputeResolved:
		return m.handleDisputeResolved(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

const (
	outboxKindEmail          = "email"
	templateInspectionUpdate = "inspection_update"
	templateDisputeUpdate    = "dispute_update"
	inspectionPathPrefix     = "/inspections/"
)

// emailOutboxPayload is stored as JSON in the outbox. The recipient address
// is looked up at delivery time so changed addresses are honoured.
type emailOutboxPayload struct {
	RecipientID    uuid.UUID  `json:"recipientId"`
	InspectionID   uuid.UUID  `json:"inspectionId"`
	DisputeID      *uuid.UUID `json:"disputeId,omitempty"`
	Subject        string     `json:"subject"`
	Heading        string     `json:"heading"`
	Summary        string     `json:"summary"`
	InspectionType string     `json:"inspectionType,omitempty"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	Details        []string   `json:"details,omitempty"`
	DisputeType    string     `json:"disputeType,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
}

// ── Inspection event handlers ───────────────────────────────────────────

func (m *Module) handleInspectionCreated(ctx context.Context, e events.InspectionCreated) error {
	scheduledAt := e.ScheduledAt
	payload := emailOutboxPayload{
		InspectionID:   e.InspectionID,
		Subject:        "Inspection scheduled",
		Heading:        "An inspection has been scheduled",
		Summary:        fmt.Sprintf("A %s inspection was scheduled for your booking.", humanize(e.InspectionType)),
		InspectionType: e.InspectionType,
		ScheduledAt:    &scheduledAt,
	}
	return m.enqueueEmails(ctx, templateInspectionUpdate, payload, recipientsExcept(participants(e.InspectionRef), e.CreatedBy))
}

func (m *Module) handleInspectionStatusChanged(ctx context.Context, e events.InspectionStatusChanged) error {
	payload := emailOutboxPayload{
		InspectionID: e.InspectionID,
		Subject:      "Inspection " + humanize(e.NewStatus),
		Heading:      "Inspection " + humanize(e.NewStatus),
		Summary:      fmt.Sprintf("The inspection moved from %s to %s.", humanize(e.OldStatus), humanize(e.NewStatus)),
	}
	if e.Reason != "" {
		payload.Details = []string{"Reason: " + e.Reason}
	}
	return m.enqueueEmails(ctx, templateInspectionUpdate, payload, recipientsExcept(participants(e.InspectionRef), e.ActorID))
}

func (m *Module) handleInspectorAssigned(ctx context.Context, e events.InspectorAssigned) error {
	if e.InspectorID == nil {
		return nil
	}
	payload := emailOutboxPayload{
		InspectionID: e.InspectionID,
		Subject:      "You have been assigned an inspection",
		Heading:      "New inspection assignment",
		Summary:      "You were assigned as the inspector for a rental inspection.",
	}
	return m.enqueueEmails(ctx, templateInspectionUpdate, payload, []uuid.UUID{*e.InspectorID})
}

func (m *Module) handleNegotiationStepRecorded(ctx context.Context, e events.NegotiationStepRecorded) error {
	if e.Counterparty == uuid.Nil || e.Counterparty == e.ActorID {
		return nil
	}
	payload := emailOutboxPayload{
		InspectionID: e.InspectionID,
		Subject:      "Inspection update: " + humanize(e.Step),
		Heading:      "Your action may be needed",
		Summary:      fmt.Sprintf("The other party recorded the %s step.", humanize(e.Step)),
		Details: []string{
			"Pre-inspection: " + humanize(e.PreStatus),
			"Post-inspection: " + humanize(e.PostStatus),
		},
	}
	return m.enqueueEmails(ctx, templateInspectionUpdate, payload, []uuid.UUID{e.Counterparty})
}

// ── Dispute event handlers ──────────────────────────────────────────────

func (m *Module) handleDisputeRaised(ctx context.Context, e events.DisputeRaised) error {
	disputeID := e.DisputeID
	payload := emailOutboxPayload{
		InspectionID: e.InspectionID,
		DisputeID:    &disputeID,
		Subject:      "A dispute was raised",
		Heading:      "Dispute raised",
		Summary:      "A dispute was raised on an inspection you are part of.",
		DisputeType:  e.DisputeType,
		Reason:       e.Reason,
	}
	return m.enqueueEmails(ctx, templateDisputeUpdate, payload, recipientsExcept(participants(e.InspectionRef), e.RaisedBy))
}

func (m *Module) handleDisputeAssigned(ctx context.Context, e events.DisputeAssigned) error {
	disputeID := e.DisputeID
	payload := emailOutboxPayload{
		InspectionID: e.InspectionID,
		DisputeID:    &disputeID,
		Subject:      "A dispute was assigned to you",
		Heading:      "Dispute assignment",
		Summary:      "You were asked to resolve a dispute.",
	}
	return m.enqueueEmails(ctx, templateDisputeUpdate, payload, recipientsExcept([]uuid.UUID{e.AssignedTo}, e.AssignedBy))
}

func (m *Module) handleDisputeResolved(ctx context.Context, e events.DisputeResolved) error {
	disputeID := e.DisputeID
	payload := emailOutboxPayload{
		InspectionID: e.InspectionID,
		DisputeID:    &disputeID,
		Subject:      "Dispute resolved",
		Heading:      "Dispute resolved",
		Summary:      "A dispute on your inspection has been resolved.",
		Resolution:   e.ResolutionNotes,
	}
	recipients := append(participants(e.InspectionRef), e.RaisedBy)
	return m.enqueueEmails(ctx, templateDisputeUpdate, payload, recipientsExcept(recipients, e.ResolvedBy))
}

// enqueueEmails writes one outbox record per recipient. A failed insert does
// not stop the remaining recipients.
func (m *Module) enqueueEmails(ctx context.Context, template string, payload emailOutboxPayload, recipients []uuid.UUID) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox not configured; dropping notification", "template", template, "inspectionId", payload.InspectionID)
		return nil
	}

	var firstErr error
	for _, recipientID := range recipients {
		p := payload
		p.RecipientID = recipientID
		id, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
			Kind:     outboxKindEmail,
			Template: template,
			Payload:  p,
			RunAt:    m.now(),
		})
		if err != nil {
			m.log.Error("failed to enqueue notification", "template", template, "recipientId", recipientID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.log.Debug("notification enqueued", "outboxId", id, "template", template, "recipientId", recipientID)
	}
	return firstErr
}

func (m *Module) inspectionURL(inspectionID uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	return base + inspectionPathPrefix + inspectionID.String()
}

// participants lists owner, renter and the assigned inspector.
func participants(ref events.InspectionRef) []uuid.UUID {
	ids := []uuid.UUID{ref.OwnerID, ref.RenterID}
	if ref.InspectorID != nil {
		ids = append(ids, *ref.InspectorID)
	}
	return ids
}

// recipientsExcept drops the actor, nil IDs and duplicates, keeping order.
func recipientsExcept(ids []uuid.UUID, actor uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == actor {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func humanize(value string) string {
	return strings.ReplaceAll(value, "_", " ")
}
