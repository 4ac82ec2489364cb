package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rental_inspections_backend/internal/email"
	"rental_inspections_backend/internal/events"
	notificationoutbox "rental_inspections_backend/internal/notification/outbox"
	"rental_inspections_backend/platform/apperr"
	"rental_inspections_backend/platform/logger"

	"github.com/google/uuid"
)

type testNotificationConfig struct{}

func (testNotificationConfig) GetAppBaseURL() string { return "https://app.example.com/" }

type memoryOutbox struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*notificationoutbox.Record
	order     []uuid.UUID
	lastError map[uuid.UUID]string
	insertErr error
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{
		records:   map[uuid.UUID]*notificationoutbox.Record{},
		lastError: map[uuid.UUID]string{},
	}
}

func (o *memoryOutbox) Insert(_ context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error) {
	if o.insertErr != nil {
		return uuid.Nil, o.insertErr
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	id := uuid.New()
	o.records[id] = &notificationoutbox.Record{
		ID:       id,
		Kind:     p.Kind,
		Template: p.Template,
		Payload:  payload,
		RunAt:    p.RunAt,
		Status:   notificationoutbox.StatusPending,
	}
	o.order = append(o.order, id)
	return id, nil
}

func (o *memoryOutbox) GetByID(_ context.Context, id uuid.UUID) (notificationoutbox.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return notificationoutbox.Record{}, apperr.NotFound("outbox record not found")
	}
	return *rec, nil
}

func (o *memoryOutbox) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return o.update(id, func(r *notificationoutbox.Record) {
		r.Status = notificationoutbox.StatusProcessing
		r.Attempts++
	})
}

func (o *memoryOutbox) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return o.update(id, func(r *notificationoutbox.Record) { r.Status = notificationoutbox.StatusSucceeded })
}

func (o *memoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	o.lastError[id] = lastError
	return o.update(id, func(r *notificationoutbox.Record) { r.Status = notificationoutbox.StatusFailed })
}

func (o *memoryOutbox) ScheduleRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	o.lastError[id] = lastError
	return o.update(id, func(r *notificationoutbox.Record) {
		r.Status = notificationoutbox.StatusPending
		r.RunAt = runAt
	})
}

func (o *memoryOutbox) update(id uuid.UUID, fn func(*notificationoutbox.Record)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return errors.New("not found")
	}
	fn(rec)
	return nil
}

func (o *memoryOutbox) payloads(t *testing.T) []emailOutboxPayload {
	t.Helper()
	out := make([]emailOutboxPayload, 0, len(o.order))
	for _, id := range o.order {
		var p emailOutboxPayload
		if err := json.Unmarshal(o.records[id].Payload, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		out = append(out, p)
	}
	return out
}

type staticDirectory map[uuid.UUID]Recipient

func (d staticDirectory) GetRecipient(_ context.Context, id uuid.UUID) (*Recipient, error) {
	r, ok := d[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &r, nil
}

type sentMail struct {
	to         string
	subject    string
	inspection *email.InspectionUpdate
	dispute    *email.DisputeUpdate
}

type recordingSender struct {
	sent []sentMail
	err  error
}

func (s *recordingSender) SendInspectionUpdateEmail(_ context.Context, to, subject string, u email.InspectionUpdate) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, inspection: &u})
	return nil
}

func (s *recordingSender) SendDisputeUpdateEmail(_ context.Context, to, subject string, u email.DisputeUpdate) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, dispute: &u})
	return nil
}

type fixture struct {
	owner, renter, inspector uuid.UUID
	ref                      events.InspectionRef
	outbox                   *memoryOutbox
	sender                   *recordingSender
	module                   *Module
	now                      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		owner:     uuid.New(),
		renter:    uuid.New(),
		inspector: uuid.New(),
		outbox:    newMemoryOutbox(),
		sender:    &recordingSender{},
		now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.ref = events.InspectionRef{
		InspectionID: uuid.New(),
		BookingID:    uuid.New(),
		OwnerID:      f.owner,
		RenterID:     f.renter,
		InspectorID:  &f.inspector,
	}
	dir := staticDirectory{
		f.owner:     {ID: f.owner, Email: "owner@example.com", Name: "Olive"},
		f.renter:    {ID: f.renter, Email: "renter@example.com", Name: "Ravi"},
		f.inspector: {ID: f.inspector, Email: "", Name: "Ines"},
	}
	f.module = New(f.outbox, dir, f.sender, testNotificationConfig{}, logger.New("development"))
	f.module.now = func() time.Time { return f.now }
	return f
}

func TestEventsEnqueueExpectedRecipients(t *testing.T) {
	f := newFixture()
	admin := uuid.New()

	tests := []struct {
		name     string
		event    events.Event
		template string
		want     []uuid.UUID
	}{
		{
			name:     "created skips creator",
			event:    events.InspectionCreated{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, InspectionType: "pre_rental", CreatedBy: f.owner},
			template: templateInspectionUpdate,
			want:     []uuid.UUID{f.renter, f.inspector},
		},
		{
			name:     "status change skips actor",
			event:    events.InspectionStatusChanged{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, OldStatus: "pending", NewStatus: "in_progress", ActorID: f.inspector},
			template: templateInspectionUpdate,
			want:     []uuid.UUID{f.owner, f.renter},
		},
		{
			name:     "inspector assigned",
			event:    events.InspectorAssigned{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, AssignedBy: admin},
			template: templateInspectionUpdate,
			want:     []uuid.UUID{f.inspector},
		},
		{
			name:     "negotiation step goes to counterparty",
			event:    events.NegotiationStepRecorded{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, Step: "owner_pre_inspection", ActorID: f.owner, Counterparty: f.renter},
			template: templateInspectionUpdate,
			want:     []uuid.UUID{f.renter},
		},
		{
			name:     "dispute raised skips raiser",
			event:    events.DisputeRaised{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, DisputeID: uuid.New(), RaisedBy: f.renter, DisputeType: "damage_assessment", Reason: "scratch"},
			template: templateDisputeUpdate,
			want:     []uuid.UUID{f.owner, f.inspector},
		},
		{
			name:     "dispute assigned",
			event:    events.DisputeAssigned{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, DisputeID: uuid.New(), AssignedTo: f.inspector, AssignedBy: admin},
			template: templateDisputeUpdate,
			want:     []uuid.UUID{f.inspector},
		},
		{
			name:     "dispute resolved skips resolver",
			event:    events.DisputeResolved{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, DisputeID: uuid.New(), RaisedBy: f.renter, ResolvedBy: f.inspector},
			template: templateDisputeUpdate,
			want:     []uuid.UUID{f.owner, f.renter},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.outbox = newMemoryOutbox()
			f.module.outbox = f.outbox

			if err := f.module.Handle(context.Background(), tt.event); err != nil {
				t.Fatalf("handle: %v", err)
			}

			payloads := f.outbox.payloads(t)
			if len(payloads) != len(tt.want) {
				t.Fatalf("expected %d records, got %d", len(tt.want), len(payloads))
			}
			for i, p := range payloads {
				if p.RecipientID != tt.want[i] {
					t.Errorf("record %d: expected recipient %s, got %s", i, tt.want[i], p.RecipientID)
				}
				if p.InspectionID != f.ref.InspectionID {
					t.Errorf("record %d: wrong inspection id", i)
				}
				rec := f.outbox.records[f.outbox.order[i]]
				if rec.Template != tt.template || rec.Kind != outboxKindEmail {
					t.Errorf("record %d: got %s/%s", i, rec.Kind, rec.Template)
				}
			}
		})
	}
}

func TestNegotiationStepWithoutCounterpartyEnqueuesNothing(t *testing.T) {
	f := newFixture()
	err := f.module.Handle(context.Background(), events.NegotiationStepRecorded{
		BaseEvent:     events.NewBaseEvent(),
		InspectionRef: f.ref,
		Step:          "renter_pre_review",
		ActorID:       f.renter,
		Counterparty:  f.renter,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.outbox.order) != 0 {
		t.Fatalf("expected no records, got %d", len(f.outbox.order))
	}
}

func TestEnqueueFailureIsReported(t *testing.T) {
	f := newFixture()
	f.outbox.insertErr = errors.New("db down")
	err := f.module.Handle(context.Background(), events.InspectorAssigned{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestOutboxDueDeliversDisputeEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.module.Handle(ctx, events.DisputeRaised{
		BaseEvent:     events.NewBaseEvent(),
		InspectionRef: f.ref,
		DisputeID:     uuid.New(),
		RaisedBy:      f.renter,
		DisputeType:   "cost_dispute",
		Reason:        "too expensive",
	}); err != nil {
		t.Fatal(err)
	}

	ownerRecord := f.outbox.order[0]
	if err := f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: ownerRecord}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(f.sender.sent))
	}
	mail := f.sender.sent[0]
	if mail.to != "owner@example.com" {
		t.Errorf("unexpected recipient %q", mail.to)
	}
	if mail.subject != email.Subject("A dispute was raised") {
		t.Errorf("unexpected subject %q", mail.subject)
	}
	if mail.dispute == nil {
		t.Fatal("expected dispute mail")
	}
	if mail.dispute.DisputeType != "cost dispute" || mail.dispute.Reason != "too expensive" || mail.dispute.RecipientName != "Olive" {
		t.Errorf("unexpected content %+v", *mail.dispute)
	}
	wantURL := "https://app.example.com/inspections/" + f.ref.InspectionID.String()
	if mail.dispute.InspectionURL != wantURL {
		t.Errorf("expected url %q, got %q", wantURL, mail.dispute.InspectionURL)
	}
	if got := f.outbox.records[ownerRecord].Status; got != notificationoutbox.StatusSucceeded {
		t.Errorf("expected succeeded, got %s", got)
	}

	// Redelivery of a finished record is a no-op.
	if err := f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: ownerRecord}); err != nil {
		t.Fatal(err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("finished record was delivered again")
	}
}

func TestOutboxDueWithoutEmailAddressSucceedsSilently(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_ = f.module.Handle(ctx, events.InspectorAssigned{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref})

	id := f.outbox.order[0]
	if err := f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: id}); err != nil {
		t.Fatal(err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("no mail expected for recipient without address")
	}
	if got := f.outbox.records[id].Status; got != notificationoutbox.StatusSucceeded {
		t.Errorf("expected succeeded, got %s", got)
	}
}

func TestOutboxDueUnknownRecipientSucceeds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	stranger := uuid.New()
	_ = f.module.Handle(ctx, events.DisputeAssigned{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, DisputeID: uuid.New(), AssignedTo: stranger, AssignedBy: uuid.New()})

	id := f.outbox.order[0]
	if err := f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: id}); err != nil {
		t.Fatal(err)
	}
	if got := f.outbox.records[id].Status; got != notificationoutbox.StatusSucceeded {
		t.Errorf("expected succeeded, got %s", got)
	}
}

func TestOutboxDeliveryFailureSchedulesRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.sender.err = errors.New("smtp unavailable")
	_ = f.module.Handle(ctx, events.InspectionStatusChanged{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref, OldStatus: "pending", NewStatus: "cancelled", ActorID: f.owner, Reason: "rain"})

	id := f.outbox.order[0]
	if err := f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: id}); err != nil {
		t.Fatalf("delivery failure is recorded on the row, got %v", err)
	}

	rec := f.outbox.records[id]
	if rec.Status != notificationoutbox.StatusPending {
		t.Fatalf("expected pending for retry, got %s", rec.Status)
	}
	if want := f.now.Add(time.Minute); !rec.RunAt.Equal(want) {
		t.Errorf("expected retry at %v, got %v", want, rec.RunAt)
	}
	if f.outbox.lastError[id] != "smtp unavailable" {
		t.Errorf("unexpected last error %q", f.outbox.lastError[id])
	}
}

func TestOutboxDeliveryFailureExhaustsRetries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.sender.err = errors.New("smtp unavailable")
	_ = f.module.Handle(ctx, events.InspectorAssigned{BaseEvent: events.NewBaseEvent(), InspectionRef: f.ref})
	id := f.outbox.order[0]
	f.outbox.records[id].Attempts = maxOutboxRetryAttempts - 1
	f.module.users = staticDirectory{f.inspector: {ID: f.inspector, Email: "ines@example.com"}}

	_ = f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: id})

	if got := f.outbox.records[id].Status; got != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestOutboxUnsupportedTemplateFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id, _ := f.outbox.Insert(ctx, notificationoutbox.InsertParams{Kind: outboxKindEmail, Template: "quote_sent", Payload: map[string]string{}})

	if err := f.module.Handle(ctx, events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: id}); err != nil {
		t.Fatal(err)
	}
	if got := f.outbox.records[id].Status; got != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestComputeOutboxRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{7, 60 * time.Minute},
		{12, 60 * time.Minute},
	}
	for _, tt := range tests {
		if got := computeOutboxRetryDelay(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}
