// Package events defines the inspection and dispute events published after
// each committed transition. The bus itself lives in platform/events.
package events

import (
	"time"

	"github.com/google/uuid"

	"rental_inspections_backend/platform/events"
)

// Aliases so domain code imports a single events package.
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
	NewInMemoryBus = events.NewInMemoryBus
)

// InspectionRef identifies an inspection and its parties in every
// inspection event.
type InspectionRef struct {
	InspectionID uuid.UUID  `json:"inspectionId"`
	BookingID    uuid.UUID  `json:"bookingId"`
	OwnerID      uuid.UUID  `json:"ownerId"`
	RenterID     uuid.UUID  `json:"renterId"`
	InspectorID  *uuid.UUID `json:"inspectorId,omitempty"`
}

// =============================================================================
// Inspection Lifecycle Events
// =============================================================================

// InspectionCreated is published when an inspection is scheduled.
type InspectionCreated struct {
	BaseEvent
	InspectionRef
	InspectionType string    `json:"inspectionType"`
	ScheduledAt    time.Time `json:"scheduledAt"`
	CreatedBy      uuid.UUID `json:"createdBy"`
}

func (e InspectionCreated) EventName() string { return "inspections.inspection.created" }

// InspectionStatusChanged is published when an inspection is started,
// completed, or cancelled.
type InspectionStatusChanged struct {
	BaseEvent
	InspectionRef
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	ActorID   uuid.UUID `json:"actorId"`
	Reason    string    `json:"reason,omitempty"`
}

func (e InspectionStatusChanged) EventName() string { return "inspections.inspection.status_changed" }

// InspectorAssigned is published when an admin assigns an inspector.
type InspectorAssigned struct {
	BaseEvent
	InspectionRef
	AssignedBy uuid.UUID `json:"assignedBy"`
}

func (e InspectorAssigned) EventName() string { return "inspections.inspector.assigned" }

// =============================================================================
// Negotiation Events
// =============================================================================

// NegotiationStepRecorded is published when an owner or renter records a
// pre- or post-inspection step. Counterparty is the user expected to act next.
type NegotiationStepRecorded struct {
	BaseEvent
	InspectionRef
	Step         string    `json:"step"`
	ActorID      uuid.UUID `json:"actorId"`
	Counterparty uuid.UUID `json:"counterparty"`
	PreStatus    string    `json:"preStatus"`
	PostStatus   string    `json:"postStatus"`
}

func (e NegotiationStepRecorded) EventName() string { return "inspections.negotiation.step_recorded" }

// =============================================================================
// Dispute Events
// =============================================================================

// DisputeRaised is published when a dispute is opened, explicitly or by an
// owner post-review.
type DisputeRaised struct {
	BaseEvent
	InspectionRef
	DisputeID   uuid.UUID `json:"disputeId"`
	RaisedBy    uuid.UUID `json:"raisedBy"`
	DisputeType string    `json:"disputeType"`
	Reason      string    `json:"reason"`
}

func (e DisputeRaised) EventName() string { return "inspections.dispute.raised" }

// DisputeAssigned is published when a dispute is handed to a resolver.
type DisputeAssigned struct {
	BaseEvent
	InspectionRef
	DisputeID  uuid.UUID `json:"disputeId"`
	AssignedTo uuid.UUID `json:"assignedTo"`
	AssignedBy uuid.UUID `json:"assignedBy"`
}

func (e DisputeAssigned) EventName() string { return "inspections.dispute.assigned" }

// DisputeResolved is published when a dispute is closed.
type DisputeResolved struct {
	BaseEvent
	InspectionRef
	DisputeID       uuid.UUID `json:"disputeId"`
	RaisedBy        uuid.UUID `json:"raisedBy"`
	ResolvedBy      uuid.UUID `json:"resolvedBy"`
	ResolutionNotes string    `json:"resolutionNotes"`
}

func (e DisputeResolved) EventName() string { return "inspections.dispute.resolved" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler worker when an outbox
// record is ready for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
