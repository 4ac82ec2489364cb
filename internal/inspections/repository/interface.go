package repository

import (
	"context"
	"time"

	"rental_inspections_backend/internal/inspections/domain"

	"github.com/google/uuid"
)

// InspectionFilter narrows inspection listings. Nil fields are ignored.
type InspectionFilter struct {
	BookingID     *uuid.UUID
	Status        *domain.Status
	Type          *domain.InspectionType
	ParticipantID *uuid.UUID
	Offset        int
	Limit         int
}

// DisputeFilter narrows dispute listings. Nil fields are ignored.
// From and To bound created_at (inclusive, exclusive).
type DisputeFilter struct {
	InspectionID *uuid.UUID
	ReviewStep   *domain.ReviewStep
	RaisedBy     *uuid.UUID
	Status       *domain.DisputeStatus
	Type         *domain.DisputeType
	From         *time.Time
	To           *time.Time
	Offset       int
	Limit        int
}

// Repository is the durable store for inspections and disputes.
// Writes of an existing record compare its version and fail with Conflict
// when another writer got there first.
type Repository interface {
	GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error)
	// CreateInspection fails with Conflict when an active inspection of the
	// same type already exists for the booking.
	CreateInspection(ctx context.Context, insp *domain.Inspection) error
	// SaveInspection writes insp if its stored version equals expectedVersion,
	// inserting newDisputes in the same transaction. On success insp.Version
	// is advanced.
	SaveInspection(ctx context.Context, insp *domain.Inspection, expectedVersion int, newDisputes ...*domain.Dispute) error
	ListInspections(ctx context.Context, filter InspectionFilter) ([]domain.Inspection, int, error)

	GetDispute(ctx context.Context, id uuid.UUID) (*domain.Dispute, error)
	CreateDispute(ctx context.Context, d *domain.Dispute) error
	SaveDispute(ctx context.Context, d *domain.Dispute, expectedVersion int) error
	ListDisputes(ctx context.Context, filter DisputeFilter) ([]domain.Dispute, int, error)
}
