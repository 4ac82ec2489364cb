// Package ports defines the interfaces the inspections domain requires from
// external systems. Implementations are wired by the composition root so
// the inspections domain never imports the booking or storage layers.
package ports

import (
	"context"

	"rental_inspections_backend/internal/evidence"

	"github.com/google/uuid"
)

// Booking is the part of a marketplace booking the inspections domain reads.
type Booking struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	OwnerID   uuid.UUID
	RenterID  uuid.UUID
	Status    string
}

// BookingReader looks up bookings. It never mutates them.
type BookingReader interface {
	// GetBooking returns apperr.NotFound for an unknown booking.
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
}

// EvidenceGateway stores evidence files and returns their URLs.
type EvidenceGateway interface {
	// UploadAll returns URLs in input order. On failure nothing stays uploaded.
	UploadAll(ctx context.Context, files []evidence.File, folder string) ([]string, error)
	// DeleteAll removes uploaded evidence as a compensating action.
	DeleteAll(ctx context.Context, urls []string)
}
