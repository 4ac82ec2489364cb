package adapters

import (
	"context"
	"errors"
	"fmt"

	"rental_inspections_backend/internal/inspections/ports"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingReader reads bookings owned by the marketplace booking service,
// satisfying ports.BookingReader.
type BookingReader struct {
	pool *pgxpool.Pool
}

// NewBookingReader creates a new booking reader adapter.
func NewBookingReader(pool *pgxpool.Pool) *BookingReader {
	return &BookingReader{pool: pool}
}

var _ ports.BookingReader = (*BookingReader)(nil)

// GetBooking returns the booking parties and status.
func (a *BookingReader) GetBooking(ctx context.Context, bookingID uuid.UUID) (*ports.Booking, error) {
	var b ports.Booking
	err := a.pool.QueryRow(ctx, `
		SELECT id, product_id, owner_id, renter_id, status
		FROM bookings
		WHERE id = $1`, bookingID,
	).Scan(&b.ID, &b.ProductID, &b.OwnerID, &b.RenterID, &b.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("booking not found")
		}
		return nil, fmt.Errorf("booking adapter: get booking: %w", err)
	}
	return &b, nil
}
