package adapters

import (
	"context"
	"errors"
	"fmt"

	"rental_inspections_backend/internal/notification"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory reads contact details from the users table owned by the
// identity service, satisfying notification.UserDirectory.
type UserDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory creates a new user directory adapter.
func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

var _ notification.UserDirectory = (*UserDirectory)(nil)

// GetRecipient returns the email address and display name of a user.
func (a *UserDirectory) GetRecipient(ctx context.Context, userID uuid.UUID) (*notification.Recipient, error) {
	r := notification.Recipient{ID: userID}
	err := a.pool.QueryRow(ctx, `
		SELECT email, COALESCE(name, '')
		FROM users
		WHERE id = $1`, userID,
	).Scan(&r.Email, &r.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("user directory: get recipient: %w", err)
	}
	return &r, nil
}
