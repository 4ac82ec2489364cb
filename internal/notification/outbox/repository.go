// Package outbox persists notifications between the domain event that
// caused them and their delivery.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the delivery state of a record:
// pending -> enqueued -> processing -> succeeded | failed, with retries
// going back to pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

const defaultClaimLimit = 50

var errNotConfigured = errors.New("outbox repository not configured")

type Record struct {
	ID       uuid.UUID
	Kind     string
	Template string
	Payload  json.RawMessage
	RunAt    time.Time
	Status   Status
	Attempts int
}

// InsertParams describes a new record. Payload is stored as JSON and a zero
// RunAt means now.
type InsertParams struct {
	Kind     string
	Template string
	Payload  any
	RunAt    time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, kind, template, payload, run_at, status, attempts`

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Kind, &rec.Template, &rec.Payload, &rec.RunAt, &rec.Status, &rec.Attempts)
	return rec, err
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return errNotConfigured
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if err := r.ready(); err != nil {
		return uuid.Nil, err
	}
	if p.Kind == "" || p.Template == "" {
		return uuid.Nil, errors.New("outbox: kind and template are required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now()
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("outbox: marshal payload: %w", err)
	}

	id := uuid.New()
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO notification_outbox (id, kind, template, payload, run_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, p.Kind, p.Template, payload, p.RunAt.UTC(), StatusPending,
	); err != nil {
		return uuid.Nil, fmt.Errorf("outbox: insert: %w", err)
	}
	return id, nil
}

// GetByID returns apperr NotFound once the record has been purged.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if err := r.ready(); err != nil {
		return Record{}, err
	}
	rows, _ := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM notification_outbox WHERE id = $1`, id)
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("outbox record not found")
	}
	if err != nil {
		return Record{}, fmt.Errorf("outbox: get %s: %w", id, err)
	}
	return rec, nil
}

// ClaimPending flips up to limit due pending records to enqueued and returns
// them. SKIP LOCKED keeps concurrent dispatchers off each other's rows.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultClaimLimit
	}

	var claimed []Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, _ := tx.Query(ctx, `
			WITH due AS (
				SELECT id FROM notification_outbox
				WHERE status = 'pending' AND run_at <= now()
				ORDER BY run_at
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE notification_outbox o
			SET status = 'enqueued', updated_at = now()
			FROM due
			WHERE o.id = due.id
			RETURNING o.id, o.kind, o.template, o.payload, o.run_at, o.status, o.attempts`, limit)
		var err error
		claimed, err = pgx.CollectRows(rows, scanRecord)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: claim pending: %w", err)
	}
	return claimed, nil
}

func (r *Repository) setStatus(ctx context.Context, op string, sql string, args ...any) error {
	if err := r.ready(); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("outbox: %s: %w", op, err)
	}
	return nil
}

// MarkPending releases a claimed record the dispatcher could not enqueue.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.setStatus(ctx, "mark pending", `
		UPDATE notification_outbox SET status = 'pending', last_error = $2, updated_at = now()
		WHERE id = $1`, id, lastError)
}

// MarkProcessing counts a delivery attempt.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, "mark processing", `
		UPDATE notification_outbox SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = $1`, id)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, "mark succeeded", `
		UPDATE notification_outbox SET status = 'succeeded', last_error = NULL, updated_at = now()
		WHERE id = $1`, id)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.setStatus(ctx, "mark failed", `
		UPDATE notification_outbox SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1`, id, lastError)
}

// ScheduleRetry puts a record back to pending, due at runAt.
func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.setStatus(ctx, "schedule retry", `
		UPDATE notification_outbox SET status = 'pending', run_at = $2, last_error = $3, updated_at = now()
		WHERE id = $1`, id, runAt.UTC(), lastError)
}

// DeleteFinishedBefore purges succeeded records last touched before
// succeededBefore and failed ones before failedBefore.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, succeededBefore, failedBefore time.Time) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notification_outbox
		WHERE (status = 'succeeded' AND updated_at < $1)
		   OR (status = 'failed' AND updated_at < $2)`,
		succeededBefore, failedBefore)
	if err != nil {
		return 0, fmt.Errorf("outbox: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
