// Package repository persists inspections, their items, and disputes in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	inspectionNotFoundMsg = "inspection not found"
	disputeNotFoundMsg    = "dispute not found"
	pgUniqueViolation     = "23505"
)

const inspectionColumns = `id, booking_id, product_id, owner_id, renter_id, inspector_id, inspection_type,
	status, pre_status, post_status, scheduled_at, started_at, completed_at, cancelled_at, cancel_reason,
	general_notes, inspector_notes, owner_notes, renter_notes, location,
	owner_pre_inspection, renter_pre_review, renter_discrepancy, renter_post_inspection, owner_post_review,
	version, created_at, updated_at`

const disputeColumns = `id, inspection_id, review_step, raised_by, dispute_type, reason, evidence, evidence_notes,
	status, assigned_to, resolution_notes, resolved_by, resolved_at, version, created_at, updated_at`

// Postgres provides database operations for inspections.
type Postgres struct {
	pool *pgxpool.Pool
}

// New creates a new inspections repository
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Repository = (*Postgres)(nil)

// GetInspection loads an inspection with its items.
func (r *Postgres) GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id = $1`, id)
	insp, err := scanInspection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(inspectionNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{insp.ID})
	if err != nil {
		return nil, err
	}
	insp.Items = items[insp.ID]
	return insp, nil
}

// CreateInspection inserts a new inspection and any items it already carries.
func (r *Postgres) CreateInspection(ctx context.Context, insp *domain.Inspection) error {
	docs, err := marshalNegotiation(insp)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO inspections (`+inspectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		insp.ID, insp.BookingID, insp.ProductID, insp.OwnerID, insp.RenterID, insp.InspectorID, string(insp.Type),
		string(insp.Status), string(insp.PreStatus), string(insp.PostStatus), insp.ScheduledAt, insp.StartedAt,
		insp.CompletedAt, insp.CancelledAt, insp.CancelReason,
		insp.GeneralNotes, insp.InspectorNotes, insp.OwnerNotes, insp.RenterNotes, insp.Location,
		docs.ownerPre, docs.renterPreReview, docs.renterDiscrepancy, docs.renterPost, docs.ownerPostReview,
		insp.Version, insp.CreatedAt, insp.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("an active inspection of this type already exists for the booking")
		}
		return fmt.Errorf("failed to create inspection: %w", err)
	}

	if err := upsertItems(ctx, tx, insp.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit inspection: %w", err)
	}
	return nil
}

// SaveInspection performs the compare-and-swap write of an inspection.
func (r *Postgres) SaveInspection(ctx context.Context, insp *domain.Inspection, expectedVersion int, newDisputes ...*domain.Dispute) error {
	docs, err := marshalNegotiation(insp)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE inspections SET
			inspector_id = $3,
			status = $4,
			pre_status = $5,
			post_status = $6,
			started_at = $7,
			completed_at = $8,
			cancelled_at = $9,
			cancel_reason = $10,
			general_notes = $11,
			inspector_notes = $12,
			owner_notes = $13,
			renter_notes = $14,
			location = $15,
			owner_pre_inspection = $16,
			renter_pre_review = $17,
			renter_discrepancy = $18,
			renter_post_inspection = $19,
			owner_post_review = $20,
			updated_at = $21,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		insp.ID, expectedVersion,
		insp.InspectorID, string(insp.Status), string(insp.PreStatus), string(insp.PostStatus),
		insp.StartedAt, insp.CompletedAt, insp.CancelledAt, insp.CancelReason,
		insp.GeneralNotes, insp.InspectorNotes, insp.OwnerNotes, insp.RenterNotes, insp.Location,
		docs.ownerPre, docs.renterPreReview, docs.renterDiscrepancy, docs.renterPost, docs.ownerPostReview,
		insp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, tx, "inspections", insp.ID, inspectionNotFoundMsg)
	}

	if err := upsertItems(ctx, tx, insp.Items); err != nil {
		return err
	}
	for _, d := range newDisputes {
		if err := insertDispute(ctx, tx, d); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit inspection: %w", err)
	}
	insp.Version = expectedVersion + 1
	return nil
}

// ListInspections returns one page of inspections with items and the total match count.
func (r *Postgres) ListInspections(ctx context.Context, filter InspectionFilter) ([]domain.Inspection, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.BookingID != nil {
		add("booking_id = ?", *filter.BookingID)
	}
	if filter.Status != nil {
		add("status = ?", string(*filter.Status))
	}
	if filter.Type != nil {
		add("inspection_type = ?", string(*filter.Type))
	}
	if filter.ParticipantID != nil {
		add("(owner_id = ? OR renter_id = ? OR inspector_id = ?)", *filter.ParticipantID)
	}

	query := `SELECT ` + inspectionColumns + `, COUNT(*) OVER() FROM inspections`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY scheduled_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var (
		result []domain.Inspection
		ids    []uuid.UUID
		total  int
	)
	for rows.Next() {
		insp, err := scanInspection(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan inspection: %w", err)
		}
		result = append(result, *insp)
		ids = append(ids, insp.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate inspections: %w", err)
	}

	if len(ids) > 0 {
		items, err := r.loadItems(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range result {
			result[i].Items = items[result[i].ID]
		}
	}
	return result, total, nil
}

// GetDispute loads a dispute.
func (r *Postgres) GetDispute(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM inspection_disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(disputeNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return d, nil
}

// CreateDispute inserts a standalone dispute.
func (r *Postgres) CreateDispute(ctx context.Context, d *domain.Dispute) error {
	return insertDispute(ctx, r.pool, d)
}

// SaveDispute performs the compare-and-swap write of a dispute.
func (r *Postgres) SaveDispute(ctx context.Context, d *domain.Dispute, expectedVersion int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inspection_disputes SET
			status = $3,
			assigned_to = $4,
			resolution_notes = $5,
			resolved_by = $6,
			resolved_at = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		d.ID, expectedVersion,
		string(d.Status), d.AssignedTo, d.ResolutionNotes, d.ResolvedBy, d.ResolvedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, r.pool, "inspection_disputes", d.ID, disputeNotFoundMsg)
	}
	d.Version = expectedVersion + 1
	return nil
}

// ListDisputes returns one page of disputes and the total match count.
func (r *Postgres) ListDisputes(ctx context.Context, filter DisputeFilter) ([]domain.Dispute, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.InspectionID != nil {
		add("inspection_id = ?", *filter.InspectionID)
	}
	if filter.ReviewStep != nil {
		add("review_step = ?", string(*filter.ReviewStep))
	}
	if filter.RaisedBy != nil {
		add("raised_by = ?", *filter.RaisedBy)
	}
	if filter.Status != nil {
		add("status = ?", string(*filter.Status))
	}
	if filter.Type != nil {
		add("dispute_type = ?", string(*filter.Type))
	}
	if filter.From != nil {
		add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		add("created_at < ?", *filter.To)
	}

	query := `SELECT ` + disputeColumns + `, COUNT(*) OVER() FROM inspection_disputes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var (
		result []domain.Dispute
		total  int
	)
	for rows.Next() {
		d, err := scanDispute(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dispute: %w", err)
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate disputes: %w", err)
	}
	return result, total, nil
}

// ---- helpers ----

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// staleOrMissing distinguishes a lost version race from a deleted row.
func (r *Postgres) staleOrMissing(ctx context.Context, q querier, table string, id uuid.UUID, notFoundMsg string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	if !exists {
		return apperr.NotFound(notFoundMsg)
	}
	return apperr.Conflict("record was modified by another request; reload and retry")
}

func (r *Postgres) loadItems(ctx context.Context, inspectionIDs []uuid.UUID) (map[uuid.UUID][]domain.InspectionItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, inspection_id, item_name, condition, description, photos, created_at, updated_at
		FROM inspection_items
		WHERE inspection_id = ANY($1)
		ORDER BY created_at, id`, inspectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load inspection items: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.InspectionItem, len(inspectionIDs))
	for rows.Next() {
		var (
			item      domain.InspectionItem
			condition string
		)
		if err := rows.Scan(&item.ID, &item.InspectionID, &item.ItemName, &condition, &item.Description,
			&item.Photos, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inspection item: %w", err)
		}
		item.Condition = domain.ItemCondition(condition)
		if item.Photos == nil {
			item.Photos = []string{}
		}
		out[item.InspectionID] = append(out[item.InspectionID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inspection items: %w", err)
	}
	return out, nil
}

func upsertItems(ctx context.Context, tx pgx.Tx, items []domain.InspectionItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO inspection_items (id, inspection_id, item_name, condition, description, photos, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				item_name = EXCLUDED.item_name,
				condition = EXCLUDED.condition,
				description = EXCLUDED.description,
				photos = EXCLUDED.photos,
				updated_at = EXCLUDED.updated_at
			WHERE inspection_items.inspection_id = EXCLUDED.inspection_id`,
			item.ID, item.InspectionID, item.ItemName, string(item.Condition), item.Description,
			item.Photos, item.CreatedAt, item.UpdatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to upsert inspection item: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to upsert inspection items: %w", err)
	}
	return nil
}

func insertDispute(ctx context.Context, q querier, d *domain.Dispute) error {
	var step *string
	if d.ReviewStep != "" {
		s := string(d.ReviewStep)
		step = &s
	}
	evidence := d.Evidence
	if evidence == nil {
		evidence = []string{}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO inspection_disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.InspectionID, step, d.RaisedBy, string(d.Type), d.Reason, evidence, d.EvidenceNotes,
		string(d.Status), d.AssignedTo, d.ResolutionNotes, d.ResolvedBy, d.ResolvedAt, d.Version,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("dispute already exists")
		}
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type negotiationDocs struct {
	ownerPre          []byte
	renterPreReview   []byte
	renterDiscrepancy []byte
	renterPost        []byte
	ownerPostReview   []byte
}

func marshalNegotiation(insp *domain.Inspection) (negotiationDocs, error) {
	var (
		docs negotiationDocs
		err  error
	)
	if docs.ownerPre, err = marshalNullable(insp.OwnerPre); err != nil {
		return docs, err
	}
	if docs.renterPreReview, err = marshalNullable(insp.RenterPreReview); err != nil {
		return docs, err
	}
	if docs.renterDiscrepancy, err = marshalNullable(insp.RenterDiscrepancy); err != nil {
		return docs, err
	}
	if docs.renterPost, err = marshalNullable(insp.RenterPost); err != nil {
		return docs, err
	}
	if docs.ownerPostReview, err = marshalNullable(insp.OwnerPostReview); err != nil {
		return docs, err
	}
	return docs, nil
}

// marshalNullable encodes v as JSON, or returns nil (SQL NULL) for a nil pointer.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode negotiation record: %w", err)
	}
	return b, nil
}

func unmarshalNullable[T any](raw []byte) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode negotiation record: %w", err)
	}
	return &v, nil
}

func scanInspection(row pgx.Row, extra ...any) (*domain.Inspection, error) {
	var (
		insp                                        domain.Inspection
		inspType, status, preStatus, postStatus     string
		ownerPre, preReview, discrepancy, post, rev []byte
	)
	dest := []any{
		&insp.ID, &insp.BookingID, &insp.ProductID, &insp.OwnerID, &insp.RenterID, &insp.InspectorID, &inspType,
		&status, &preStatus, &postStatus, &insp.ScheduledAt, &insp.StartedAt, &insp.CompletedAt, &insp.CancelledAt,
		&insp.CancelReason, &insp.GeneralNotes, &insp.InspectorNotes, &insp.OwnerNotes, &insp.RenterNotes, &insp.Location,
		&ownerPre, &preReview, &discrepancy, &post, &rev,
		&insp.Version, &insp.CreatedAt, &insp.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	insp.Type = domain.InspectionType(inspType)
	insp.Status = domain.Status(status)
	insp.PreStatus = domain.PreStatus(preStatus)
	insp.PostStatus = domain.PostStatus(postStatus)

	var err error
	if insp.OwnerPre, err = unmarshalNullable[domain.OwnerPreInspection](ownerPre); err != nil {
		return nil, err
	}
	if insp.RenterPreReview, err = unmarshalNullable[domain.RenterPreReview](preReview); err != nil {
		return nil, err
	}
	if insp.RenterDiscrepancy, err = unmarshalNullable[domain.RenterDiscrepancy](discrepancy); err != nil {
		return nil, err
	}
	if insp.RenterPost, err = unmarshalNullable[domain.RenterPostInspection](post); err != nil {
		return nil, err
	}
	if insp.OwnerPostReview, err = unmarshalNullable[domain.OwnerPostReview](rev); err != nil {
		return nil, err
	}
	return &insp, nil
}

func scanDispute(row pgx.Row, extra ...any) (*domain.Dispute, error) {
	var (
		d                   domain.Dispute
		step                *string
		disputeType, status string
	)
	dest := []any{
		&d.ID, &d.InspectionID, &step, &d.RaisedBy, &disputeType, &d.Reason, &d.Evidence, &d.EvidenceNotes,
		&status, &d.AssignedTo, &d.ResolutionNotes, &d.ResolvedBy, &d.ResolvedAt, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if step != nil {
		d.ReviewStep = domain.ReviewStep(*step)
	}
	d.Type = domain.DisputeType(disputeType)
	d.Status = domain.DisputeStatus(status)
	if d.Evidence == nil {
		d.Evidence = []string{}
	}
	return &d, nil
}
