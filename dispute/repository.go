package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrForbidden = errors.New("dispute: forbidden")
	ErrBadStatus = errors.New("dispute: invalid status transition")
)

const disputeColumns = `d.id, d.negotiation_id, d.opened_by, d.reason, d.status::text, d.created_at, d.updated_at, d.resolved_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForUser returns disputes on negotiations the user participates in,
// optionally narrowed to one negotiation.
func (r *Repository) ListForUser(ctx context.Context, userID, negotiationID string) ([]Record, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM disputes d
		JOIN negotiations n ON n.id = d.negotiation_id
		WHERE (n.client_id = $1 OR n.transcriber_id = $1)
	`
	args := []any{userID}
	if negotiationID != "" {
		query += " AND d.negotiation_id = $2"
		args = append(args, negotiationID)
	}
	query += " ORDER BY d.created_at DESC"

	return r.list(ctx, query, args...)
}

// ListAll returns every dispute, optionally narrowed to one negotiation.
// Admin surface.
func (r *Repository) ListAll(ctx context.Context, negotiationID string) ([]Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes d`
	args := []any{}
	if negotiationID != "" {
		query += " WHERE d.negotiation_id = $1"
		args = append(args, negotiationID)
	}
	query += " ORDER BY d.created_at DESC"

	return r.list(ctx, query, args...)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.NegotiationID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Create opens a dispute on a negotiation the opener participates in. The
// ownership and status checks ride in the INSERT's source query, so an
// ineligible opener never sees a partial write.
func (r *Repository) Create(ctx context.Context, openerID, negotiationID, reason string) (Record, error) {
	query := `
		INSERT INTO disputes (negotiation_id, opened_by, reason)
		SELECT n.id, $2, $3
		FROM negotiations n
		WHERE n.id = $1
		  AND (n.client_id = $2 OR n.transcriber_id = $2)
		  AND n.status IN ('hired', 'completed')
		RETURNING id, negotiation_id, opened_by, reason, status::text, created_at, updated_at, resolved_at
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, negotiationID, openerID, reason).
		Scan(&rec.ID, &rec.NegotiationID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrForbidden
		}
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}
	return rec, nil
}

// Resolve marks a dispute resolved. Only callable through the admin surface.
func (r *Repository) Resolve(ctx context.Context, disputeID string) (Record, error) {
	query := `
		UPDATE disputes d
		SET status = 'resolved',
		    resolved_at = get_tx_timestamp(),
		    updated_at = get_tx_timestamp()
		WHERE d.id = $1 AND d.status <> 'resolved'
		RETURNING ` + disputeColumns

	var rec Record
	err := r.pool.QueryRow(ctx, query, disputeID).
		Scan(&rec.ID, &rec.NegotiationID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	var status Status
	if err := r.pool.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1`, disputeID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: resolve fetch: %w", err)
	}
	if status == StatusResolved {
		return Record{}, ErrBadStatus
	}
	return Record{}, ErrNotFound
}
