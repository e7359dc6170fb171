package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const negotiationColumns = `id, client_id, transcriber_id, status::text, requirement, price_minor, currency, deadline_hours, due_at, client_message, transcriber_message, reject_reason, rejected_by::text, attachment, feedback_rating, feedback_comment, completed_at, created_at, updated_at`

// Store defines the data access the service composes into its transactions.
type Store interface {
	Create(ctx context.Context, tx pgx.Tx, n Negotiation) (Negotiation, error)
	Get(ctx context.Context, id string) (Negotiation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Negotiation, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Negotiation, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status) (Negotiation, error)
	Accept(ctx context.Context, tx pgx.Tx, id string, from Status, dueAt time.Time) (Negotiation, error)
	ApplyCounter(ctx context.Context, tx pgx.Tx, params CounterUpdate) (Negotiation, error)
	Reject(ctx context.Context, tx pgx.Tx, id string, from Status, reason string, rejectedBy string) (Negotiation, error)
	Complete(ctx context.Context, tx pgx.Tx, id string, completedAt time.Time, rating int, comment *string) (Negotiation, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) error
	AppendEvent(ctx context.Context, tx pgx.Tx, negotiationID, eventType string, actorID string, payload map[string]any) error
}

// CounterUpdate enumerates the fields rewritten by a counter-offer. Nil
// pointers keep the prior value, which is how attachments and deadlines are
// carried across alternating counters by default.
type CounterUpdate struct {
	ID                 string
	From               Status
	To                 Status
	PriceMinor         int64
	DeadlineHours      *int
	DueAt              *time.Time
	ClientMessage      *string
	TranscriberMessage *string
	Attachment         *string
}

// PGRepository implements Store backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a fresh pending negotiation. The partial unique index on
// (client_id, transcriber_id) WHERE status='pending' turns a duplicate
// proposal into ErrDuplicatePending.
func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, n Negotiation) (Negotiation, error) {
	insertSQL := `
		INSERT INTO negotiations (id, client_id, transcriber_id, status, requirement, price_minor, currency, deadline_hours, due_at, client_message, attachment)
		VALUES ($1, $2, $3, $4::negotiation_status, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + negotiationColumns

	row := tx.QueryRow(ctx, insertSQL,
		n.ID,
		n.ClientID,
		n.TranscriberID,
		n.Status,
		n.Requirement,
		n.PriceMinor,
		n.Currency,
		n.DeadlineHours,
		n.DueAt,
		n.ClientMessage,
		n.Attachment,
	)

	created, err := scanNegotiation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Negotiation{}, ErrDuplicatePending
		}
		return Negotiation{}, fmt.Errorf("negotiation: create: %w", err)
	}
	return created, nil
}

// GetForUpdate loads a negotiation with a row lock, serialising concurrent
// transitions on the same record.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negotiations WHERE id = $1 FOR UPDATE`

	n, err := scanNegotiation(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrNotFound
		}
		return Negotiation{}, fmt.Errorf("negotiation: get for update: %w", err)
	}
	return n, nil
}

// Get fetches a negotiation without locking.
func (r *PGRepository) Get(ctx context.Context, id string) (Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negotiations WHERE id = $1`

	n, err := scanNegotiation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrNotFound
		}
		return Negotiation{}, fmt.Errorf("negotiation: get: %w", err)
	}
	return n, nil
}

// ListForUser returns negotiations where the user is either party, newest first.
func (r *PGRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Negotiation, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT ` + negotiationColumns + `
		FROM negotiations
		WHERE client_id = $1 OR transcriber_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("negotiation: list for user: %w", err)
	}
	defer rows.Close()

	out := make([]Negotiation, 0, limit)
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, fmt.Errorf("negotiation: scan list row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("negotiation: iterate list: %w", err)
	}
	return out, nil
}

// UpdateStatus is the compare-and-set primitive: the write only lands when the
// status still equals the one the caller observed. A losing writer gets
// ErrInvalidState.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status) (Negotiation, error) {
	updateSQL := `
		UPDATE negotiations
		SET status = $3::negotiation_status,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = $2::negotiation_status
		RETURNING ` + negotiationColumns

	n, err := scanNegotiation(tx.QueryRow(ctx, updateSQL, id, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrInvalidState
		}
		return Negotiation{}, fmt.Errorf("negotiation: update status: %w", err)
	}
	return n, nil
}

// Accept moves the record to accepted_awaiting_payment and re-derives the due
// date from the deadline as of acceptance time.
func (r *PGRepository) Accept(ctx context.Context, tx pgx.Tx, id string, from Status, dueAt time.Time) (Negotiation, error) {
	updateSQL := `
		UPDATE negotiations
		SET status = 'accepted_awaiting_payment',
		    due_at = $3,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = $2::negotiation_status
		RETURNING ` + negotiationColumns

	n, err := scanNegotiation(tx.QueryRow(ctx, updateSQL, id, from, dueAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrInvalidState
		}
		return Negotiation{}, fmt.Errorf("negotiation: accept: %w", err)
	}
	return n, nil
}

// ApplyCounter rewrites the price and flips the side, keeping deadline,
// attachment, and messages unless new values were supplied.
func (r *PGRepository) ApplyCounter(ctx context.Context, tx pgx.Tx, params CounterUpdate) (Negotiation, error) {
	updateSQL := `
		UPDATE negotiations
		SET status = $3::negotiation_status,
		    price_minor = $4,
		    deadline_hours = COALESCE($5, deadline_hours),
		    due_at = COALESCE($6, due_at),
		    client_message = COALESCE($7, client_message),
		    transcriber_message = COALESCE($8, transcriber_message),
		    attachment = COALESCE($9, attachment),
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = $2::negotiation_status
		RETURNING ` + negotiationColumns

	n, err := scanNegotiation(tx.QueryRow(ctx, updateSQL,
		params.ID,
		params.From,
		params.To,
		params.PriceMinor,
		params.DeadlineHours,
		params.DueAt,
		params.ClientMessage,
		params.TranscriberMessage,
		params.Attachment,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrInvalidState
		}
		return Negotiation{}, fmt.Errorf("negotiation: apply counter: %w", err)
	}
	return n, nil
}

// Reject stores the reason against the rejecting side while transitioning.
func (r *PGRepository) Reject(ctx context.Context, tx pgx.Tx, id string, from Status, reason string, rejectedBy string) (Negotiation, error) {
	updateSQL := `
		UPDATE negotiations
		SET status = 'rejected',
		    reject_reason = $3,
		    rejected_by = $4::user_role,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = $2::negotiation_status
		RETURNING ` + negotiationColumns

	n, err := scanNegotiation(tx.QueryRow(ctx, updateSQL, id, from, nullableString(reason), rejectedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrInvalidState
		}
		return Negotiation{}, fmt.Errorf("negotiation: reject: %w", err)
	}
	return n, nil
}

// Complete stamps completion and feedback, conditioned on the job being hired.
func (r *PGRepository) Complete(ctx context.Context, tx pgx.Tx, id string, completedAt time.Time, rating int, comment *string) (Negotiation, error) {
	updateSQL := `
		UPDATE negotiations
		SET status = 'completed',
		    completed_at = $2,
		    feedback_rating = $3,
		    feedback_comment = $4,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = 'hired'
		RETURNING ` + negotiationColumns

	n, err := scanNegotiation(tx.QueryRow(ctx, updateSQL, id, completedAt, rating, comment))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Negotiation{}, ErrInvalidState
		}
		return Negotiation{}, fmt.Errorf("negotiation: complete: %w", err)
	}
	return n, nil
}

// Delete removes the record. History events cascade with it.
func (r *PGRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM negotiations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("negotiation: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent appends an immutable history event inside the caller's transaction.
func (r *PGRepository) AppendEvent(ctx context.Context, tx pgx.Tx, negotiationID, eventType string, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("negotiation: marshal event payload: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const insertSQL = `
		INSERT INTO negotiation_events (negotiation_id, type, payload, actor_id)
		VALUES ($1, $2, $3::jsonb, $4::uuid)
	`
	if _, err := tx.Exec(ctx, insertSQL, negotiationID, eventType, body, actor); err != nil {
		return fmt.Errorf("negotiation: insert event: %w", err)
	}
	return nil
}

func scanNegotiation(row pgx.Row) (Negotiation, error) {
	var n Negotiation
	err := row.Scan(
		&n.ID,
		&n.ClientID,
		&n.TranscriberID,
		&n.Status,
		&n.Requirement,
		&n.PriceMinor,
		&n.Currency,
		&n.DeadlineHours,
		&n.DueAt,
		&n.ClientMessage,
		&n.TranscriberMessage,
		&n.RejectReason,
		&n.RejectedBy,
		&n.Attachment,
		&n.FeedbackRating,
		&n.FeedbackComment,
		&n.CompletedAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return Negotiation{}, err
	}
	return n, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
