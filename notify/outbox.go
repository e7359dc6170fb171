package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is a transactional outbox entry awaiting delivery to one recipient.
type Message struct {
	ID          int64
	RecipientID string
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int
	CreatedAt   time.Time
}

// OutboxRepository stores notification intents in the same transaction as the
// state change that produced them, so an event is published iff the
// transition committed.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Enqueue appends a pending message inside the caller's transaction.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx pgx.Tx, recipientID, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal outbox payload: %w", err)
	}

	const q = `INSERT INTO outbox (recipient_id, topic, payload) VALUES ($1, $2, $3::jsonb)`
	if _, err := tx.Exec(ctx, q, recipientID, topic, body); err != nil {
		return fmt.Errorf("notify: enqueue outbox: %w", err)
	}
	return nil
}

// LockBatch claims up to limit pending messages inside the transaction.
// SKIP LOCKED keeps concurrent dispatchers from double-claiming a row while
// it is being delivered.
func (r *OutboxRepository) LockBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const q = `
		SELECT id, recipient_id, topic, payload, status, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: lock batch: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RecipientID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate outbox: %w", err)
	}
	return out, nil
}

// MarkSent finalises a delivered message.
func (r *OutboxRepository) MarkSent(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'sent', attempts = attempts + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("notify: mark sent: %w", err)
	}
	return nil
}

// MarkFailed counts a delivery attempt, parking the message once the attempt
// budget is spent.
func (r *OutboxRepository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, maxAttempts int) error {
	const q = `
		UPDATE outbox
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, q, id, maxAttempts); err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}
