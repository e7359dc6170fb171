package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Sink receives state-change events for one user. Delivery is at-least-once;
// consumers must tolerate duplicates.
type Sink interface {
	Publish(ctx context.Context, userID, eventType string, payload []byte) error
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Batcher is the outbox surface the dispatcher drives.
type Batcher interface {
	LockBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error)
	MarkSent(ctx context.Context, tx pgx.Tx, id int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id int64, maxAttempts int) error
}

const (
	defaultBatchSize   = 32
	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 8
)

// Dispatcher drains the outbox and fans messages out to every sink. Sink
// failures never roll back the state change that queued the message; they
// just spend one of its delivery attempts.
type Dispatcher struct {
	pool        TxBeginner
	outbox      Batcher
	sinks       []Sink
	logger      *slog.Logger
	batchSize   int
	interval    time.Duration
	maxAttempts int
}

func NewDispatcher(pool TxBeginner, outbox Batcher, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pool:        pool,
		outbox:      outbox,
		sinks:       sinks,
		logger:      logger,
		batchSize:   defaultBatchSize,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil {
				d.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain claims and delivers one batch. Exported so tests and the webhook
// handler can force a flush without waiting for the ticker.
func (d *Dispatcher) Drain(ctx context.Context) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("notify: begin drain tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch, err := d.outbox.LockBatch(ctx, tx, d.batchSize)
	if err != nil {
		return err
	}

	for _, msg := range batch {
		if err := d.deliver(ctx, msg); err != nil {
			d.logger.Warn("notification delivery failed",
				"outbox_id", msg.ID,
				"topic", msg.Topic,
				"recipient", msg.RecipientID,
				"attempts", msg.Attempts+1,
				"error", err)
			if err := d.outbox.MarkFailed(ctx, tx, msg.ID, d.maxAttempts); err != nil {
				return err
			}
			continue
		}
		if err := d.outbox.MarkSent(ctx, tx, msg.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("notify: commit drain tx: %w", err)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) error {
	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, msg.RecipientID, msg.Topic, msg.Payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
