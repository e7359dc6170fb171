package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrAlreadyAssigned signals the transcriber already holds a job.
	ErrAlreadyAssigned = errors.New("availability: transcriber already assigned")
	// ErrUnknownTranscriber signals the row to update does not exist.
	ErrUnknownTranscriber = errors.New("availability: transcriber not found")
)

// Coordinator is the single code path through which users.current_job_id is
// ever mutated. Both operations take the caller's transaction so the lock
// commits or rolls back together with the state that justified it.
type Coordinator struct{}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Acquire attaches the transcriber to the job. The write is conditional on no
// job being held, which makes acquisition linearizable per transcriber: of two
// racing settlements, exactly one sees a row updated.
func (c *Coordinator) Acquire(ctx context.Context, tx pgx.Tx, transcriberID, jobID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET current_job_id = $2,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND current_job_id IS NULL
	`, transcriberID, jobID)
	if err != nil {
		return fmt.Errorf("availability: acquire %s: %w", transcriberID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, transcriberID).Scan(&exists); err != nil {
			return fmt.Errorf("availability: acquire check %s: %w", transcriberID, err)
		}
		if !exists {
			return ErrUnknownTranscriber
		}
		return ErrAlreadyAssigned
	}
	return nil
}

// Release detaches the transcriber from whatever job they hold.
func (c *Coordinator) Release(ctx context.Context, tx pgx.Tx, transcriberID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET current_job_id = NULL,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
	`, transcriberID)
	if err != nil {
		return fmt.Errorf("availability: release %s: %w", transcriberID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownTranscriber
	}
	return nil
}
