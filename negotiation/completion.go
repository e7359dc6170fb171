package negotiation

import (
	"context"
	"fmt"
)

// CompleteParams carries the client's sign-off on a hired job.
type CompleteParams struct {
	ClientID        string
	NegotiationID   string
	FeedbackRating  int
	FeedbackComment *string
}

// Complete transitions a hired job to completed: stamps completion, stores
// feedback, releases the transcriber, and moves the payment's payout from
// awaiting_completion to pending, all inside one transaction. Counter
// increments for both parties run after commit and are best-effort.
func (s *Service) Complete(ctx context.Context, params CompleteParams) (Negotiation, error) {
	if params.FeedbackRating < 1 || params.FeedbackRating > 5 {
		return Negotiation{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, params.NegotiationID)
	if err != nil {
		return Negotiation{}, err
	}
	if rec.ClientID != params.ClientID {
		return Negotiation{}, ErrUnauthorized
	}
	if rec.Status != StatusHired {
		return Negotiation{}, ErrInvalidState
	}

	updated, err := s.repo.Complete(ctx, tx, params.NegotiationID, s.now(), params.FeedbackRating, params.FeedbackComment)
	if err != nil {
		return Negotiation{}, err
	}

	if err := s.locker.Release(ctx, tx, rec.TranscriberID); err != nil {
		return Negotiation{}, err
	}

	if err := s.payouts.MarkPayoutPending(ctx, tx, params.NegotiationID); err != nil {
		return Negotiation{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, updated.ID, "JOB_COMPLETED", params.ClientID, map[string]any{
		"feedback_rating": params.FeedbackRating,
	}); err != nil {
		return Negotiation{}, err
	}

	payload := map[string]any{
		"negotiation_id":  updated.ID,
		"feedback_rating": params.FeedbackRating,
	}
	if err := s.outbox.Enqueue(ctx, tx, rec.TranscriberID, TopicCompleted, payload); err != nil {
		return Negotiation{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, rec.ClientID, TopicCompleted, payload); err != nil {
		return Negotiation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: commit completion: %w", err)
	}

	// Lifetime counters are independently retryable and must not block the
	// client-visible completion.
	for _, userID := range []string{rec.ClientID, rec.TranscriberID} {
		if err := s.counters.IncrementCompletedJobs(ctx, userID); err != nil {
			s.logger.Warn("completed-job counter increment failed",
				"negotiation_id", updated.ID,
				"user_id", userID,
				"error", err)
		}
	}

	return updated, nil
}
