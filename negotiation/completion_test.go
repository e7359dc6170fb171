package negotiation

import (
	"context"
	"errors"
	"testing"
)

func TestComplete_ReleasesAndMarksPayout(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusHired})
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	comment := "fast and accurate"
	updated, err := svc.Complete(context.Background(), CompleteParams{
		ClientID:        "client-1",
		NegotiationID:   "n1",
		FeedbackRating:  5,
		FeedbackComment: &comment,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if updated.FeedbackRating == nil || *updated.FeedbackRating != 5 {
		t.Errorf("expected rating stored, got %v", updated.FeedbackRating)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(testNow) {
		t.Errorf("expected completion stamped at clock time, got %v", updated.CompletedAt)
	}
	if len(locker.released) != 1 || locker.released[0] != "trans-1" {
		t.Errorf("expected transcriber released, got %v", locker.released)
	}
	if len(payouts.marked) != 1 || payouts.marked[0] != "n1" {
		t.Errorf("expected payout marked pending, got %v", payouts.marked)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if len(outbox.entries) != 2 {
		t.Errorf("expected completion notification to both parties, got %+v", outbox.entries)
	}
	if len(counters.incremented) != 2 {
		t.Errorf("expected both lifetime counters incremented, got %v", counters.incremented)
	}
}

func TestComplete_OnlyHiringClient(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusHired})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	_, err := svc.Complete(context.Background(), CompleteParams{ClientID: "trans-1", NegotiationID: "n1", FeedbackRating: 4})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(locker.released) != 0 {
		t.Errorf("expected no release")
	}
}

func TestComplete_RequiresHired(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusAwaitingPayment})
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	_, err := svc.Complete(context.Background(), CompleteParams{ClientID: "client-1", NegotiationID: "n1", FeedbackRating: 4})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback")
	}
}

func TestComplete_RatingBounds(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusHired})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	for _, rating := range []int{0, 6, -1} {
		if _, err := svc.Complete(context.Background(), CompleteParams{ClientID: "client-1", NegotiationID: "n1", FeedbackRating: rating}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("rating %d: expected ErrInvalidInput, got %v", rating, err)
		}
	}
}

func TestComplete_CounterFailureDoesNotFailCompletion(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusHired})
	counters.err = errors.New("users table briefly unavailable")
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	updated, err := svc.Complete(context.Background(), CompleteParams{ClientID: "client-1", NegotiationID: "n1", FeedbackRating: 3})
	if err != nil {
		t.Fatalf("expected completion to succeed despite counter failure, got %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit before counter increments run")
	}
}
