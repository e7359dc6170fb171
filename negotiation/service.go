package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scriptrelay/directory"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EligibilityChecker resolves whether a transcriber may receive proposals.
type EligibilityChecker interface {
	GetEligibility(ctx context.Context, userID string) (directory.Eligibility, error)
}

// OutboxWriter enqueues a notification for a recipient inside the caller's
// transaction, so the event is published iff the transition commits.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, recipientID, topic string, payload map[string]any) error
}

// Locker is the availability coordinator surface this package needs.
type Locker interface {
	Release(ctx context.Context, tx pgx.Tx, transcriberID string) error
}

// PayoutMarker advances the settled payment's payout state at completion.
type PayoutMarker interface {
	MarkPayoutPending(ctx context.Context, tx pgx.Tx, negotiationID string) error
}

// Counters increments lifetime completed-job counters. Calls are best-effort
// and happen outside the completion transaction.
type Counters interface {
	IncrementCompletedJobs(ctx context.Context, userID string) error
}

// Service validates and applies role-gated transitions over negotiations.
type Service struct {
	pool        TxBeginner
	repo        Store
	eligibility EligibilityChecker
	outbox      OutboxWriter
	locker      Locker
	payouts     PayoutMarker
	counters    Counters
	logger      *slog.Logger

	currency    string
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Store, eligibility EligibilityChecker, outbox OutboxWriter, locker Locker, payouts PayoutMarker, counters Counters, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		eligibility: eligibility,
		outbox:      outbox,
		locker:      locker,
		payouts:     payouts,
		counters:    counters,
		logger:      logger,
		currency:    currency,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProposeParams carries a client's initial offer to a transcriber.
type ProposeParams struct {
	ClientID      string
	TranscriberID string
	PriceMinor    int64
	DeadlineHours int
	Requirement   string
	Message       *string
	Attachment    *string
}

// Propose creates a pending negotiation after checking the transcriber is
// currently eligible for new offers.
func (s *Service) Propose(ctx context.Context, params ProposeParams) (Negotiation, error) {
	if params.ClientID == "" || params.TranscriberID == "" {
		return Negotiation{}, fmt.Errorf("%w: client and transcriber ids required", ErrInvalidInput)
	}
	if params.ClientID == params.TranscriberID {
		return Negotiation{}, fmt.Errorf("%w: client cannot hire themselves", ErrInvalidInput)
	}
	if params.PriceMinor <= 0 {
		return Negotiation{}, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if params.DeadlineHours <= 0 {
		return Negotiation{}, fmt.Errorf("%w: deadline must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(params.Requirement) == "" {
		return Negotiation{}, fmt.Errorf("%w: requirement text required", ErrInvalidInput)
	}

	elig, err := s.eligibility.GetEligibility(ctx, params.TranscriberID)
	if err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: check eligibility: %w", err)
	}
	if !elig.Eligible() {
		return Negotiation{}, ErrNotEligible
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	created, err := s.repo.Create(ctx, tx, Negotiation{
		ID:            s.idGenerator(),
		ClientID:      params.ClientID,
		TranscriberID: params.TranscriberID,
		Status:        StatusPending,
		Requirement:   params.Requirement,
		PriceMinor:    params.PriceMinor,
		Currency:      s.currency,
		DeadlineHours: params.DeadlineHours,
		DueAt:         now.Add(time.Duration(params.DeadlineHours) * time.Hour),
		ClientMessage: params.Message,
		Attachment:    params.Attachment,
	})
	if err != nil {
		return Negotiation{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, created.ID, "NEGOTIATION_PROPOSED", params.ClientID, map[string]any{
		"price_minor":    created.PriceMinor,
		"deadline_hours": created.DeadlineHours,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, created.TranscriberID, TopicProposed, map[string]any{
		"negotiation_id": created.ID,
		"client_id":      created.ClientID,
		"price_minor":    created.PriceMinor,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: commit propose: %w", err)
	}

	return created, nil
}

// Accept resolves the negotiation to accepted_awaiting_payment. A transcriber
// may accept from pending or client_counter; a client only from
// transcriber_counter.
func (s *Service) Accept(ctx context.Context, actorID, negotiationID string) (Negotiation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, negotiationID)
	if err != nil {
		return Negotiation{}, err
	}

	side, err := rec.party(actorID)
	if err != nil {
		return Negotiation{}, err
	}
	if !acceptAllowed(side, rec.Status) {
		return Negotiation{}, ErrInvalidState
	}

	dueAt := s.now().Add(time.Duration(rec.DeadlineHours) * time.Hour)
	updated, err := s.repo.Accept(ctx, tx, negotiationID, rec.Status, dueAt)
	if err != nil {
		return Negotiation{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, updated.ID, "NEGOTIATION_ACCEPTED", actorID, map[string]any{
		"previous_status": rec.Status,
		"price_minor":     updated.PriceMinor,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, rec.counterpart(actorID), TopicAccepted, map[string]any{
		"negotiation_id": updated.ID,
		"price_minor":    updated.PriceMinor,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: commit accept: %w", err)
	}

	return updated, nil
}

// CounterParams carries a counter-offer from either side.
type CounterParams struct {
	ActorID       string
	NegotiationID string
	PriceMinor    int64
	Message       *string
	DeadlineHours *int
	Attachment    *string
}

// Counter rewrites the price and flips the record to the countering side.
// Deadline and attachment carry over from the prior value unless resupplied.
func (s *Service) Counter(ctx context.Context, params CounterParams) (Negotiation, error) {
	if params.PriceMinor <= 0 {
		return Negotiation{}, fmt.Errorf("%w: counter price must be positive", ErrInvalidInput)
	}
	if params.DeadlineHours != nil && *params.DeadlineHours <= 0 {
		return Negotiation{}, fmt.Errorf("%w: deadline must be positive", ErrInvalidInput)
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

	side, err := rec.party(params.ActorID)
	if err != nil {
		return Negotiation{}, err
	}

	var next Status
	switch {
	case side == sideTranscriber && (rec.Status == StatusPending || rec.Status == StatusClientCounter):
		next = StatusTranscriberCounter
	case side == sideClient && rec.Status == StatusTranscriberCounter:
		next = StatusClientCounter
	default:
		return Negotiation{}, ErrInvalidState
	}

	update := CounterUpdate{
		ID:            params.NegotiationID,
		From:          rec.Status,
		To:            next,
		PriceMinor:    params.PriceMinor,
		DeadlineHours: params.DeadlineHours,
		Attachment:    params.Attachment,
	}
	if params.DeadlineHours != nil {
		due := s.now().Add(time.Duration(*params.DeadlineHours) * time.Hour)
		update.DueAt = &due
	}
	if side == sideClient {
		update.ClientMessage = params.Message
	} else {
		update.TranscriberMessage = params.Message
	}

	updated, err := s.repo.ApplyCounter(ctx, tx, update)
	if err != nil {
		return Negotiation{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, updated.ID, "NEGOTIATION_COUNTERED", params.ActorID, map[string]any{
		"previous_status": rec.Status,
		"next_status":     next,
		"price_minor":     updated.PriceMinor,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, rec.counterpart(params.ActorID), TopicCountered, map[string]any{
		"negotiation_id": updated.ID,
		"price_minor":    updated.PriceMinor,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: commit counter: %w", err)
	}

	return updated, nil
}

// Reject transitions any pre-payment negotiation to rejected, recording the
// reason against the rejecting side.
func (s *Service) Reject(ctx context.Context, actorID, negotiationID, reason string) (Negotiation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, negotiationID)
	if err != nil {
		return Negotiation{}, err
	}

	side, err := rec.party(actorID)
	if err != nil {
		return Negotiation{}, err
	}
	if !rec.Status.PrePayment() {
		return Negotiation{}, ErrInvalidState
	}

	updated, err := s.repo.Reject(ctx, tx, negotiationID, rec.Status, reason, string(side))
	if err != nil {
		return Negotiation{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, updated.ID, "NEGOTIATION_REJECTED", actorID, map[string]any{
		"previous_status": rec.Status,
		"rejected_by":     side,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, rec.counterpart(actorID), TopicRejected, map[string]any{
		"negotiation_id": updated.ID,
		"reason":         reason,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: commit reject: %w", err)
	}

	return updated, nil
}

// Cancel is the client-initiated withdrawal, valid any time before payment.
// A cancel racing an in-flight verification loses to whichever wins the
// compare-and-set.
func (s *Service) Cancel(ctx context.Context, clientID, negotiationID string) (Negotiation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, negotiationID)
	if err != nil {
		return Negotiation{}, err
	}
	if rec.ClientID != clientID {
		return Negotiation{}, ErrUnauthorized
	}
	if !rec.Status.PrePayment() {
		return Negotiation{}, ErrInvalidState
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, negotiationID, rec.Status, StatusCancelled)
	if err != nil {
		return Negotiation{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, updated.ID, "NEGOTIATION_CANCELLED", clientID, map[string]any{
		"previous_status": rec.Status,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, rec.TranscriberID, TopicCancelled, map[string]any{
		"negotiation_id": updated.ID,
	}); err != nil {
		return Negotiation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Negotiation{}, fmt.Errorf("negotiation: commit cancel: %w", err)
	}

	return updated, nil
}

// Delete removes a negotiation. The proposing client may delete any
// pre-payment or terminal record; hired/completed records require the admin
// override, which releases the transcriber before the row goes away.
func (s *Service) Delete(ctx context.Context, actorID string, admin bool, negotiationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("negotiation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, negotiationID)
	if err != nil {
		return err
	}

	inFlight := rec.Status == StatusHired
	if inFlight || rec.Status == StatusCompleted {
		if !admin {
			return ErrUnauthorized
		}
	} else if rec.ClientID != actorID && !admin {
		return ErrUnauthorized
	}

	if inFlight {
		if err := s.locker.Release(ctx, tx, rec.TranscriberID); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, tx, negotiationID); err != nil {
		return err
	}

	if err := s.outbox.Enqueue(ctx, tx, rec.TranscriberID, TopicDeleted, map[string]any{
		"negotiation_id": rec.ID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("negotiation: commit delete: %w", err)
	}

	return nil
}

// Get returns a negotiation to one of its parties (or an admin).
func (s *Service) Get(ctx context.Context, actorID string, admin bool, negotiationID string) (Negotiation, error) {
	rec, err := s.repo.Get(ctx, negotiationID)
	if err != nil {
		return Negotiation{}, err
	}
	if !admin && rec.ClientID != actorID && rec.TranscriberID != actorID {
		return Negotiation{}, ErrUnauthorized
	}
	return rec, nil
}

// ListForUser returns the negotiations the user participates in.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]Negotiation, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}

type side string

const (
	sideClient      side = "client"
	sideTranscriber side = "transcriber"
)

func (n Negotiation) party(actorID string) (side, error) {
	switch actorID {
	case n.ClientID:
		return sideClient, nil
	case n.TranscriberID:
		return sideTranscriber, nil
	default:
		return "", ErrUnauthorized
	}
}

func (n Negotiation) counterpart(actorID string) string {
	if actorID == n.ClientID {
		return n.TranscriberID
	}
	return n.ClientID
}

func acceptAllowed(actor side, current Status) bool {
	switch actor {
	case sideTranscriber:
		return current == StatusPending || current == StatusClientCounter
	case sideClient:
		return current == StatusTranscriberCounter
	default:
		return false
	}
}
