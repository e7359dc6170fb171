package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scriptrelay/negotiation"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NegotiationStore is the slice of negotiation data access settlement needs.
type NegotiationStore interface {
	Get(ctx context.Context, id string) (negotiation.Negotiation, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (negotiation.Negotiation, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to negotiation.Status) (negotiation.Negotiation, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, negotiationID, eventType string, actorID string, payload map[string]any) error
}

// Locker acquires the transcriber inside the settlement transaction.
type Locker interface {
	Acquire(ctx context.Context, tx pgx.Tx, transcriberID, jobID string) error
}

// OutboxWriter enqueues notifications in the settlement transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, recipientID, topic string, payload map[string]any) error
}

// Service is the settlement engine: it initialises charges for accepted
// negotiations and verifies their completion, transitioning the negotiation
// to hired and locking the transcriber in one durable unit.
type Service struct {
	pool      TxBeginner
	payments  Store
	negs      NegotiationStore
	locker    Locker
	outbox    OutboxWriter
	providers *Registry
	rates     Rates
	split     Split
	logger    *slog.Logger

	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, payments Store, negs NegotiationStore, locker Locker, outbox OutboxWriter, providers *Registry, rates Rates, split Split, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:        pool,
		payments:    payments,
		negs:        negs,
		locker:      locker,
		outbox:      outbox,
		providers:   providers,
		rates:       rates,
		split:       split,
		logger:      logger,
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

// MakeReference builds the provider transaction reference. It doubles as the
// idempotency key for verification retries.
func MakeReference(negotiationID string, at time.Time) string {
	return fmt.Sprintf("TRX-%s-%d", negotiationID, at.Unix())
}

// ParseReference recovers the negotiation id from a transaction reference.
func ParseReference(reference string) (string, bool) {
	rest, ok := strings.CutPrefix(reference, "TRX-")
	if !ok {
		return "", false
	}
	idx := strings.LastIndex(rest, "-")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}

// InitializeParams carries a client's request to pay for an accepted
// negotiation, possibly in a non-canonical currency.
type InitializeParams struct {
	NegotiationID string
	ActorID       string
	CustomerEmail string
	AmountMinor   int64
	Currency      string
	Method        string
}

// Initialize produces a provider charge handle for an accepted negotiation.
// It mutates nothing: the negotiation only moves once the charge verifies.
func (s *Service) Initialize(ctx context.Context, params InitializeParams) (ChargeHandle, error) {
	rec, err := s.negs.Get(ctx, params.NegotiationID)
	if err != nil {
		return ChargeHandle{}, err
	}
	if rec.ClientID != params.ActorID {
		return ChargeHandle{}, negotiation.ErrUnauthorized
	}
	if rec.Status != negotiation.StatusAwaitingPayment {
		return ChargeHandle{}, negotiation.ErrInvalidState
	}

	normalized, err := s.rates.Normalize(params.AmountMinor, params.Currency)
	if err != nil {
		return ChargeHandle{}, fmt.Errorf("%w: %v", ErrAmountMismatch, err)
	}
	if !SamePrice(normalized, rec.PriceMinor) {
		return ChargeHandle{}, ErrAmountMismatch
	}

	provider, err := s.providers.Get(params.Method)
	if err != nil {
		return ChargeHandle{}, err
	}

	handle, err := provider.InitializeCharge(ctx, InitializeChargeParams{
		Reference:     MakeReference(rec.ID, s.now()),
		AmountMinor:   params.AmountMinor,
		Currency:      params.Currency,
		CustomerEmail: params.CustomerEmail,
		Metadata: map[string]any{
			"negotiation_id": rec.ID,
			"client_id":      rec.ClientID,
			"transcriber_id": rec.TranscriberID,
		},
	})
	if err != nil {
		return ChargeHandle{}, err
	}

	return handle, nil
}

// Verify settles a charge on behalf of a caller polling the payment outcome.
// Only the negotiation's parties (or an admin) may invoke it: the settlement
// record carries the counterparty's amounts and provider reference.
func (s *Service) Verify(ctx context.Context, actorID string, admin bool, method, reference, negotiationID string) (Payment, error) {
	rec, err := s.negs.Get(ctx, negotiationID)
	if err != nil {
		return Payment{}, err
	}
	if !admin && rec.ClientID != actorID && rec.TranscriberID != actorID {
		return Payment{}, negotiation.ErrUnauthorized
	}
	return s.settle(ctx, rec, method, reference)
}

// VerifyWebhook settles a charge pushed by the provider. There is no user
// identity on this path; the transport authenticates it by signature.
func (s *Service) VerifyWebhook(ctx context.Context, method, reference, negotiationID string) (Payment, error) {
	rec, err := s.negs.Get(ctx, negotiationID)
	if err != nil {
		return Payment{}, err
	}
	return s.settle(ctx, rec, method, reference)
}

// settle fetches the provider-reported outcome, reconciles the amount through
// the stored exchange rate, writes the Payment, transitions the negotiation to
// hired, and locks the transcriber in a single transaction. It is idempotent
// under the provider reference: a negotiation that is already hired returns
// its existing Payment without a second charge.
func (s *Service) settle(ctx context.Context, rec negotiation.Negotiation, method, reference string) (Payment, error) {
	// Fast path for duplicate webhooks/polls: no provider round-trip needed.
	if rec.Status == negotiation.StatusHired {
		return s.payments.GetByNegotiation(ctx, rec.ID)
	}
	if rec.Status != negotiation.StatusAwaitingPayment {
		return Payment{}, negotiation.ErrInvalidState
	}

	provider, err := s.providers.Get(method)
	if err != nil {
		return Payment{}, err
	}

	status, err := provider.VerifyCharge(ctx, reference)
	if err != nil {
		return Payment{}, err
	}
	if !status.Success {
		return Payment{}, fmt.Errorf("%w: provider reported %q", ErrPaymentNotSuccessful, status.Status)
	}

	rate, err := s.rates.Rate(status.Currency)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrAmountMismatch, err)
	}
	normalized := float64(status.AmountMinor) * rate
	if !SamePrice(normalized, rec.PriceMinor) {
		return Payment{}, fmt.Errorf("%w: charged %d %s converts to %.2f, agreed %d %s",
			ErrAmountMismatch, status.AmountMinor, status.Currency, normalized, rec.PriceMinor, rec.Currency)
	}
	creditedMinor := int64(math.Round(normalized))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.negs.GetForUpdate(ctx, tx, rec.ID)
	if err != nil {
		return Payment{}, err
	}
	// Re-check under the row lock: a concurrent verify may have settled while
	// we were talking to the provider.
	if locked.Status == negotiation.StatusHired {
		return s.payments.GetByNegotiationTx(ctx, tx, rec.ID)
	}
	if locked.Status != negotiation.StatusAwaitingPayment {
		return Payment{}, negotiation.ErrInvalidState
	}

	paidAt := status.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	created, err := s.payments.Insert(ctx, tx, Payment{
		ID:                  s.idGenerator(),
		NegotiationID:       locked.ID,
		PayerID:             locked.ClientID,
		PayeeID:             locked.TranscriberID,
		ChargedAmountMinor:  status.AmountMinor,
		ChargedCurrency:     strings.ToUpper(status.Currency),
		CreditedAmountMinor: creditedMinor,
		CreditedCurrency:    s.rates.Canonical(),
		EarningMinor:        s.split.EarningFor(creditedMinor),
		FXRate:              rate,
		Provider:            provider.Name(),
		ProviderRef:         reference,
		ProviderStatus:      status.Status,
		PaidAt:              paidAt,
		PayoutStatus:        PayoutAwaitingCompletion,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSettlement) {
			return s.payments.GetByNegotiationTx(ctx, tx, rec.ID)
		}
		return Payment{}, err
	}

	if _, err := s.negs.UpdateStatus(ctx, tx, locked.ID, negotiation.StatusAwaitingPayment, negotiation.StatusHired); err != nil {
		return Payment{}, err
	}

	if err := s.locker.Acquire(ctx, tx, locked.TranscriberID, locked.ID); err != nil {
		return Payment{}, err
	}

	if err := s.negs.AppendEvent(ctx, tx, locked.ID, "PAYMENT_VERIFIED", locked.ClientID, map[string]any{
		"provider_ref":          reference,
		"charged_amount_minor":  created.ChargedAmountMinor,
		"charged_currency":      created.ChargedCurrency,
		"credited_amount_minor": created.CreditedAmountMinor,
		"fx_rate":               created.FXRate,
	}); err != nil {
		return Payment{}, err
	}

	payload := map[string]any{
		"negotiation_id": locked.ID,
		"price_minor":    locked.PriceMinor,
		"due_at":         locked.DueAt.UTC(),
	}
	if err := s.outbox.Enqueue(ctx, tx, locked.TranscriberID, TopicHired, payload); err != nil {
		return Payment{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, locked.ClientID, TopicHired, payload); err != nil {
		return Payment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		// The reference stays valid: re-running Verify with it converges
		// without a second charge.
		return Payment{}, fmt.Errorf("payment: commit settlement: %w", err)
	}

	return created, nil
}

// GetByNegotiation exposes the settlement record for a negotiation's parties.
func (s *Service) GetByNegotiation(ctx context.Context, actorID string, admin bool, negotiationID string) (Payment, error) {
	rec, err := s.negs.Get(ctx, negotiationID)
	if err != nil {
		return Payment{}, err
	}
	if !admin && rec.ClientID != actorID && rec.TranscriberID != actorID {
		return Payment{}, negotiation.ErrUnauthorized
	}
	return s.payments.GetByNegotiation(ctx, negotiationID)
}
