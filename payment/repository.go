package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateSettlement signals a Payment already exists for the
// negotiation. The unique constraint is what makes verification safe under
// concurrent duplicate calls.
var ErrDuplicateSettlement = errors.New("payment: negotiation already settled")

const paymentColumns = `id, negotiation_id, payer_id, payee_id, charged_amount_minor, charged_currency, credited_amount_minor, credited_currency, earning_minor, fx_rate, provider, provider_ref, provider_status, paid_at, payout_status::text, created_at`

// Store defines the payment data access the settlement engine composes into
// its transaction.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, p Payment) (Payment, error)
	GetByNegotiation(ctx context.Context, negotiationID string) (Payment, error)
	GetByNegotiationTx(ctx context.Context, tx pgx.Tx, negotiationID string) (Payment, error)
}

// PGRepository implements Store backed by PostgreSQL. It also satisfies the
// completion handler's PayoutMarker.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert writes the immutable settlement record.
func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, p Payment) (Payment, error) {
	insertSQL := `
		INSERT INTO payments (id, negotiation_id, payer_id, payee_id, charged_amount_minor, charged_currency, credited_amount_minor, credited_currency, earning_minor, fx_rate, provider, provider_ref, provider_status, paid_at, payout_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::payout_status)
		RETURNING ` + paymentColumns

	row := tx.QueryRow(ctx, insertSQL,
		p.ID,
		p.NegotiationID,
		p.PayerID,
		p.PayeeID,
		p.ChargedAmountMinor,
		p.ChargedCurrency,
		p.CreditedAmountMinor,
		p.CreditedCurrency,
		p.EarningMinor,
		p.FXRate,
		p.Provider,
		p.ProviderRef,
		p.ProviderStatus,
		p.PaidAt,
		p.PayoutStatus,
	)

	created, err := scanPayment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Payment{}, ErrDuplicateSettlement
		}
		return Payment{}, fmt.Errorf("payment: insert: %w", err)
	}
	return created, nil
}

// GetByNegotiation fetches the settlement record for a negotiation.
func (r *PGRepository) GetByNegotiation(ctx context.Context, negotiationID string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE negotiation_id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, negotiationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: get by negotiation: %w", err)
	}
	return p, nil
}

// GetByNegotiationTx is the in-transaction variant of GetByNegotiation.
func (r *PGRepository) GetByNegotiationTx(ctx context.Context, tx pgx.Tx, negotiationID string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE negotiation_id = $1`

	p, err := scanPayment(tx.QueryRow(ctx, query, negotiationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: get by negotiation: %w", err)
	}
	return p, nil
}

// MarkPayoutPending advances the payout from awaiting_completion to pending
// inside the completion transaction.
func (r *PGRepository) MarkPayoutPending(ctx context.Context, tx pgx.Tx, negotiationID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET payout_status = 'pending'
		WHERE negotiation_id = $1 AND payout_status = 'awaiting_completion'
	`, negotiationID)
	if err != nil {
		return fmt.Errorf("payment: mark payout pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment: no payout awaiting completion for negotiation %s", negotiationID)
	}
	return nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.NegotiationID,
		&p.PayerID,
		&p.PayeeID,
		&p.ChargedAmountMinor,
		&p.ChargedCurrency,
		&p.CreditedAmountMinor,
		&p.CreditedCurrency,
		&p.EarningMinor,
		&p.FXRate,
		&p.Provider,
		&p.ProviderRef,
		&p.ProviderStatus,
		&p.PaidAt,
		&p.PayoutStatus,
		&p.CreatedAt,
	)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}
