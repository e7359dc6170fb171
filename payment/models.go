package payment

import "time"

// PayoutStatus tracks the transcriber payout lifecycle on a settled payment.
type PayoutStatus string

const (
	PayoutAwaitingCompletion PayoutStatus = "awaiting_completion"
	PayoutPending            PayoutStatus = "pending"
	PayoutCompleted          PayoutStatus = "completed"
	PayoutFailed             PayoutStatus = "failed"
)

// Payment is the immutable settlement record: what the payer was charged,
// what the platform ledger was credited after conversion, and what the payee
// earned. Exactly one successful Payment exists per negotiation.
type Payment struct {
	ID                  string
	NegotiationID       string
	PayerID             string
	PayeeID             string
	ChargedAmountMinor  int64
	ChargedCurrency     string
	CreditedAmountMinor int64
	CreditedCurrency    string
	EarningMinor        int64
	FXRate              float64
	Provider            string
	ProviderRef         string
	ProviderStatus      string
	PaidAt              time.Time
	PayoutStatus        PayoutStatus
	CreatedAt           time.Time
}

// TopicHired is published to both parties when settlement succeeds.
const TopicHired = "negotiation.hired"
