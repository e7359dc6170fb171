package payment

import (
	"fmt"
	"math"
	"strings"
)

// amountTolerance is half the smallest currency unit: two amounts are the
// same price when they agree within it after conversion.
const amountTolerance = 0.5

// Rates is a fixed exchange-rate snapshot mapping a payment currency to the
// number of canonical minor units one of its minor units is worth. The
// canonical currency maps to 1.
type Rates struct {
	canonical string
	byCode    map[string]float64
}

func NewRates(canonical string, byCode map[string]float64) Rates {
	rates := make(map[string]float64, len(byCode)+1)
	for code, rate := range byCode {
		rates[strings.ToUpper(code)] = rate
	}
	canonical = strings.ToUpper(canonical)
	rates[canonical] = 1
	return Rates{canonical: canonical, byCode: rates}
}

// Canonical returns the platform's pricing currency.
func (r Rates) Canonical() string { return r.canonical }

// Rate returns the conversion rate for a currency.
func (r Rates) Rate(currency string) (float64, error) {
	rate, ok := r.byCode[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("payment: no exchange rate for currency %q", currency)
	}
	return rate, nil
}

// Normalize converts an amount in the given currency's minor units into
// canonical minor units. Raw cross-currency amounts are never compared
// without passing through here first.
func (r Rates) Normalize(amountMinor int64, currency string) (float64, error) {
	rate, err := r.Rate(currency)
	if err != nil {
		return 0, err
	}
	return float64(amountMinor) * rate, nil
}

// SamePrice reports whether a normalized amount matches an agreed price
// within the tolerance of half a minor unit.
func SamePrice(normalized float64, agreedMinor int64) bool {
	return math.Abs(normalized-float64(agreedMinor)) <= amountTolerance
}
