package payment

import (
	"fmt"
	"math"
)

// Split is the configured payout function mapping a credited amount to the
// transcriber's earning. The fraction is product configuration, not a
// constant of the system.
type Split struct {
	fraction float64
}

func NewSplit(fraction float64) (Split, error) {
	if fraction <= 0 || fraction >= 1 {
		return Split{}, fmt.Errorf("payment: payout split must be in (0,1), got %v", fraction)
	}
	return Split{fraction: fraction}, nil
}

// EarningFor computes the payee's earning in minor units, rounded half up.
func (s Split) EarningFor(creditedMinor int64) int64 {
	return int64(math.Round(float64(creditedMinor) * s.fraction))
}
