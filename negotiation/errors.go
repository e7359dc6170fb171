package negotiation

import "errors"

var (
	// ErrNotFound is returned when no negotiation exists for the identifier.
	ErrNotFound = errors.New("negotiation: not found")
	// ErrNotEligible signals the transcriber cannot receive new proposals.
	ErrNotEligible = errors.New("negotiation: transcriber not eligible")
	// ErrDuplicatePending signals a pending negotiation already exists for the pair.
	ErrDuplicatePending = errors.New("negotiation: pending negotiation already exists for pair")
	// ErrInvalidState signals a transition attempted from a non-matching state,
	// including lost compare-and-set races.
	ErrInvalidState = errors.New("negotiation: invalid state for transition")
	// ErrUnauthorized signals the actor is not the party the operation is gated to.
	ErrUnauthorized = errors.New("negotiation: actor is not a party to this negotiation")
	// ErrInvalidInput signals malformed operation parameters.
	ErrInvalidInput = errors.New("negotiation: invalid input")
)
