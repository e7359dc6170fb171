package negotiation

// Status is the discriminant of the negotiation lifecycle. Records only move
// along the directed transitions below; every write is conditioned on the
// status observed at transaction time.
type Status string

const (
	StatusPending            Status = "pending"
	StatusTranscriberCounter Status = "transcriber_counter"
	StatusClientCounter      Status = "client_counter"
	StatusAwaitingPayment    Status = "accepted_awaiting_payment"
	StatusRejected           Status = "rejected"
	StatusCancelled          Status = "cancelled"
	StatusHired              Status = "hired"
	StatusCompleted          Status = "completed"
)

var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusTranscriberCounter: {},
		StatusAwaitingPayment:    {},
		StatusRejected:           {},
		StatusCancelled:          {},
	},
	StatusTranscriberCounter: {
		StatusClientCounter:   {},
		StatusAwaitingPayment: {},
		StatusRejected:        {},
		StatusCancelled:       {},
	},
	StatusClientCounter: {
		StatusTranscriberCounter: {},
		StatusAwaitingPayment:    {},
		StatusRejected:           {},
		StatusCancelled:          {},
	},
	StatusAwaitingPayment: {
		StatusHired:     {},
		StatusRejected:  {},
		StatusCancelled: {},
	},
	StatusHired: {
		StatusCompleted: {},
	},
	StatusRejected:  {},
	StatusCancelled: {},
	StatusCompleted: {},
}

// CanTransition reports whether the directed graph permits from -> to.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminal reports whether no further transitions leave the status.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// PrePayment reports whether the negotiation has not yet been settled.
// Cancellation and rejection are only permitted in these states.
func (s Status) PrePayment() bool {
	switch s {
	case StatusPending, StatusTranscriberCounter, StatusClientCounter, StatusAwaitingPayment:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}
