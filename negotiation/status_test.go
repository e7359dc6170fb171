package negotiation

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusTranscriberCounter},
		{StatusPending, StatusAwaitingPayment},
		{StatusPending, StatusRejected},
		{StatusPending, StatusCancelled},
		{StatusTranscriberCounter, StatusClientCounter},
		{StatusClientCounter, StatusTranscriberCounter},
		{StatusClientCounter, StatusAwaitingPayment},
		{StatusAwaitingPayment, StatusHired},
		{StatusAwaitingPayment, StatusCancelled},
		{StatusHired, StatusCompleted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusPending, StatusHired},
		{StatusPending, StatusClientCounter},
		{StatusTranscriberCounter, StatusTranscriberCounter},
		{StatusHired, StatusCancelled},
		{StatusHired, StatusRejected},
		{StatusCompleted, StatusHired},
		{StatusRejected, StatusPending},
		{StatusCancelled, StatusAwaitingPayment},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be forbidden", tc.from, tc.to)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusCancelled, StatusCompleted} {
		if !s.IsTerminal() {
			t.Errorf("expected %s terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusAwaitingPayment, StatusHired} {
		if s.IsTerminal() {
			t.Errorf("expected %s non-terminal", s)
		}
	}

	for _, s := range []Status{StatusPending, StatusTranscriberCounter, StatusClientCounter, StatusAwaitingPayment} {
		if !s.PrePayment() {
			t.Errorf("expected %s pre-payment", s)
		}
	}
	for _, s := range []Status{StatusHired, StatusCompleted, StatusRejected, StatusCancelled} {
		if s.PrePayment() {
			t.Errorf("expected %s not pre-payment", s)
		}
	}

	if Status("unknown").Valid() {
		t.Errorf("expected unknown status invalid")
	}
	if !StatusHired.Valid() {
		t.Errorf("expected hired valid")
	}
}
