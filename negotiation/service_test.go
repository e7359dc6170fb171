package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"scriptrelay/directory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore, elig *fakeEligibility, outbox *fakeOutbox, locker *fakeLocker, payouts *fakePayouts, counters *fakeCounters) (*Service, *fakePool) {
	pool := &fakePool{}
	svc := NewService(pool, store, elig, outbox, locker, payouts, counters, "NGN", nil).
		WithClock(func() time.Time { return testNow }).
		WithIDGenerator(func() string { return "neg-1" })
	return svc, pool
}

func defaultCollaborators() (*fakeStore, *fakeEligibility, *fakeOutbox, *fakeLocker, *fakePayouts, *fakeCounters) {
	return newFakeStore(),
		&fakeEligibility{elig: directory.Eligibility{Online: true, Available: true, Status: "active"}},
		&fakeOutbox{},
		&fakeLocker{},
		&fakePayouts{},
		&fakeCounters{}
}

func TestPropose_CreatesPending(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	created, err := svc.Propose(context.Background(), ProposeParams{
		ClientID:      "client-1",
		TranscriberID: "trans-1",
		PriceMinor:    5000,
		DeadlineHours: 48,
		Requirement:   "interview transcript, two speakers",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if created.Status != StatusPending {
		t.Errorf("expected pending, got %s", created.Status)
	}
	if want := testNow.Add(48 * time.Hour); !created.DueAt.Equal(want) {
		t.Errorf("expected due %v, got %v", want, created.DueAt)
	}
	if created.Currency != "NGN" {
		t.Errorf("expected canonical currency, got %s", created.Currency)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if len(outbox.entries) != 1 || outbox.entries[0].recipient != "trans-1" || outbox.entries[0].topic != TopicProposed {
		t.Errorf("expected proposal notification to transcriber, got %+v", outbox.entries)
	}
	if len(store.events) != 1 || store.events[0] != "NEGOTIATION_PROPOSED" {
		t.Errorf("expected proposed event, got %v", store.events)
	}
}

func TestPropose_IneligibleTranscriber(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	job := "job-9"
	elig.elig = directory.Eligibility{Online: true, Available: true, Status: "active", CurrentJobID: &job}
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	_, err := svc.Propose(context.Background(), ProposeParams{
		ClientID:      "client-1",
		TranscriberID: "trans-1",
		PriceMinor:    5000,
		DeadlineHours: 24,
		Requirement:   "podcast episode",
	})
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction before eligibility passes")
	}
	if len(store.recs) != 0 {
		t.Errorf("expected no record created")
	}
}

func TestPropose_Validation(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	cases := []ProposeParams{
		{ClientID: "c", TranscriberID: "t", PriceMinor: 0, DeadlineHours: 24, Requirement: "x"},
		{ClientID: "c", TranscriberID: "t", PriceMinor: 100, DeadlineHours: 0, Requirement: "x"},
		{ClientID: "c", TranscriberID: "t", PriceMinor: 100, DeadlineHours: 24, Requirement: "   "},
		{ClientID: "c", TranscriberID: "c", PriceMinor: 100, DeadlineHours: 24, Requirement: "x"},
		{ClientID: "", TranscriberID: "t", PriceMinor: 100, DeadlineHours: 24, Requirement: "x"},
	}
	for i, params := range cases {
		if _, err := svc.Propose(context.Background(), params); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestPropose_DuplicatePending(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.createErr = ErrDuplicatePending
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	_, err := svc.Propose(context.Background(), ProposeParams{
		ClientID:      "client-1",
		TranscriberID: "trans-1",
		PriceMinor:    5000,
		DeadlineHours: 24,
		Requirement:   "lecture recording",
	})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("expected ErrDuplicatePending, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback on duplicate")
	}
}

func TestAccept_TranscriberFromPending(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending, PriceMinor: 5000, DeadlineHours: 24})
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	updated, err := svc.Accept(context.Background(), "trans-1", "n1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusAwaitingPayment {
		t.Errorf("expected accepted_awaiting_payment, got %s", updated.Status)
	}
	if want := testNow.Add(24 * time.Hour); !updated.DueAt.Equal(want) {
		t.Errorf("expected due recomputed to %v, got %v", want, updated.DueAt)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if len(outbox.entries) != 1 || outbox.entries[0].recipient != "client-1" {
		t.Errorf("expected acceptance notification to client, got %+v", outbox.entries)
	}
}

func TestAccept_ClientFromTranscriberCounter(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusTranscriberCounter, PriceMinor: 8000, DeadlineHours: 24})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	updated, err := svc.Accept(context.Background(), "client-1", "n1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusAwaitingPayment || updated.PriceMinor != 8000 {
		t.Errorf("expected countered price locked in, got %+v", updated)
	}
}

func TestAccept_ClientCannotAcceptOwnOffer(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending})
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Accept(context.Background(), "client-1", "n1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback")
	}
}

func TestAccept_Outsider(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Accept(context.Background(), "stranger", "n1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAccept_ConcurrentLoserGetsInvalidState(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending, DeadlineHours: 24})
	store.acceptErr = ErrInvalidState
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Accept(context.Background(), "trans-1", "n1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when the conditional update misses, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback when losing the race")
	}
}

func TestCounter_AlternatingThenAccept(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending, PriceMinor: 5000, DeadlineHours: 24})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	countered, err := svc.Counter(context.Background(), CounterParams{ActorID: "trans-1", NegotiationID: "n1", PriceMinor: 8000})
	if err != nil {
		t.Fatalf("transcriber counter: %v", err)
	}
	if countered.Status != StatusTranscriberCounter || countered.PriceMinor != 8000 {
		t.Fatalf("unexpected state after transcriber counter: %+v", countered)
	}

	countered, err = svc.Counter(context.Background(), CounterParams{ActorID: "client-1", NegotiationID: "n1", PriceMinor: 6500})
	if err != nil {
		t.Fatalf("client counter: %v", err)
	}
	if countered.Status != StatusClientCounter || countered.PriceMinor != 6500 {
		t.Fatalf("unexpected state after client counter: %+v", countered)
	}

	accepted, err := svc.Accept(context.Background(), "trans-1", "n1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != StatusAwaitingPayment || accepted.PriceMinor != 6500 {
		t.Fatalf("expected settlement on 6500, got %+v", accepted)
	}
}

func TestCounter_RetainsDeadlineAndAttachment(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	attachment := "s3://bucket/audio.mp3"
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending, PriceMinor: 5000, DeadlineHours: 24, Attachment: &attachment})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	updated, err := svc.Counter(context.Background(), CounterParams{ActorID: "trans-1", NegotiationID: "n1", PriceMinor: 8000})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.DeadlineHours != 24 {
		t.Errorf("expected deadline retained, got %d", updated.DeadlineHours)
	}
	if updated.Attachment == nil || *updated.Attachment != attachment {
		t.Errorf("expected attachment retained, got %v", updated.Attachment)
	}
}

func TestCounter_ClientCannotCounterOwnOffer(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending, PriceMinor: 5000})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Counter(context.Background(), CounterParams{ActorID: "client-1", NegotiationID: "n1", PriceMinor: 4000}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestReject_RecordsSideAndReason(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusTranscriberCounter})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	updated, err := svc.Reject(context.Background(), "client-1", "n1", "rate too high")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusRejected {
		t.Errorf("expected rejected, got %s", updated.Status)
	}
	if updated.RejectedBy == nil || *updated.RejectedBy != "client" {
		t.Errorf("expected rejection attributed to client, got %v", updated.RejectedBy)
	}
	if updated.RejectReason == nil || *updated.RejectReason != "rate too high" {
		t.Errorf("expected reason recorded, got %v", updated.RejectReason)
	}
}

func TestReject_PostPaymentBlocked(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusHired})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Reject(context.Background(), "trans-1", "n1", "changed my mind"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancel_ClientOnly(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Cancel(context.Background(), "trans-1", "n1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	updated, err := svc.Cancel(context.Background(), "client-1", "n1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", updated.Status)
	}
}

func TestCancel_LosesRaceToSettlement(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusAwaitingPayment})
	store.updateErr = ErrInvalidState
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Cancel(context.Background(), "client-1", "n1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback when settlement won the race")
	}
}

func TestDelete_AdminReleasesHiredTranscriber(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusHired})
	svc, pool := newTestService(store, elig, outbox, locker, payouts, counters)

	if err := svc.Delete(context.Background(), "client-1", false, "n1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin on hired record, got %v", err)
	}

	if err := svc.Delete(context.Background(), "admin-1", true, "n1"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(locker.released) != 1 || locker.released[0] != "trans-1" {
		t.Errorf("expected transcriber released, got %v", locker.released)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if _, ok := store.recs["n1"]; ok {
		t.Errorf("expected record deleted")
	}
}

func TestGet_PartyScoped(t *testing.T) {
	store, elig, outbox, locker, payouts, counters := defaultCollaborators()
	store.seed(Negotiation{ID: "n1", ClientID: "client-1", TranscriberID: "trans-1", Status: StatusPending})
	svc, _ := newTestService(store, elig, outbox, locker, payouts, counters)

	if _, err := svc.Get(context.Background(), "stranger", false, "n1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "stranger", true, "n1"); err != nil {
		t.Fatalf("expected admin read to succeed, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "trans-1", false, "n1"); err != nil {
		t.Fatalf("expected party read to succeed, got %v", err)
	}
}

// ---- fakes ----

type fakeStore struct {
	recs   map[string]Negotiation
	events []string

	createErr error
	updateErr error
	acceptErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]Negotiation)}
}

func (f *fakeStore) seed(n Negotiation) {
	f.recs[n.ID] = n
}

func (f *fakeStore) Create(_ context.Context, _ pgx.Tx, n Negotiation) (Negotiation, error) {
	if f.createErr != nil {
		return Negotiation{}, f.createErr
	}
	for _, existing := range f.recs {
		if existing.ClientID == n.ClientID && existing.TranscriberID == n.TranscriberID && existing.Status == StatusPending {
			return Negotiation{}, ErrDuplicatePending
		}
	}
	f.recs[n.ID] = n
	return n, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (Negotiation, error) {
	n, ok := f.recs[id]
	if !ok {
		return Negotiation{}, ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID string, limit int) ([]Negotiation, error) {
	out := make([]Negotiation, 0)
	for _, n := range f.recs {
		if n.ClientID == userID || n.TranscriberID == userID {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Negotiation, error) {
	n, ok := f.recs[id]
	if !ok {
		return Negotiation{}, ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, _ pgx.Tx, id string, from, to Status) (Negotiation, error) {
	if f.updateErr != nil {
		return Negotiation{}, f.updateErr
	}
	n, ok := f.recs[id]
	if !ok || n.Status != from {
		return Negotiation{}, ErrInvalidState
	}
	n.Status = to
	f.recs[id] = n
	return n, nil
}

func (f *fakeStore) Accept(_ context.Context, _ pgx.Tx, id string, from Status, dueAt time.Time) (Negotiation, error) {
	if f.acceptErr != nil {
		return Negotiation{}, f.acceptErr
	}
	n, ok := f.recs[id]
	if !ok || n.Status != from {
		return Negotiation{}, ErrInvalidState
	}
	n.Status = StatusAwaitingPayment
	n.DueAt = dueAt
	f.recs[id] = n
	return n, nil
}

func (f *fakeStore) ApplyCounter(_ context.Context, _ pgx.Tx, params CounterUpdate) (Negotiation, error) {
	n, ok := f.recs[params.ID]
	if !ok || n.Status != params.From {
		return Negotiation{}, ErrInvalidState
	}
	n.Status = params.To
	n.PriceMinor = params.PriceMinor
	if params.DeadlineHours != nil {
		n.DeadlineHours = *params.DeadlineHours
	}
	if params.DueAt != nil {
		n.DueAt = *params.DueAt
	}
	if params.ClientMessage != nil {
		n.ClientMessage = params.ClientMessage
	}
	if params.TranscriberMessage != nil {
		n.TranscriberMessage = params.TranscriberMessage
	}
	if params.Attachment != nil {
		n.Attachment = params.Attachment
	}
	f.recs[params.ID] = n
	return n, nil
}

func (f *fakeStore) Reject(_ context.Context, _ pgx.Tx, id string, from Status, reason string, rejectedBy string) (Negotiation, error) {
	n, ok := f.recs[id]
	if !ok || n.Status != from {
		return Negotiation{}, ErrInvalidState
	}
	n.Status = StatusRejected
	n.RejectReason = &reason
	n.RejectedBy = &rejectedBy
	f.recs[id] = n
	return n, nil
}

func (f *fakeStore) Complete(_ context.Context, _ pgx.Tx, id string, completedAt time.Time, rating int, comment *string) (Negotiation, error) {
	n, ok := f.recs[id]
	if !ok || n.Status != StatusHired {
		return Negotiation{}, ErrInvalidState
	}
	n.Status = StatusCompleted
	n.CompletedAt = &completedAt
	n.FeedbackRating = &rating
	n.FeedbackComment = comment
	f.recs[id] = n
	return n, nil
}

func (f *fakeStore) Delete(_ context.Context, _ pgx.Tx, id string) error {
	if _, ok := f.recs[id]; !ok {
		return ErrNotFound
	}
	delete(f.recs, id)
	return nil
}

func (f *fakeStore) AppendEvent(_ context.Context, _ pgx.Tx, _, eventType string, _ string, _ map[string]any) error {
	f.events = append(f.events, eventType)
	return nil
}

type fakeEligibility struct {
	elig directory.Eligibility
	err  error
}

func (f *fakeEligibility) GetEligibility(context.Context, string) (directory.Eligibility, error) {
	return f.elig, f.err
}

type outboxEntry struct {
	recipient string
	topic     string
	payload   map[string]any
}

type fakeOutbox struct {
	entries []outboxEntry
	err     error
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ pgx.Tx, recipientID, topic string, payload map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, outboxEntry{recipient: recipientID, topic: topic, payload: payload})
	return nil
}

type fakeLocker struct {
	released   []string
	releaseErr error
}

func (f *fakeLocker) Release(_ context.Context, _ pgx.Tx, transcriberID string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.released = append(f.released, transcriberID)
	return nil
}

type fakePayouts struct {
	marked  []string
	markErr error
}

func (f *fakePayouts) MarkPayoutPending(_ context.Context, _ pgx.Tx, negotiationID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, negotiationID)
	return nil
}

type fakeCounters struct {
	incremented []string
	err         error
}

func (f *fakeCounters) IncrementCompletedJobs(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.incremented = append(f.incremented, userID)
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
