package negotiation

import "time"

// Negotiation mirrors the negotiations table. The transcriber linkage is set
// at creation and never changes; the due date derives from the deadline at
// creation/acceptance time and is frozen once payment settles.
type Negotiation struct {
	ID                 string
	ClientID           string
	TranscriberID      string
	Status             Status
	Requirement        string
	PriceMinor         int64
	Currency           string
	DeadlineHours      int
	DueAt              time.Time
	ClientMessage      *string
	TranscriberMessage *string
	RejectReason       *string
	RejectedBy         *string
	Attachment         *string
	FeedbackRating     *int
	FeedbackComment    *string
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Event captures an immutable business event appended to a negotiation's
// history inside the transaction that produced it.
type Event struct {
	ID            int64
	NegotiationID string
	Type          string
	ActorID       *string
	Payload       []byte
	CreatedAt     time.Time
}

// Outbox topics published by this package.
const (
	TopicProposed  = "negotiation.proposed"
	TopicCountered = "negotiation.countered"
	TopicAccepted  = "negotiation.accepted"
	TopicRejected  = "negotiation.rejected"
	TopicCancelled = "negotiation.cancelled"
	TopicDeleted   = "negotiation.deleted"
	TopicCompleted = "job.completed"
)
