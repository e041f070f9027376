package audit

import (
	"context"
	"time"
)

// EventType names a session action worth keeping a trail of.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventPaymentSucceeded  EventType = "payment_succeeded"
	EventPaymentCancelled  EventType = "payment_cancelled"
	EventPaymentFailed     EventType = "payment_failed"
	EventVotesSubmitted    EventType = "votes_submitted"
	EventSubmissionFailed  EventType = "submission_failed"
	EventSubmissionReplay  EventType = "submission_replayed"
	EventTallyUpdateFailed EventType = "tally_update_failed"
	EventSessionReset      EventType = "session_reset"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Raw phone numbers never
// appear here.
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	Votes      int       `json:"votes,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	NomineeID  string    `json:"nominee_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Device     string    `json:"device,omitempty"`
}

// Store persists events. Append must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
