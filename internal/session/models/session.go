package models

import (
	"time"

	"github.com/shopspring/decimal"

	"awardvote/internal/ballot"
	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
)

// Step is a position in the linear voting flow.
type Step string

const (
	StepPayment Step = "payment"
	StepVoting  Step = "voting"
	StepSuccess Step = "success"
)

// Operation names work a session has in flight against an external service.
type Operation string

const (
	OpNone    Operation = ""
	OpPayment Operation = "payment"
	OpSubmit  Operation = "submit"
)

// Notice is the last user-visible error, kept so the UI can show it after a
// reload.
type Notice struct {
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

// Session is the single explicit state object behind one voter's flow:
// payment, then voting, then success, with reset back to payment.
type Session struct {
	ID             id.SessionID     `json:"id"`
	Step           Step             `json:"step"`
	Phone          string           `json:"phone,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PaymentRef     string           `json:"payment_ref,omitempty"`
	Ballot         *ballot.Ballot   `json:"ballot,omitempty"`
	SubmitAttempts int              `json:"submit_attempts,omitempty"`
	SubmittedVotes int              `json:"submitted_votes,omitempty"`
	LastError      *Notice          `json:"last_error,omitempty"`
	InFlight       Operation        `json:"in_flight,omitempty"`
	InFlightSince  time.Time        `json:"in_flight_since,omitzero"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// New starts a session on the payment step.
func New(sessionID id.SessionID, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        sessionID,
		Step:      StepPayment,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Busy reports whether another external call holds the session. A claim
// older than staleAfter is considered abandoned.
func (s *Session) Busy(now time.Time, staleAfter time.Duration) bool {
	return s.InFlight != OpNone && now.Sub(s.InFlightSince) < staleAfter
}

func (s *Session) Claim(op Operation, now time.Time) {
	s.InFlight = op
	s.InFlightSince = now
}

func (s *Session) ClearClaim() {
	s.InFlight = OpNone
	s.InFlightSince = time.Time{}
}

// RememberPaymentInput keeps phone and amount so a cancelled or failed payment
// can be retried without re-entering them.
func (s *Session) RememberPaymentInput(phone string, amount decimal.Decimal) {
	s.Phone = phone
	s.Amount = &amount
}

// BeginVoting moves a paid session to the voting step with a fresh budget.
func (s *Session) BeginVoting(paymentRef string, b *ballot.Ballot) error {
	if s.Step != StepPayment {
		return dErrors.New(dErrors.CodeInvalidState, "payment is only accepted on the payment step")
	}
	s.Step = StepVoting
	s.PaymentRef = paymentRef
	s.Ballot = b
	s.SubmitAttempts = 0
	s.LastError = nil
	return nil
}

// Complete moves a submitted session to success.
func (s *Session) Complete(created int) error {
	if s.Step != StepVoting {
		return dErrors.New(dErrors.CodeInvalidState, "only a voting session can be completed")
	}
	s.Step = StepSuccess
	s.SubmittedVotes = created
	s.LastError = nil
	return nil
}

// AllocationFrozen is true once a submission attempt has failed; the same
// allocation must be retried so no stored vote is orphaned.
func (s *Session) AllocationFrozen() bool {
	return s.SubmitAttempts > 0
}

// Reset discards everything the voter entered or bought and returns to the
// payment step.
func (s *Session) Reset() {
	s.Step = StepPayment
	s.Phone = ""
	s.Amount = nil
	s.PaymentRef = ""
	s.Ballot = nil
	s.SubmitAttempts = 0
	s.SubmittedVotes = 0
	s.LastError = nil
	s.ClearClaim()
}

func (s *Session) SetNotice(err error, message string) {
	s.LastError = &Notice{Code: dErrors.CodeOf(err), Message: message}
}

// Clone returns a deep copy so stores never hand out shared state.
func (s *Session) Clone() *Session {
	c := *s
	if s.Amount != nil {
		a := *s.Amount
		c.Amount = &a
	}
	if s.LastError != nil {
		n := *s.LastError
		c.LastError = &n
	}
	if s.Ballot != nil {
		raw, err := s.Ballot.MarshalJSON()
		if err == nil {
			var b ballot.Ballot
			if b.UnmarshalJSON(raw) == nil {
				c.Ballot = &b
			}
		}
	}
	return &c
}
