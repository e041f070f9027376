package models

import (
	"time"

	"awardvote/internal/ballot"
)

// SessionView is the API representation of a session. The phone number is
// masked.
type SessionView struct {
	ID             string            `json:"id"`
	Step           Step              `json:"step"`
	Phone          string            `json:"phone,omitempty"`
	Amount         string            `json:"amount,omitempty"`
	PaymentRef     string            `json:"payment_ref,omitempty"`
	VotesPurchased int               `json:"votes_purchased"`
	VotesRemaining int               `json:"votes_remaining"`
	VotesAllocated int               `json:"votes_allocated"`
	Allocation     ballot.Allocation `json:"allocation,omitempty"`
	SubmittedVotes int               `json:"submitted_votes,omitempty"`
	CanSubmit      bool              `json:"can_submit"`
	LastError      *Notice           `json:"last_error,omitempty"`
	ExpiresAt      string            `json:"expires_at"`
}

// CreatedSession is returned once, when the session is opened.
type CreatedSession struct {
	Session SessionView `json:"session"`
	Token   string      `json:"token"`
}

type PaymentRequest struct {
	Phone  string `json:"phone"`
	Amount string `json:"amount"`
}

type AllocationRequest struct {
	CategoryID string `json:"category_id"`
	NomineeID  string `json:"nominee_id"`
}

type AllocationResponse struct {
	VotesRemaining int `json:"votes_remaining"`
	NomineeCount   int `json:"nominee_count"`
	VotesAllocated int `json:"votes_allocated"`
}

type SubmitResponse struct {
	Session       SessionView `json:"session"`
	SubmissionID  string      `json:"submission_id"`
	VotesRecorded int         `json:"votes_recorded"`
	Replayed      bool        `json:"replayed"`
}

// View renders s for the API.
func (s *Session) View() SessionView {
	v := SessionView{
		ID:             s.ID.String(),
		Step:           s.Step,
		Phone:          MaskPhone(s.Phone),
		PaymentRef:     s.PaymentRef,
		SubmittedVotes: s.SubmittedVotes,
		LastError:      s.LastError,
		ExpiresAt:      s.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if s.Amount != nil {
		v.Amount = s.Amount.String()
	}
	if s.Ballot != nil {
		v.VotesPurchased = s.Ballot.Purchased()
		v.VotesRemaining = s.Ballot.Remaining()
		v.VotesAllocated = s.Ballot.TotalAllocated()
		v.Allocation = s.Ballot.Allocation()
		v.CanSubmit = s.Step == StepVoting && v.VotesAllocated > 0
	}
	return v
}

// MaskPhone keeps the last three digits.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-3 && phone[i] != '+' {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
