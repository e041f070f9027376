// Package ledger records which payment references have been spent on a
// submission, so a retried submission resumes instead of double-counting.
package ledger

import (
	"errors"
	"time"

	id "awardvote/pkg/domain"
)

// ErrFingerprintMismatch means a retry carries a different set of votes than
// the attempt that first claimed the reference.
var ErrFingerprintMismatch = errors.New("payment reference already claimed for a different allocation")

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Claim is what a submission attempt asks the ledger for.
type Claim struct {
	PaymentRef  string
	SessionID   string
	Votes       int
	Fingerprint string
}

// Entry is the ledger row for one payment reference.
type Entry struct {
	SubmissionID id.SubmissionID
	PaymentRef   string
	SessionID    string
	Status       Status
	Votes        int
	Fingerprint  string
	Created      int
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e Entry) Completed() bool {
	return e.Status == StatusCompleted
}
