package domain

import (
	"github.com/google/uuid"

	dErrors "awardvote/pkg/domain-errors"
)

// SessionID identifies one voting session (payment → voting → success).
type SessionID uuid.UUID

// SubmissionID identifies one submission attempt recorded in the ledger.
type SubmissionID uuid.UUID

func (s SessionID) String() string    { return uuid.UUID(s).String() }
func (s SessionID) IsNil() bool       { return uuid.UUID(s) == uuid.Nil }
func (s SubmissionID) String() string { return uuid.UUID(s).String() }
func (s SubmissionID) IsNil() bool    { return uuid.UUID(s) == uuid.Nil }

// MarshalText renders the canonical UUID form so IDs serialize as strings.
func (s SessionID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SessionID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*s = SessionID(u)
	return nil
}

func (s SubmissionID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SubmissionID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*s = SubmissionID(u)
	return nil
}

// NewSessionID returns a random session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewSubmissionID returns a random submission identifier.
func NewSubmissionID() SubmissionID { return SubmissionID(uuid.New()) }

// ParseSessionID validates a session ID at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session ID")
	return SessionID(u), err
}

// ParseSubmissionID validates a submission ID at a trust boundary.
func ParseSubmissionID(s string) (SubmissionID, error) {
	u, err := parseUUID(s, "submission ID")
	return SubmissionID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
