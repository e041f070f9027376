package recordstore

import (
	"errors"
	"fmt"

	"awardvote/pkg/platform/sentinel"
)

// Error describes a failed call to the record store. It unwraps to one of the
// sentinel errors so callers can branch with errors.Is.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("recordstore %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("recordstore %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRejected marks any other non-2xx answer (validation, auth).
	ErrRejected = errors.New("rejected")
)

func category(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return "not_found"
	case errors.Is(err, sentinel.ErrConflict):
		return "conflict"
	case errors.Is(err, sentinel.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "bad_data"
	default:
		return "rejected"
	}
}
