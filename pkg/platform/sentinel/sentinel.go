package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The record store client, session
// stores, ledger and locks return these (optionally wrapped) so services can
// translate them into domain errors.
//
//   - ErrNotFound: record or session does not exist
//   - ErrConflict: write collided with an existing record (duplicate vote key)
//   - ErrExpired: session or lock lease has expired
//   - ErrAlreadyUsed: payment reference already spent
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: upstream temporarily unavailable (circuit open, 5xx)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
