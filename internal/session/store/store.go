// Package store persists voting sessions. Update serializes mutations of one
// session so allocation changes never interleave.
package store

import "awardvote/pkg/platform/sentinel"

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = sentinel.ErrNotFound

// ErrConflict is returned when an optimistic update kept losing races.
var ErrConflict = sentinel.ErrConflict
