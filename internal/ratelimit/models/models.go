package models

import (
	"math"
	"time"
)

// EndpointClass groups endpoints that share a limit.
type EndpointClass string

const (
	// ClassSessionOpen covers POST /sessions.
	ClassSessionOpen EndpointClass = "session_open"
	// ClassPayment covers payment attempts, each of which triggers a mobile-money prompt.
	ClassPayment EndpointClass = "payment"
)

// Rule is the number of requests allowed per window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// RateLimitResult is the outcome of one limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in whole seconds; zero when allowed.
	RetryAfter int
}

// RetryAfterSeconds rounds the wait until resetAt up to a whole second.
func RetryAfterSeconds(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// Key builds the bucket key for a class and client identifier.
func Key(class EndpointClass, identifier string) string {
	return "ratelimit:" + string(class) + ":" + identifier
}
