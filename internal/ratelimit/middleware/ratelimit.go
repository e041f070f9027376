// Package middleware applies per-client request limits to HTTP routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"awardvote/internal/ratelimit/metrics"
	"awardvote/internal/ratelimit/models"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/platform/httputil"
	"awardvote/pkg/requestcontext"
)

// BucketStore counts requests per key within a sliding window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	store    BucketStore
	rules    map[models.EndpointClass]models.Rule
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithRule sets the limit for one endpoint class. Classes without a rule are
// not limited.
func WithRule(class models.EndpointClass, rule models.Rule) Option {
	return func(m *Middleware) {
		m.rules[class] = rule
	}
}

func New(store BucketStore, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		rules:  make(map[models.EndpointClass]models.Rule),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit rejects requests from a client IP once the class rule is exhausted.
// Store failures let the request through.
func (m *Middleware) Limit(class models.EndpointClass) func(http.Handler) http.Handler {
	rule, ok := m.rules[class]
	return func(next http.Handler) http.Handler {
		if m.disabled || !ok || !rule.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.store.Allow(ctx, models.Key(class, ip), rule.Limit, rule.Window)
			if err != nil {
				m.metrics.IncrementCheckErrors(string(class))
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.metrics.IncrementRejected(string(class))
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many attempts. Please wait and try again."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
