package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awardvote/internal/ratelimit/models"
	"awardvote/internal/ratelimit/store/bucket"
	"awardvote/pkg/platform/httputil"
	"awardvote/pkg/platform/middleware/metadata"
	"awardvote/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func newLimited(store BucketStore, opts ...Option) http.Handler {
	m := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return metadata.ClientMetadata(m.Limit(models.ClassPayment)(ok))
}

func request(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sessions/x/payment", nil)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func TestLimit(t *testing.T) {
	rule := WithRule(models.ClassPayment, models.Rule{Limit: 2, Window: time.Minute})

	t.Run("rejects once the client is over the limit", func(t *testing.T) {
		h := newLimited(bucket.NewInMemoryBucketStore(), rule)

		for range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("10.0.0.1"))
			require.Equal(t, http.StatusNoContent, rec.Code)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		testutil.AssertStatusAndError(t, rec, http.StatusTooManyRequests, "rate_limited")
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		resp := testutil.Decode[httputil.ErrorResponse](t, rec)
		assert.NotEmpty(t, resp.ErrorDescription)

		other := httptest.NewRecorder()
		h.ServeHTTP(other, request("10.0.0.2"))
		assert.Equal(t, http.StatusNoContent, other.Code)
	})

	t.Run("store failure lets the request through", func(t *testing.T) {
		h := newLimited(failingStore{}, rule)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("disabled and unconfigured classes pass", func(t *testing.T) {
		for _, h := range []http.Handler{
			newLimited(failingStore{}, rule, WithDisabled(true)),
			newLimited(failingStore{}),
		} {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("10.0.0.1"))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
	})
}
