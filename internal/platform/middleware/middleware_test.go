package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	id "awardvote/pkg/domain"
	"awardvote/pkg/requestcontext"
)

type stubValidator struct {
	sessionID id.SessionID
	err       error
}

func (s stubValidator) ValidateToken(string) (id.SessionID, error) {
	return s.sessionID, s.err
}

func newSessionRouter(v SessionTokenValidator, reached *id.SessionID) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Use(RequireSession(v, logger))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			*reached = requestcontext.SessionID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestRequireSession(t *testing.T) {
	sid := id.NewSessionID()

	t.Run("missing token is unauthorized", func(t *testing.T) {
		var reached id.SessionID
		router := newSessionRouter(stubValidator{sessionID: sid}, &reached)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+sid.String()+"/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, reached.IsNil())
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		var reached id.SessionID
		router := newSessionRouter(stubValidator{err: errors.New("bad")}, &reached)
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+sid.String()+"/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token for another session is forbidden", func(t *testing.T) {
		var reached id.SessionID
		router := newSessionRouter(stubValidator{sessionID: id.NewSessionID()}, &reached)
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+sid.String()+"/", nil)
		req.Header.Set("Authorization", "Bearer ok")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("matching token reaches handler with session in context", func(t *testing.T) {
		var reached id.SessionID
		router := newSessionRouter(stubValidator{sessionID: sid}, &reached)
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+sid.String()+"/", nil)
		req.Header.Set("Authorization", "Bearer ok")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, sid, reached)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
