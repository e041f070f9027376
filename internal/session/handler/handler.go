// Package handler exposes voting sessions over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"awardvote/internal/ballot"
	"awardvote/internal/catalog"
	"awardvote/internal/platform/middleware"
	ratelimit "awardvote/internal/ratelimit/models"
	"awardvote/internal/session/models"
	"awardvote/internal/submission"
	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/platform/httputil"
)

// Service is the session workflow the handler drives.
type Service interface {
	Open(ctx context.Context) (*models.Session, string, error)
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Pay(ctx context.Context, sessionID id.SessionID, phone, amount string) (*models.Session, error)
	Catalog(ctx context.Context, sessionID id.SessionID, reload bool) (*catalog.Catalog, error)
	Allocate(ctx context.Context, sessionID id.SessionID, categoryID, nomineeID string) (ballot.Result, *models.Session, error)
	Deallocate(ctx context.Context, sessionID id.SessionID, categoryID, nomineeID string) (ballot.Result, *models.Session, error)
	Submit(ctx context.Context, sessionID id.SessionID) (submission.Result, *models.Session, error)
	Reset(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// Limiter returns per-class request limiting middleware.
type Limiter interface {
	Limit(class ratelimit.EndpointClass) func(http.Handler) http.Handler
}

// Handler handles session endpoints.
type Handler struct {
	logger    *slog.Logger
	sessions  Service
	validator middleware.SessionTokenValidator
	limiter   Limiter
	timeout   time.Duration
}

type Option func(*Handler)

// WithLimiter limits session creation and payment attempts per client.
func WithLimiter(l Limiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// New creates a session Handler. timeout bounds each request and must cover a
// full payment poll.
func New(sessions Service, validator middleware.SessionTokenValidator, logger *slog.Logger, timeout time.Duration, opts ...Option) *Handler {
	h := &Handler{
		logger:    logger,
		sessions:  sessions,
		validator: validator,
		timeout:   timeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) limit(class ratelimit.EndpointClass) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.Limit(class)
}

// Register registers the session routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		if h.timeout > 0 {
			r.Use(middleware.Timeout(h.timeout))
		}
		r.With(h.limit(ratelimit.ClassSessionOpen)).Post("/", h.handleOpen)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(middleware.RequireSession(h.validator, h.logger))
			r.Get("/", h.handleGet)
			r.With(h.limit(ratelimit.ClassPayment)).Post("/payment", h.handlePay)
			r.Get("/catalog", h.handleCatalog)
			r.Post("/allocations", h.handleAllocate)
			r.Delete("/allocations", h.handleDeallocate)
			r.Post("/submit", h.handleSubmit)
			r.Post("/reset", h.handleReset)
		})
	})
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, token, err := h.sessions.Open(ctx)
	if err != nil {
		h.fail(ctx, w, "open session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.CreatedSession{Session: session.View(), Token: token})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "get session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session.View())
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req models.PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.sessions.Pay(ctx, sessionID, req.Phone, req.Amount)
	if err != nil {
		h.fail(ctx, w, "payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session.View())
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	reload := r.URL.Query().Get("reload") == "true"
	cat, err := h.sessions.Catalog(ctx, sessionID, reload)
	if err != nil {
		h.fail(ctx, w, "catalog", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cat)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	h.handleAllocation(w, r, h.sessions.Allocate)
}

func (h *Handler) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	h.handleAllocation(w, r, h.sessions.Deallocate)
}

func (h *Handler) handleAllocation(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, id.SessionID, string, string) (ballot.Result, *models.Session, error),
) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req models.AllocationRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, session, err := apply(ctx, sessionID, req.CategoryID, req.NomineeID)
	if err != nil {
		h.fail(ctx, w, "allocation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.AllocationResponse{
		VotesRemaining: result.Remaining,
		NomineeCount:   result.NomineeCount,
		VotesAllocated: session.Ballot.TotalAllocated(),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	result, session, err := h.sessions.Submit(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "submit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SubmitResponse{
		Session:       session.View(),
		SubmissionID:  result.SubmissionID.String(),
		VotesRecorded: result.Created,
		Replayed:      result.Replayed,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.sessions.Reset(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "reset", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session.View())
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return id.SessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := middleware.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "session request failed",
			"op", op,
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.InfoContext(ctx, "session request rejected",
			"op", op,
			"request_id", requestID,
			"code", dErrors.CodeOf(err),
		)
	}
	httputil.WriteError(w, err)
}
