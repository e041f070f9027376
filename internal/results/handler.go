package results

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"awardvote/internal/platform/middleware"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/platform/httputil"
	"awardvote/pkg/requestcontext"
)

// Source is what the dashboard reads from.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Refresh(ctx context.Context) (Snapshot, error)
	Current() (Snapshot, error)
	LastError() error
}

// View is the dashboard payload.
type View struct {
	Snapshot
	RefreshedAgo string `json:"refreshed_ago"`
	// LastError is set when the latest refresh failed and the standings shown
	// are from an earlier one.
	LastError string `json:"last_error,omitempty"`
}

type Handler struct {
	source Source
	logger *slog.Logger
}

func NewHandler(source Source, logger *slog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/results", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/", h.handleGet)
		r.Post("/refresh", h.handleRefresh)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.source.Snapshot(ctx)
	if err != nil {
		h.unavailable(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.view(ctx, snap))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.source.Refresh(ctx)
	if err != nil {
		// Keep serving the previous standings alongside the error.
		if prev, perr := h.source.Current(); perr == nil {
			httputil.WriteJSON(w, http.StatusOK, h.view(ctx, prev))
			return
		}
		h.unavailable(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.view(ctx, snap))
}

func (h *Handler) view(ctx context.Context, snap Snapshot) View {
	v := View{
		Snapshot:     snap,
		RefreshedAgo: humanize.RelTime(snap.RefreshedAt, requestcontext.Now(ctx), "ago", "from now"),
	}
	if err := h.source.LastError(); err != nil {
		v.LastError = "Failed to refresh results. Showing the last loaded standings."
	}
	return v
}

func (h *Handler) unavailable(ctx context.Context, w http.ResponseWriter, err error) {
	h.logger.WarnContext(ctx, "results unavailable",
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeCatalogUnavailable, "Failed to load results. Please try again."))
}
