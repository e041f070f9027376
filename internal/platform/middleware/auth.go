package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/platform/httputil"
	"awardvote/pkg/requestcontext"
)

// SessionTokenValidator validates the bearer token handed out when a voting
// session is opened and returns the session it grants access to.
type SessionTokenValidator interface {
	ValidateToken(tokenString string) (id.SessionID, error)
}

// RequireSession authenticates the bearer token and checks it grants access to
// the session named by the {sessionID} route parameter.
func RequireSession(validator SessionTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			sessionID, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			if param := chi.URLParam(r, "sessionID"); param != "" && param != sessionID.String() {
				logger.WarnContext(ctx, "token does not grant access to session",
					"request_id", requestID,
					"session_id", param,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token does not grant access to this session"))
				return
			}

			ctx = requestcontext.WithSessionID(ctx, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
