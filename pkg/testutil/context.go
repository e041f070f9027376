package testutil

import (
	"context"
	"time"

	id "awardvote/pkg/domain"
	"awardvote/pkg/requestcontext"
)

// Context returns a context carrying a fixed request time and, when given,
// the session the request acts for. This is what the request-time and session
// middleware would attach.
func Context(now time.Time, sessionID ...id.SessionID) context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	if len(sessionID) > 0 {
		ctx = requestcontext.WithSessionID(ctx, sessionID[0])
	}
	return ctx
}

// WithClient attaches the client metadata the metadata middleware would set.
func WithClient(ctx context.Context, clientIP, userAgent string) context.Context {
	return requestcontext.WithClientMetadata(ctx, clientIP, userAgent)
}
