// Package audit records an append-only trail of session actions.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"awardvote/pkg/requestcontext"
)

// Publisher enriches events with request metadata and hands them to a Store.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	if base.ClientIP == "" {
		base.ClientIP = requestcontext.ClientIP(ctx)
	}
	if base.Device == "" {
		base.Device = DeviceSummary(requestcontext.UserAgent(ctx))
	}
	return p.store.Append(ctx, base)
}

// DeviceSummary condenses a User-Agent header into "Browser Version on OS",
// suffixed with "(mobile)" for handsets.
func DeviceSummary(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	summary := strings.TrimSpace(fmt.Sprintf("%s %s", name, version))
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	if ua.Mobile() {
		summary += " (mobile)"
	}
	return summary
}
