package audit

import (
	"context"
	"log/slog"
)

// LogStore writes each event as one structured log line. It is the sink when
// no broker is configured.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger.With("component", "audit")}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("type", string(event.Type)),
		slog.Time("timestamp", event.Timestamp),
		slog.String("session_id", event.SessionID),
	}
	if event.PaymentRef != "" {
		attrs = append(attrs, slog.String("payment_ref", event.PaymentRef))
	}
	if event.Votes != 0 {
		attrs = append(attrs, slog.Int("votes", event.Votes))
	}
	if event.Amount != "" {
		attrs = append(attrs, slog.String("amount", event.Amount))
	}
	if event.NomineeID != "" {
		attrs = append(attrs, slog.String("nominee_id", event.NomineeID))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Device != "" {
		attrs = append(attrs, slog.String("device", event.Device))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit event", attrs...)
	return nil
}
