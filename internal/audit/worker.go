package audit

import (
	"context"
	"log/slog"
)

const batchSize = 100

// BufferedStore accepts events without blocking the request path; a Worker
// drains them into the downstream store.
type BufferedStore struct {
	buffer *RingBuffer
}

func NewBufferedStore(buffer *RingBuffer) *BufferedStore {
	return &BufferedStore{buffer: buffer}
}

func (s *BufferedStore) Append(_ context.Context, event Event) error {
	s.buffer.Enqueue(event)
	return nil
}

// Worker moves buffered events to a Store. A failed append is logged and the
// event dropped; the trail is best-effort.
type Worker struct {
	store  Store
	buffer *RingBuffer
	logger *slog.Logger
}

func NewWorker(store Store, buffer *RingBuffer, logger *slog.Logger) *Worker {
	return &Worker{store: store, buffer: buffer, logger: logger}
}

// Run drains until ctx is cancelled, then flushes what is left using a
// context that is no longer cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-w.buffer.Ready():
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		batch := w.buffer.DequeueBatch(batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "failed to persist audit event",
					"type", event.Type, "session_id", event.SessionID, "error", err)
			}
		}
	}
}
