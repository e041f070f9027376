package ledger

import (
	"context"
	"fmt"
	"sync"

	id "awardvote/pkg/domain"
	"awardvote/pkg/platform/sentinel"
	"awardvote/pkg/requestcontext"
)

type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*Entry)}
}

// Begin inserts a pending entry or returns the existing one. Each call on a
// pending entry counts as another attempt.
func (s *InMemoryStore) Begin(ctx context.Context, claim Claim) (Entry, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[claim.PaymentRef]
	if !ok {
		e = &Entry{
			SubmissionID: id.NewSubmissionID(),
			PaymentRef:   claim.PaymentRef,
			SessionID:    claim.SessionID,
			Status:       StatusPending,
			Votes:        claim.Votes,
			Fingerprint:  claim.Fingerprint,
			Attempts:     1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.entries[claim.PaymentRef] = e
		return *e, nil
	}
	if e.Fingerprint != claim.Fingerprint {
		return *e, ErrFingerprintMismatch
	}
	if !e.Completed() {
		e.Attempts++
		e.UpdatedAt = now
	}
	return *e, nil
}

func (s *InMemoryStore) Complete(ctx context.Context, paymentRef string, created int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[paymentRef]
	if !ok {
		return fmt.Errorf("complete %s: %w", paymentRef, sentinel.ErrNotFound)
	}
	e.Status = StatusCompleted
	e.Created = created
	e.UpdatedAt = requestcontext.Now(ctx)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, paymentRef string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[paymentRef]
	if !ok {
		return Entry{}, sentinel.ErrNotFound
	}
	return *e, nil
}

