package store

import (
	"context"
	"sync"

	"awardvote/internal/session/models"
	id "awardvote/pkg/domain"
	"awardvote/pkg/requestcontext"
)

// InMemoryStore keeps sessions in process. A single mutex serializes every
// update; fn must not block on I/O.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*models.Session
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return ErrConflict
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// Update applies fn to a copy and stores it only when fn succeeds.
func (s *InMemoryStore) Update(ctx context.Context, sessionID id.SessionID, fn func(*models.Session) error) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = requestcontext.Now(ctx)
	s.sessions[sessionID] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// PurgeExpired drops sessions past their expiry and reports how many went.
func (s *InMemoryStore) PurgeExpired(ctx context.Context) int {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sid, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, sid)
			n++
		}
	}
	return n
}

func (s *InMemoryStore) live(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if session.IsExpired(requestcontext.Now(ctx)) {
		delete(s.sessions, sessionID)
		return nil, ErrNotFound
	}
	return session, nil
}
