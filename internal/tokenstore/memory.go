package tokenstore

import (
	"context"
	"sync"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// MemoryStore keeps sessions in process memory only. Sessions are lost when
// the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[pkgoauth.Provider]*pkgoauth.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[pkgoauth.Provider]*pkgoauth.Session),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, provider pkgoauth.Provider) (*pkgoauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[provider]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, session *pkgoauth.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Provider] = session.Clone()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, provider pkgoauth.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, provider)
	return nil
}

// List implements Store. Sessions are returned in SupportedProviders order.
func (s *MemoryStore) List(_ context.Context) ([]*pkgoauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*pkgoauth.Session
	for _, p := range pkgoauth.SupportedProviders() {
		if session, ok := s.sessions[p]; ok {
			out = append(out, session.Clone())
		}
	}
	return out, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[pkgoauth.Provider]*pkgoauth.Session)
	return nil
}
