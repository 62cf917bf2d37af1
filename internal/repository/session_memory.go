package repository

import (
	"context"
	"sync"

	"github.com/noah-isme/davomat-bot/internal/models"
)

// MemorySessionStore keeps operator sessions in process memory. Sessions
// do not survive a restart; a free-text reply arriving afterwards is then
// reported as a stale correlation by the session service.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]models.Session
}

// NewMemorySessionStore constructs an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]models.Session)}
}

// Get returns the operator's session, or a fresh idle one.
func (s *MemorySessionStore) Get(ctx context.Context, operatorID int64) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[operatorID]; ok {
		return sess, nil
	}
	return models.NewSession(), nil
}

// Put stores the operator's session.
func (s *MemorySessionStore) Put(ctx context.Context, operatorID int64, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[operatorID] = sess
	return nil
}

// Delete removes the operator's session.
func (s *MemorySessionStore) Delete(ctx context.Context, operatorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, operatorID)
	return nil
}
