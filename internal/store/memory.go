package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ashureev/interview-probe/internal/domain"
)

// MemoryStore implements Repository with an in-process map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	clock    clock.Clock
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		clock:    clk,
	}
}

// Load returns a deep copy of the session, or a fresh one if none is stored.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s.Clone(), nil
	}
	return domain.NewSession(sessionID, m.clock.Now()), nil
}

// Save stores a deep copy of s.
func (m *MemoryStore) Save(ctx context.Context, s *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.ID]; ok && existing.Step > s.Step {
		return fmt.Errorf("%w: %s has step %d, got %d", ErrStaleSession, s.ID, existing.Step, s.Step)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Delete removes the session with the given ID.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok, nil
}

// DeleteIdle removes sessions whose last update is before cutoff.
func (m *MemoryStore) DeleteIdle(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
