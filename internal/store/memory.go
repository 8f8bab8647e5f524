package store

import (
	"context"
	"sync"

	"github.com/syncrelay/syncrelay/internal/domain"
)

type userRecord struct {
	sessionID  string
	bound      bool
	activities []*domain.Activity
}

// MemoryStore keeps bindings and logs in process memory. Intended for tests
// and local development; state is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userRecord)}
}

func (m *MemoryStore) record(userID string) *userRecord {
	rec, ok := m.users[userID]
	if !ok {
		rec = &userRecord{}
		m.users[userID] = rec
	}
	return rec
}

func (m *MemoryStore) SetSessionBinding(ctx context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(userID)
	rec.sessionID = sessionID
	rec.bound = true
	return nil
}

func (m *MemoryStore) HasBinding(ctx context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[userID]
	return ok && rec.bound, nil
}

func (m *MemoryStore) GetSessionBinding(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.users[userID]; ok {
		return rec.sessionID, nil
	}
	return "", nil
}

func (m *MemoryStore) Append(ctx context.Context, userID string, a *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(userID)
	rec.activities = append(rec.activities, a.Clone())
	return nil
}

func (m *MemoryStore) History(ctx context.Context, userID string) ([]*domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]*domain.Activity, 0, len(rec.activities))
	for _, a := range rec.activities {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
