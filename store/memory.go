package store

import (
	"context"
	"sync"
)

type inMemory struct {
	mu      sync.RWMutex
	session *SessionInfo
}

// NewMemoryStore creates a process-local SessionStore.
func NewMemoryStore() SessionStore {
	return &inMemory{}
}

func (m *inMemory) GetSession(ctx context.Context) (*SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	copy := *m.session
	return &copy, nil
}

func (m *inMemory) PutSession(ctx context.Context, session *SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *session
	m.session = &copy
	return nil
}

func (m *inMemory) DeleteSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
