package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
)

// MemoryStore is an in-process SessionStore for tests and for running the
// CLI without any configured database. The snapshot round-trips through JSON
// so it behaves like the durable implementations.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "memory: marshal snapshot")
	}
	m.mu.Lock()
	m.payload = payload
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(m.payload, &snap); err != nil {
		return nil, eris.Wrap(err, "memory: unmarshal snapshot")
	}
	return &snap, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.payload = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
