package state

import (
	"sort"
	"sync"

	"github.com/TheMichaelB/vaultrest/internal/session"
)

// MemoryStore keeps snapshots in process memory. It backs the "none" store
// type and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]session.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]session.Snapshot),
	}
}

// Load returns a copy of the stored snapshot.
func (m *MemoryStore) Load(profile string) (*session.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.states[profile]
	if !ok {
		return nil, ErrStateNotFound
	}
	snap.DeviceToken = append([]byte(nil), snap.DeviceToken...)
	return &snap, nil
}

// Save stores a copy of snap.
func (m *MemoryStore) Save(profile string, snap *session.Snapshot) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *snap
	cp.DeviceToken = append([]byte(nil), snap.DeviceToken...)
	m.states[profile] = cp
	return nil
}

// Reset removes a profile.
func (m *MemoryStore) Reset(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, profile)
	return nil
}

// List returns all stored profiles, sorted.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profiles := make([]string, 0, len(m.states))
	for p := range m.states {
		profiles = append(profiles, p)
	}
	sort.Strings(profiles)
	return profiles, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
