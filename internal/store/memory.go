package store

import (
	"context"
	"sync"
	"time"
)

// DefaultJanitorInterval is how often the in-memory store sweeps expired entries.
const DefaultJanitorInterval = 1 * time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process KeyValueStore with TTL support. It backs
// local development and tests; expired entries are dropped lazily on access
// and periodically by an optional janitor goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
}

// Get implements KeyValueStore.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return nil, ErrKeyNotFound
	}
	if entry.expired(time.Now()) {
		delete(m.entries, key)
		return nil, ErrKeyNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set implements KeyValueStore.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = newMemoryEntry(value, ttl)
	return nil
}

// SetNX implements KeyValueStore. The insert-if-absent check happens under
// the store lock, so two concurrent SetNX calls for the same key cannot both
// succeed.
func (m *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.entries[key]; exists && !entry.expired(time.Now()) {
		return false, nil
	}
	m.entries[key] = newMemoryEntry(value, ttl)
	return true, nil
}

// Delete implements KeyValueStore.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// StartJanitor launches a background sweep that removes expired entries every
// interval until Close is called. Safe to skip for short-lived uses; Get and
// SetNX already drop expired entries on access.
func (m *MemoryStore) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.done:
				return
			}
		}
	}()
}

// Close stops the janitor goroutine if one is running.
func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.done) })
}

// Len reports the number of entries currently held, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
		}
	}
}

func newMemoryEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}
