package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. It provides no
// durability and exists for tests and memory-only deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Save inserts or overwrites the record for its key.
func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	cp := *rec
	m.mu.Lock()
	m.records[rec.Key] = &cp
	m.mu.Unlock()
	return nil
}

// Load returns the record for the key, or ErrRecordNotFound.
func (m *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// Delete removes the record for the key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// DeleteMatching removes records whose key or operation contains substr.
func (m *MemoryStore) DeleteMatching(_ context.Context, substr string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, rec := range m.records {
		if strings.Contains(key, substr) || strings.Contains(rec.Operation, substr) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

// DeleteAll removes every record.
func (m *MemoryStore) DeleteAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.records)
	m.records = make(map[string]*Record)
	return n, nil
}

// LoadActive returns all active, unexpired records.
func (m *MemoryStore) LoadActive(_ context.Context, now time.Time) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, rec := range m.records {
		if rec.Status == "active" && !rec.Expired(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// PurgeExpired removes records whose TTL has elapsed.
func (m *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

// Close releases store resources.
func (m *MemoryStore) Close() error {
	return nil
}
