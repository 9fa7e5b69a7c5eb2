package credential

import (
	"context"
	"sync"
	"time"

	"tokend/pkg/logging"
)

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

type recordKey struct {
	TenantKey string
	Provider  Provider
}

// MemoryStore provides thread-safe in-memory storage for credential records.
// Used in dev mode and in tests; records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]Record),
	}
}

// Get returns the record for the pair, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, tenantKey string, provider Provider) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{TenantKey: tenantKey, Provider: provider}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Upsert atomically writes the record, advancing UpdatedAt.
func (s *MemoryStore) Upsert(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := recordKey{TenantKey: record.TenantKey, Provider: record.Provider}
	if prev, ok := s.records[key]; ok {
		record.CreatedAt = prev.CreatedAt
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.records[key] = record

	logging.Debug("Store", "Upserted credential for tenant=%s provider=%s (expires: %v)",
		logging.TruncateKey(record.TenantKey), record.Provider, record.ExpiresAt)
	return nil
}

// Count returns the number of records in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
