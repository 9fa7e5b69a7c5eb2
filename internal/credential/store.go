package credential

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store.Get when no credential record exists for
// the requested (tenant, provider) pair.
var ErrNotFound = errors.New("credential not found")

// StorageError wraps a failure of the durable store. It is distinct from
// provider and flow errors so the HTTP layer can map it to a 500 without
// inspecting driver internals.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the durable keyed storage for credential records.
//
// Upsert must be a single atomic write covering access token, refresh token
// and expiry together: concurrent refreshes for the same key then degrade to
// last-writer-wins, which is benign because every writer writes a complete
// record computed from a freshly-read one.
type Store interface {
	// Get returns the record for the pair, or ErrNotFound.
	Get(ctx context.Context, tenantKey string, provider Provider) (Record, error)

	// Upsert atomically creates or replaces the record for
	// (record.TenantKey, record.Provider), advancing UpdatedAt.
	Upsert(ctx context.Context, record Record) error
}
