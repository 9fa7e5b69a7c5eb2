package credential

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokend/pkg/logging"
)

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)

// Schema is the DDL for the credential table. Applied by EnsureSchema at
// startup; safe to run repeatedly.
const Schema = `CREATE TABLE IF NOT EXISTS oauth_credentials (
	tenant_key    TEXT        NOT NULL,
	provider      TEXT        NOT NULL,
	access_token  TEXT        NOT NULL,
	refresh_token TEXT        NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_key, provider)
)`

const getSQL = `SELECT tenant_key, provider, access_token, refresh_token, expires_at, created_at, updated_at
FROM oauth_credentials WHERE tenant_key = $1 AND provider = $2`

const upsertSQL = `INSERT INTO oauth_credentials (tenant_key, provider, access_token, refresh_token, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tenant_key, provider) DO UPDATE SET
	access_token  = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at    = EXCLUDED.expires_at,
	updated_at    = EXCLUDED.updated_at`

// PostgresStore implements Store on a pgx connection pool. One row per
// (tenant_key, provider); the upsert is a single statement so concurrent
// refresh writers cannot interleave partial records.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the credential table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return &StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Get returns the record for the pair, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, tenantKey string, provider Provider) (Record, error) {
	var (
		rec          Record
		accessToken  string
		refreshToken string
	)
	row := s.pool.QueryRow(ctx, getSQL, tenantKey, string(provider))
	err := row.Scan(&rec.TenantKey, &rec.Provider, &accessToken, &refreshToken,
		&rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, &StorageError{Op: "get", Err: err}
	}
	rec.AccessToken = NewRedactedToken(accessToken)
	rec.RefreshToken = NewRedactedToken(refreshToken)
	return rec, nil
}

// Upsert atomically writes the record, advancing UpdatedAt.
func (s *PostgresStore) Upsert(ctx context.Context, record Record) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.pool.Exec(ctx, upsertSQL,
		record.TenantKey,
		string(record.Provider),
		record.AccessToken.Value(),
		record.RefreshToken.Value(),
		record.ExpiresAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}

	logging.Debug("Store", "Upserted credential for tenant=%s provider=%s (expires: %v)",
		logging.TruncateKey(record.TenantKey), record.Provider, record.ExpiresAt)
	return nil
}
