package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

// PostgresStore keeps sessions in the sessions table. Expired rows are
// treated as missing and removed lazily on read.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `
SELECT data, expires_at
FROM sessions
WHERE key = $1
LIMIT 1
`
	var data []byte
	var expiresAt time.Time
	if err := s.pool.QueryRow(ctx, q, key).Scan(&data, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if time.Now().After(expiresAt) {
		_ = s.Delete(ctx, key)
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
INSERT INTO sessions (key, data, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE
SET data = EXCLUDED.data,
    expires_at = EXCLUDED.expires_at
`
	_, err := s.pool.Exec(ctx, q, key, value, time.Now().Add(ttl))
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE key = $1`, key)
	return err
}

// Purge removes expired rows and reports how many were deleted.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
