package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS loc_cache_repos (
	full_name TEXT PRIMARY KEY,
	entry     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS loc_cache_meta (
	id           BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
	last_updated TIMESTAMPTZ NOT NULL
);`

// PostgresStore keeps the cache in two tables. Save swaps the full content in one transaction.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load implements Store. Query failures make the cache unavailable, an
// undecodable row resets it to empty.
func (s *PostgresStore) Load(ctx context.Context) (domain.Cache, error) {
	c := domain.NewCache()

	err := s.pool.QueryRow(ctx, `SELECT last_updated FROM loc_cache_meta WHERE id`).Scan(&c.LastUpdated)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.NewCache(), fmt.Errorf("%w: read cache metadata: %w", ErrUnavailable, err)
	}

	rows, err := s.pool.Query(ctx, `SELECT full_name, entry FROM loc_cache_repos`)
	if err != nil {
		return domain.NewCache(), fmt.Errorf("%w: read cache entries: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	raws := make(map[string][]byte)
	for rows.Next() {
		var (
			name string
			raw  []byte
		)
		if err := rows.Scan(&name, &raw); err != nil {
			return domain.NewCache(), fmt.Errorf("%w: scan cache entry: %w", ErrUnavailable, err)
		}
		raws[name] = raw
	}
	if err := rows.Err(); err != nil {
		return domain.NewCache(), fmt.Errorf("%w: read cache entries: %w", ErrUnavailable, err)
	}

	for name, raw := range raws {
		var entry domain.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn().Err(err).Msg("cache corrupt, starting empty")
			return domain.NewCache(), nil
		}
		c.Repos[name] = entry
	}
	return normalize(c), nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, c domain.Cache) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if _, err := tx.Exec(ctx, `DELETE FROM loc_cache_repos`); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}

	batch := &pgx.Batch{}
	for name, entry := range c.Repos {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		batch.Queue(`INSERT INTO loc_cache_repos (full_name, entry) VALUES ($1, $2)`, name, raw)
	}
	lastUpdated := c.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}
	batch.Queue(`INSERT INTO loc_cache_meta (id, last_updated) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET last_updated = EXCLUDED.last_updated`, lastUpdated)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write cache entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cache transaction: %w", err)
	}
	return nil
}
