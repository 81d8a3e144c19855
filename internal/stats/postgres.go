package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvimport/internal/core"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS import_run_stats (
    page_id      TEXT        NOT NULL,
    operation_id TEXT        NOT NULL,
    stats        JSONB       NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (page_id, operation_id)
);
CREATE INDEX IF NOT EXISTS import_run_stats_updated_at_idx ON import_run_stats (updated_at);
`

// PostgresStore keeps run records in the import_run_stats table.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore creates a store. ttl <= 0 uses DefaultTTL.
func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{pool: pool, ttl: ttl}
}

// EnsureSchema creates the stats table if it is missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create stats schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key core.RunKey) (core.RunStats, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT stats FROM import_run_stats
		WHERE page_id = $1 AND operation_id = $2 AND updated_at > $3`,
		key.PageID, key.OperationID, p.cutoff(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.RunStats{}, nil
	}
	if err != nil {
		return core.RunStats{}, fmt.Errorf("get stats: %w", err)
	}
	return decodeStats(raw)
}

func (p *PostgresStore) Init(ctx context.Context, key core.RunKey, st core.RunStats) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO import_run_stats (page_id, operation_id, stats, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (page_id, operation_id)
		DO UPDATE SET stats = EXCLUDED.stats, updated_at = EXCLUDED.updated_at`,
		key.PageID, key.OperationID, raw,
	)
	if err != nil {
		return fmt.Errorf("init stats: %w", err)
	}
	return nil
}

// Update locks the record row for the duration of fn so concurrent batch
// calls serialize on it.
func (p *PostgresStore) Update(ctx context.Context, key core.RunKey, fn func(*core.RunStats) error) (core.RunStats, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return core.RunStats{}, fmt.Errorf("begin stats update: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure a row exists to lock. An epoch timestamp reads as expired.
	if _, err := tx.Exec(ctx, `
		INSERT INTO import_run_stats (page_id, operation_id, stats, updated_at)
		VALUES ($1, $2, '{}', to_timestamp(0))
		ON CONFLICT (page_id, operation_id) DO NOTHING`,
		key.PageID, key.OperationID,
	); err != nil {
		return core.RunStats{}, fmt.Errorf("reserve stats row: %w", err)
	}

	var (
		raw       []byte
		updatedAt time.Time
	)
	if err := tx.QueryRow(ctx, `
		SELECT stats, updated_at FROM import_run_stats
		WHERE page_id = $1 AND operation_id = $2
		FOR UPDATE`,
		key.PageID, key.OperationID,
	).Scan(&raw, &updatedAt); err != nil {
		return core.RunStats{}, fmt.Errorf("lock stats: %w", err)
	}

	var st core.RunStats
	if updatedAt.After(p.cutoff()) {
		if st, err = decodeStats(raw); err != nil {
			return core.RunStats{}, err
		}
	}

	if err := fn(&st); err != nil {
		return core.RunStats{}, err
	}

	out, err := json.Marshal(st)
	if err != nil {
		return core.RunStats{}, fmt.Errorf("encode stats: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE import_run_stats SET stats = $3, updated_at = now()
		WHERE page_id = $1 AND operation_id = $2`,
		key.PageID, key.OperationID, out,
	); err != nil {
		return core.RunStats{}, fmt.Errorf("write stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.RunStats{}, fmt.Errorf("commit stats update: %w", err)
	}
	return st, nil
}

func (p *PostgresStore) Clear(ctx context.Context, key core.RunKey) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM import_run_stats WHERE page_id = $1 AND operation_id = $2`,
		key.PageID, key.OperationID,
	)
	if err != nil {
		return fmt.Errorf("clear stats: %w", err)
	}
	return nil
}

// PurgeExpired deletes records past their TTL.
func (p *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM import_run_stats WHERE updated_at <= $1`, p.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purge stats: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) cutoff() time.Time {
	return time.Now().Add(-p.ttl)
}

func decodeStats(raw []byte) (core.RunStats, error) {
	var st core.RunStats
	if err := json.Unmarshal(raw, &st); err != nil {
		return core.RunStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return st, nil
}
