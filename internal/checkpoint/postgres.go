package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"oliveyoung-crawler/internal/crawl"
)

// DefaultCheckpointName keys the single-run checkpoint row.
const DefaultCheckpointName = "default"

// PostgresStoreConfig controls the Postgres connection pool used for
// checkpoint rows.
type PostgresStoreConfig struct {
	DSN             string
	Name            string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists checkpoint snapshots as JSONB rows keyed by a
// checkpoint name, so several crawlers can share one database.
type PostgresStore struct {
	pool pgPool
	name string
}

// NewPostgresStore connects a pool using the provided config.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = DefaultCheckpointName
	}
	return &PostgresStore{pool: pool, name: name}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgPool, name string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if name == "" {
		name = DefaultCheckpointName
	}
	return &PostgresStore{pool: pool, name: name}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the checkpoint row. A missing row or an undecodable snapshot
// yields an empty state and nil error so a fresh run can proceed.
func (s *PostgresStore) Load(ctx context.Context) (crawl.State, error) {
	query := `
		SELECT state
		FROM crawl_checkpoints
		WHERE name = $1;
	`
	var payload []byte
	err := s.pool.QueryRow(ctx, query, s.name).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawl.State{}, nil
		}
		return crawl.State{}, fmt.Errorf("load checkpoint: %w", err)
	}
	var state crawl.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return crawl.State{}, nil
	}
	return state, nil
}

// Save upserts the checkpoint snapshot.
func (s *PostgresStore) Save(ctx context.Context, state crawl.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	query := `
		INSERT INTO crawl_checkpoints (name, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.pool.Exec(ctx, query, s.name, payload, state.UpdatedAt); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
