package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcelsud/tower-poller/checkpoint"
	"github.com/marcelsud/tower-poller/input"
)

/* PostgreSQL implementation of checkpoint.Store
 * One row per (input, category). The upsert keeps the greatest cursor,
 * so a stale write can never regress a committed one.
 */

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a pool, pings it and applies the schema
func NewStore(ctx context.Context, dbURL string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying checkpoint schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, inputName string, category input.Category) (int64, error) {
	var cursor int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_id FROM checkpoints WHERE input_key = $1 AND field = $2`,
		checkpoint.Key(inputName), category.CheckpointField(),
	).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, checkpoint.GetError(fmt.Errorf("selecting checkpoint: %w", err))
	}
	return cursor, nil
}

func (s *Store) Set(ctx context.Context, inputName string, category input.Category, cursor int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (input_key, field, last_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (input_key, field) DO UPDATE
		SET last_id = GREATEST(checkpoints.last_id, EXCLUDED.last_id),
		    updated_at = now()
	`, checkpoint.Key(inputName), category.CheckpointField(), cursor)
	if err != nil {
		return checkpoint.SetError(fmt.Errorf("upserting checkpoint: %w", err))
	}
	return nil
}

// Ping validates DB connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}
