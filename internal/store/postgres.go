package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ultralove/dod/internal/pipeline"
)

// PostgresStore keeps results as JSONB rows.
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxHistory int
	maxAge     time.Duration
}

const createResultsSQL = `
    CREATE TABLE IF NOT EXISTS dod_results (
        controller  text        NOT NULL,
        selector    text        NOT NULL,
        computed_at timestamptz NOT NULL,
        payload     jsonb       NOT NULL,
        PRIMARY KEY (controller, selector, computed_at)
    )
`

const insertResultSQL = `
    INSERT INTO dod_results (controller, selector, computed_at, payload)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (controller, selector, computed_at) DO UPDATE SET payload = EXCLUDED.payload
`

const trimByCountSQL = `
    DELETE FROM dod_results
    WHERE controller = $1 AND selector = $2 AND computed_at < (
        SELECT computed_at FROM dod_results
        WHERE controller = $1 AND selector = $2
        ORDER BY computed_at DESC
        OFFSET $3 LIMIT 1
    )
`

const trimByAgeSQL = `
    DELETE FROM dod_results
    WHERE controller = $1 AND selector = $2 AND computed_at < $3
      AND computed_at < (SELECT max(computed_at) FROM dod_results WHERE controller = $1 AND selector = $2)
`

const latestResultSQL = `
    SELECT payload FROM dod_results
    WHERE controller = $1 AND selector = $2
    ORDER BY computed_at DESC
    LIMIT 1
`

const rangeResultsSQL = `
    SELECT payload FROM dod_results
    WHERE controller = $1 AND selector = $2 AND computed_at BETWEEN $3 AND $4
    ORDER BY computed_at
`

// NewPostgresStore connects to databaseURL and creates the results table.
func NewPostgresStore(ctx context.Context, databaseURL string, maxHistory int, maxAge time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createResultsSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &PostgresStore{pool: pool, maxHistory: maxHistory, maxAge: maxAge}, nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveResult inserts r and enforces retention in one transaction.
func (s *PostgresStore) SaveResult(ctx context.Context, r pipeline.Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertResultSQL, r.Controller, string(r.Selector), r.ComputedAt, payload); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if s.maxHistory > 0 {
		if _, err := tx.Exec(ctx, trimByCountSQL, r.Controller, string(r.Selector), s.maxHistory-1); err != nil {
			return fmt.Errorf("trim results: %w", err)
		}
	}
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		if _, err := tx.Exec(ctx, trimByAgeSQL, r.Controller, string(r.Selector), cutoff); err != nil {
			return fmt.Errorf("trim results: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetLatest returns the most recent result for key.
func (s *PostgresStore) GetLatest(ctx context.Context, key pipeline.Key) (pipeline.Result, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, latestResultSQL, key.Controller, string(key.Selector)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Result{}, ErrNotFound
	}
	if err != nil {
		return pipeline.Result{}, err
	}

	var r pipeline.Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return pipeline.Result{}, fmt.Errorf("decoding result %s: %w", key, err)
	}
	return r, nil
}

// GetRange returns results for key computed between from and to (inclusive).
func (s *PostgresStore) GetRange(ctx context.Context, key pipeline.Key, from, to time.Time) ([]pipeline.Result, error) {
	rows, err := s.pool.Query(ctx, rangeResultsSQL, key.Controller, string(key.Selector), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r pipeline.Result
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decoding result %s: %w", key, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
