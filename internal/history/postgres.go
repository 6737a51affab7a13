package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icemetrics/icemetrics/internal/aggregate"
)

const createRunsTable = `CREATE TABLE IF NOT EXISTS icemetrics_runs (
	warehouse       TEXT        NOT NULL,
	run_id          TEXT        NOT NULL,
	collected_at    TIMESTAMPTZ NOT NULL,
	total_bytes     BIGINT      NOT NULL,
	partial         BOOLEAN     NOT NULL DEFAULT FALSE,
	namespace_bytes JSONB       NOT NULL,
	PRIMARY KEY (warehouse, run_id)
)`

// Postgres keeps every run's baseline in the icemetrics_runs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and creates the runs table if needed.
func OpenPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	if _, err := pool.Exec(ctx, createRunsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating icemetrics_runs: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Previous(ctx context.Context, warehouse string) (*aggregate.Baseline, error) {
	b := &aggregate.Baseline{Warehouse: warehouse}
	err := p.pool.QueryRow(ctx, `
		SELECT run_id, collected_at, total_bytes, partial, namespace_bytes
		FROM icemetrics_runs
		WHERE warehouse = $1
		ORDER BY collected_at DESC
		LIMIT 1`, warehouse).
		Scan(&b.RunID, &b.CollectedAt, &b.TotalBytes, &b.Partial, &b.NamespaceBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading previous run: %w", err)
	}
	b.CollectedAt = b.CollectedAt.UTC()
	return b, nil
}

func (p *Postgres) Record(ctx context.Context, b aggregate.Baseline) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO icemetrics_runs (warehouse, run_id, collected_at, total_bytes, partial, namespace_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (warehouse, run_id) DO NOTHING`,
		b.Warehouse, b.RunID, b.CollectedAt, b.TotalBytes, b.Partial, b.NamespaceBytes)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", b.RunID, err)
	}
	return nil
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}
