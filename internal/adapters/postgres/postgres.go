package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallet_pnl (
    wallet                 TEXT PRIMARY KEY,
    run_id                 TEXT        NOT NULL,
    realized_pnl           NUMERIC     NOT NULL,
    unrealized_pnl         NUMERIC     NOT NULL,
    trade_count            INTEGER     NOT NULL,
    total_trade_count      INTEGER     NOT NULL,
    taker_trade_count      INTEGER     NOT NULL,
    external_sells         NUMERIC     NOT NULL,
    total_sell_volume      NUMERIC     NOT NULL,
    unresolved_cost_basis  NUMERIC     NOT NULL,
    external_sells_ratio   NUMERIC     NOT NULL,
    open_exposure_ratio    NUMERIC,
    taker_ratio            NUMERIC     NOT NULL,
    profit_factor          NUMERIC,
    profit_factor_infinite BOOLEAN     NOT NULL DEFAULT FALSE,
    positions              INTEGER     NOT NULL,
    open_positions         INTEGER     NOT NULL,
    eligible               BOOLEAN     NOT NULL,
    ineligible_reasons     TEXT[]      NOT NULL DEFAULT '{}',
    computed_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wallet_pnl_eligible ON wallet_pnl (eligible, realized_pnl DESC);

CREATE TABLE IF NOT EXISTS pnl_runs (
    run_id           TEXT PRIMARY KEY,
    started_at       TIMESTAMPTZ NOT NULL,
    finished_at      TIMESTAMPTZ NOT NULL,
    full_run         BOOLEAN     NOT NULL,
    aborted          BOOLEAN     NOT NULL,
    wallets          INTEGER     NOT NULL,
    computed         INTEGER     NOT NULL,
    eligible         INTEGER     NOT NULL,
    skipped          INTEGER     NOT NULL,
    diagnostics      JSONB       NOT NULL
);

CREATE TABLE IF NOT EXISTS skipped_wallets (
    run_id      TEXT    NOT NULL,
    wallet      TEXT    NOT NULL,
    reason      TEXT    NOT NULL,
    detail      TEXT    NOT NULL DEFAULT '',
    event_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, wallet)
);
`

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewPool: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewPool: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.NewPool: ping: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Migrate aplica el schema (idempotente).
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
