package storage

// sqlite.go — almacenamiento local del motor de P&L.
//
// Estrategia:
//   - Tablas de entrada materializadas (trades, corporate_actions, redemptions,
//     resolutions, tokens): el motor solo las lee.
//   - `wallet_pnl`: UNA fila por wallet, reemplazada entera en cada run.
//   - `pnl_runs` + `skipped_wallets`: diagnósticos por run, siempre se escriben.
//   - Importes y cantidades en TEXT (decimal exacto), timestamps en ms UTC.
//   - Prune automático al arrancar: runs > 30d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    wallet      TEXT    NOT NULL,
    token_id    TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    role        TEXT    NOT NULL DEFAULT 'UNKNOWN',
    quantity    TEXT    NOT NULL,
    price       TEXT    NOT NULL,
    usdc_amount TEXT    NOT NULL DEFAULT '0',
    tx_hash     TEXT    NOT NULL,
    log_index   INTEGER NOT NULL DEFAULT -1,
    ts_ms       INTEGER NOT NULL,
    source      TEXT    NOT NULL,
    confidence  INTEGER NOT NULL DEFAULT 0
);

-- Varias fuentes pueden describir el mismo fill: la deduplicación es del motor.
CREATE UNIQUE INDEX IF NOT EXISTS ux_trades_record
    ON trades(wallet, tx_hash, token_id, log_index, side, quantity, price, source);
CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet, ts_ms);
CREATE INDEX IF NOT EXISTS idx_trades_tx     ON trades(tx_hash);

CREATE TABLE IF NOT EXISTS corporate_actions (
    tx_hash       TEXT    NOT NULL,
    log_index     INTEGER NOT NULL,
    kind          TEXT    NOT NULL,
    condition_id  TEXT    NOT NULL,
    usdc_amount   TEXT    NOT NULL,
    amount        TEXT    NOT NULL DEFAULT '0',
    outcome_count INTEGER NOT NULL DEFAULT 0,
    stakeholder   TEXT    NOT NULL DEFAULT '',
    ts_ms         INTEGER NOT NULL,
    PRIMARY KEY (tx_hash, log_index, kind)
);

CREATE TABLE IF NOT EXISTS redemptions (
    wallet       TEXT    NOT NULL,
    condition_id TEXT    NOT NULL DEFAULT '',
    token_id     TEXT    NOT NULL,
    quantity     TEXT    NOT NULL,
    payout       TEXT    NOT NULL DEFAULT '0',
    tx_hash      TEXT    NOT NULL,
    log_index    INTEGER NOT NULL DEFAULT -1,
    ts_ms        INTEGER NOT NULL,
    PRIMARY KEY (wallet, tx_hash, token_id)
);

CREATE TABLE IF NOT EXISTS resolutions (
    condition_id       TEXT    NOT NULL,
    outcome_index      INTEGER NOT NULL,
    payout_numerator   TEXT    NOT NULL,
    payout_denominator TEXT    NOT NULL,
    resolved_at_ms     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (condition_id, outcome_index)
);

CREATE TABLE IF NOT EXISTS tokens (
    token_id      TEXT PRIMARY KEY,
    condition_id  TEXT    NOT NULL,
    outcome_index INTEGER NOT NULL,
    outcome_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS wallet_pnl (
    wallet                 TEXT PRIMARY KEY,
    run_id                 TEXT    NOT NULL,
    realized_pnl           TEXT    NOT NULL,
    unrealized_pnl         TEXT    NOT NULL,
    trade_count            INTEGER NOT NULL,
    total_trade_count      INTEGER NOT NULL,
    taker_trade_count      INTEGER NOT NULL,
    external_sells         TEXT    NOT NULL,
    total_sell_volume      TEXT    NOT NULL,
    unresolved_cost_basis  TEXT    NOT NULL,
    external_sells_ratio   TEXT    NOT NULL,
    open_exposure_ratio    TEXT,
    taker_ratio            TEXT    NOT NULL,
    profit_factor          TEXT,
    profit_factor_infinite INTEGER NOT NULL DEFAULT 0,
    positions              INTEGER NOT NULL,
    open_positions         INTEGER NOT NULL,
    eligible               INTEGER NOT NULL,
    ineligible_reasons     TEXT    NOT NULL DEFAULT '',
    computed_at_ms         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pnl_eligible ON wallet_pnl(eligible, realized_pnl);

CREATE TABLE IF NOT EXISTS pnl_runs (
    run_id           TEXT PRIMARY KEY,
    started_at_ms    INTEGER NOT NULL,
    finished_at_ms   INTEGER NOT NULL,
    full             INTEGER NOT NULL,
    aborted          INTEGER NOT NULL,
    wallets          INTEGER NOT NULL,
    computed         INTEGER NOT NULL,
    eligible         INTEGER NOT NULL,
    skipped          INTEGER NOT NULL,
    ambiguous        INTEGER NOT NULL,
    integrity_errors INTEGER NOT NULL,
    diagnostics      TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS skipped_wallets (
    run_id      TEXT    NOT NULL,
    wallet      TEXT    NOT NULL,
    reason      TEXT    NOT NULL,
    detail      TEXT    NOT NULL DEFAULT '',
    event_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, wallet)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON pnl_runs(started_at_ms DESC);
`

const retentionRuns = 30 * 24 * time.Hour

// SQLiteStorage implementa los feeds de entrada y el SummarySink sobre SQLite
// (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia runs antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina diagnósticos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns).UnixMilli()
	s.db.ExecContext(ctx, `DELETE FROM skipped_wallets WHERE run_id IN (SELECT run_id FROM pnl_runs WHERE started_at_ms < ?)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM pnl_runs WHERE started_at_ms < ?`, cutoff)
}

// --- helpers internos ---

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// decimals parsea varias columnas TEXT a decimal en un solo paso.
type decimals struct {
	err error
}

func (p *decimals) parse(field, s string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", field, err)
	}
	return d
}

func (p *decimals) nullable(field string, s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := p.parse(field, s.String)
	return &d
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
