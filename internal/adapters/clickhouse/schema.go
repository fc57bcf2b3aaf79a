package clickhouse

import (
	"context"
	"fmt"
)

// Tablas del warehouse. ClickHouse no ejecuta varias sentencias por query,
// por eso van separadas. ReplacingMergeTree colapsa reingestas del mismo registro.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pnl_trades (
		wallet      String,
		token_id    String,
		side        LowCardinality(String),
		role        LowCardinality(String),
		quantity    Decimal(38, 18),
		price       Decimal(38, 18),
		usdc_amount Decimal(38, 18),
		tx_hash     String,
		log_index   Int64,
		ts          DateTime64(3, 'UTC'),
		source      LowCardinality(String),
		confidence  Int32
	) ENGINE = ReplacingMergeTree
	ORDER BY (wallet, tx_hash, token_id, log_index, side, source, quantity, price)`,

	`CREATE TABLE IF NOT EXISTS pnl_corporate_actions (
		tx_hash       String,
		log_index     Int64,
		kind          LowCardinality(String),
		condition_id  String,
		usdc_amount   Decimal(38, 18),
		amount        Decimal(38, 18),
		outcome_count UInt8,
		stakeholder   String,
		ts            DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree
	ORDER BY (tx_hash, log_index, kind)`,

	`CREATE TABLE IF NOT EXISTS pnl_redemptions (
		wallet       String,
		condition_id String,
		token_id     String,
		quantity     Decimal(38, 18),
		payout       Decimal(38, 18),
		tx_hash      String,
		log_index    Int64,
		ts           DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree
	ORDER BY (wallet, tx_hash, token_id)`,

	`CREATE TABLE IF NOT EXISTS pnl_resolutions (
		condition_id       String,
		outcome_index      Int32,
		payout_numerator   Decimal(38, 18),
		payout_denominator Decimal(38, 18),
		resolved_at        DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree
	ORDER BY (condition_id, outcome_index)`,

	`CREATE TABLE IF NOT EXISTS pnl_tokens (
		token_id      String,
		condition_id  String,
		outcome_index UInt8,
		outcome_count UInt8
	) ENGINE = ReplacingMergeTree
	ORDER BY token_id`,
}

// Migrate crea las tablas si no existen.
func (c *Conn) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if err := c.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse.Migrate: statement %d: %w", i, err)
		}
	}
	return nil
}
