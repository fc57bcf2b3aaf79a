package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Sink implements ports.SummarySink on PostgreSQL.
type Sink struct {
	pool *Pool
}

// NewSink creates a new Sink.
func NewSink(pool *Pool) *Sink {
	return &Sink{pool: pool}
}

var _ ports.SummarySink = (*Sink)(nil)

// ReplaceSummaries reemplaza en una transacción las filas del run.
// Run completo: se borran todas las filas antes de insertar.
func (s *Sink) ReplaceSummaries(ctx context.Context, out domain.RunOutput) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres.ReplaceSummaries: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if out.Full {
		if _, err := tx.Exec(ctx, `DELETE FROM wallet_pnl`); err != nil {
			return fmt.Errorf("postgres.ReplaceSummaries: clear: %w", err)
		}
	} else if len(out.Wallets) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM wallet_pnl WHERE wallet = ANY($1)`, out.Wallets); err != nil {
			return fmt.Errorf("postgres.ReplaceSummaries: delete scope: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, sum := range out.Summaries {
		reasons := sum.IneligibleReasons
		if reasons == nil {
			reasons = []string{}
		}
		batch.Queue(`
			INSERT INTO wallet_pnl (
				wallet, run_id, realized_pnl, unrealized_pnl, trade_count, total_trade_count,
				taker_trade_count, external_sells, total_sell_volume, unresolved_cost_basis,
				external_sells_ratio, open_exposure_ratio, taker_ratio, profit_factor,
				profit_factor_infinite, positions, open_positions, eligible,
				ineligible_reasons, computed_at
			) VALUES (
				$1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6,
				$7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
				$11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14::NUMERIC,
				$15, $16, $17, $18,
				$19, $20
			)`,
			sum.Wallet, out.RunID, sum.RealizedPnL.String(), sum.UnrealizedPnL.String(),
			sum.TradeCount, sum.TotalTradeCount,
			sum.TakerTradeCount, sum.ExternalSells.String(), sum.TotalSellVolume.String(),
			sum.UnresolvedCostBasis.String(),
			sum.ExternalSellsRatio.String(), numeric(sum.OpenExposureRatio), sum.TakerRatio.String(),
			numeric(sum.ProfitFactor),
			sum.ProfitFactorInfinite, sum.Positions, sum.OpenPositions, sum.Eligible,
			reasons, sum.ComputedAt,
		)
	}
	for _, sk := range out.Skipped {
		batch.Queue(`
			INSERT INTO skipped_wallets (run_id, wallet, reason, detail, event_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (run_id, wallet) DO UPDATE
			SET reason = EXCLUDED.reason, detail = EXCLUDED.detail, event_count = EXCLUDED.event_count`,
			out.RunID, sk.Wallet, string(sk.Reason), sk.Detail, sk.EventCount,
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres.ReplaceSummaries: insert batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres.ReplaceSummaries: commit: %w", err)
	}
	slog.Debug("postgres summaries replaced", "run_id", out.RunID, "rows", len(out.Summaries))
	return nil
}

// SaveDiagnostics hace upsert de los diagnósticos del run.
func (s *Sink) SaveDiagnostics(ctx context.Context, diag domain.RunDiagnostics) error {
	blob, err := json.Marshal(diag)
	if err != nil {
		return fmt.Errorf("postgres.SaveDiagnostics: encode: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pnl_runs (
			run_id, started_at, finished_at, full_run, aborted,
			wallets, computed, eligible, skipped, diagnostics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			aborted     = EXCLUDED.aborted,
			computed    = EXCLUDED.computed,
			eligible    = EXCLUDED.eligible,
			skipped     = EXCLUDED.skipped,
			diagnostics = EXCLUDED.diagnostics`,
		diag.RunID, diag.StartedAt, diag.FinishedAt, diag.Full, diag.Aborted,
		diag.Wallets, diag.Computed, diag.Eligible, len(diag.Skipped), blob,
	)
	if err != nil {
		return fmt.Errorf("postgres.SaveDiagnostics: insert %s: %w", diag.RunID, err)
	}
	return nil
}

// GetSummary devuelve el summary vigente de la wallet, o nil si no tiene.
func (s *Sink) GetSummary(ctx context.Context, wallet string) (*domain.WalletPnlSummary, error) {
	var (
		sum                              domain.WalletPnlSummary
		realized, unrealized             string
		external, sellVolume, unresolved string
		externalRatio, takerRatio        string
		openExposure, profitFactor       *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, run_id, realized_pnl::TEXT, unrealized_pnl::TEXT, trade_count,
		       total_trade_count, taker_trade_count, external_sells::TEXT,
		       total_sell_volume::TEXT, unresolved_cost_basis::TEXT,
		       external_sells_ratio::TEXT, open_exposure_ratio::TEXT, taker_ratio::TEXT,
		       profit_factor::TEXT, profit_factor_infinite, positions, open_positions,
		       eligible, ineligible_reasons, computed_at
		FROM wallet_pnl
		WHERE wallet = $1`, domain.NormalizeHash(wallet),
	).Scan(
		&sum.Wallet, &sum.RunID, &realized, &unrealized, &sum.TradeCount,
		&sum.TotalTradeCount, &sum.TakerTradeCount, &external,
		&sellVolume, &unresolved,
		&externalRatio, &openExposure, &takerRatio,
		&profitFactor, &sum.ProfitFactorInfinite, &sum.Positions, &sum.OpenPositions,
		&sum.Eligible, &sum.IneligibleReasons, &sum.ComputedAt,
	)
	if isNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.GetSummary: scan: %w", err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&sum.RealizedPnL, realized},
		{&sum.UnrealizedPnL, unrealized},
		{&sum.ExternalSells, external},
		{&sum.TotalSellVolume, sellVolume},
		{&sum.UnresolvedCostBasis, unresolved},
		{&sum.ExternalSellsRatio, externalRatio},
		{&sum.TakerRatio, takerRatio},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("postgres.GetSummary: %s: %w", sum.Wallet, err)
		}
	}
	if sum.OpenExposureRatio, err = optional(openExposure); err != nil {
		return nil, fmt.Errorf("postgres.GetSummary: %s: %w", sum.Wallet, err)
	}
	if sum.ProfitFactor, err = optional(profitFactor); err != nil {
		return nil, fmt.Errorf("postgres.GetSummary: %s: %w", sum.Wallet, err)
	}
	if len(sum.IneligibleReasons) == 0 {
		sum.IneligibleReasons = nil
	}
	sum.ComputedAt = sum.ComputedAt.UTC()
	return &sum, nil
}

// numeric convierte un decimal opcional al parámetro de texto de $n::NUMERIC.
func numeric(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func optional(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
