package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ReplaceSummaries reemplaza en una transacción las filas de las wallets del
// run. En un run completo se vacía la tabla: una wallet sin summary nuevo no
// conserva el anterior.
func (s *SQLiteStorage) ReplaceSummaries(ctx context.Context, out domain.RunOutput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.ReplaceSummaries: begin tx: %w", err)
	}
	defer tx.Rollback()

	if out.Full {
		if _, err := tx.ExecContext(ctx, `DELETE FROM wallet_pnl`); err != nil {
			return fmt.Errorf("storage.ReplaceSummaries: clear: %w", err)
		}
	} else {
		del, err := tx.PrepareContext(ctx, `DELETE FROM wallet_pnl WHERE wallet = ?`)
		if err != nil {
			return fmt.Errorf("storage.ReplaceSummaries: prepare delete: %w", err)
		}
		defer del.Close()
		for _, w := range out.Wallets {
			if _, err := del.ExecContext(ctx, w); err != nil {
				return fmt.Errorf("storage.ReplaceSummaries: delete %s: %w", w, err)
			}
		}
	}

	ins, err := tx.PrepareContext(ctx, `
		INSERT INTO wallet_pnl
			(wallet, run_id, realized_pnl, unrealized_pnl, trade_count, total_trade_count,
			 taker_trade_count, external_sells, total_sell_volume, unresolved_cost_basis,
			 external_sells_ratio, open_exposure_ratio, taker_ratio, profit_factor,
			 profit_factor_infinite, positions, open_positions, eligible,
			 ineligible_reasons, computed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.ReplaceSummaries: prepare insert: %w", err)
	}
	defer ins.Close()

	for _, sum := range out.Summaries {
		if _, err := ins.ExecContext(ctx,
			sum.Wallet,
			out.RunID,
			sum.RealizedPnL.String(),
			sum.UnrealizedPnL.String(),
			sum.TradeCount,
			sum.TotalTradeCount,
			sum.TakerTradeCount,
			sum.ExternalSells.String(),
			sum.TotalSellVolume.String(),
			sum.UnresolvedCostBasis.String(),
			sum.ExternalSellsRatio.String(),
			nullDecimal(sum.OpenExposureRatio),
			sum.TakerRatio.String(),
			nullDecimal(sum.ProfitFactor),
			boolInt(sum.ProfitFactorInfinite),
			sum.Positions,
			sum.OpenPositions,
			boolInt(sum.Eligible),
			strings.Join(sum.IneligibleReasons, ","),
			toMillis(sum.ComputedAt),
		); err != nil {
			return fmt.Errorf("storage.ReplaceSummaries: insert %s: %w", sum.Wallet, err)
		}
	}

	skip, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO skipped_wallets (run_id, wallet, reason, detail, event_count)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.ReplaceSummaries: prepare skipped: %w", err)
	}
	defer skip.Close()
	for _, sk := range out.Skipped {
		if _, err := skip.ExecContext(ctx, out.RunID, sk.Wallet, string(sk.Reason), sk.Detail, sk.EventCount); err != nil {
			return fmt.Errorf("storage.ReplaceSummaries: insert skipped %s: %w", sk.Wallet, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.ReplaceSummaries: commit: %w", err)
	}
	return nil
}

// SaveDiagnostics persiste los diagnósticos del run (upsert por run_id).
func (s *SQLiteStorage) SaveDiagnostics(ctx context.Context, diag domain.RunDiagnostics) error {
	blob, err := json.Marshal(diag)
	if err != nil {
		return fmt.Errorf("storage.SaveDiagnostics: encode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pnl_runs
			(run_id, started_at_ms, finished_at_ms, full, aborted, wallets, computed,
			 eligible, skipped, ambiguous, integrity_errors, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		diag.RunID,
		toMillis(diag.StartedAt),
		toMillis(diag.FinishedAt),
		boolInt(diag.Full),
		boolInt(diag.Aborted),
		diag.Wallets,
		diag.Computed,
		diag.Eligible,
		len(diag.Skipped),
		diag.Ambiguous,
		diag.IntegrityErrors,
		string(blob),
	); err != nil {
		return fmt.Errorf("storage.SaveDiagnostics: insert %s: %w", diag.RunID, err)
	}
	return nil
}

// GetSummary devuelve el summary vigente de la wallet, o nil si no tiene.
func (s *SQLiteStorage) GetSummary(ctx context.Context, wallet string) (*domain.WalletPnlSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet, run_id, realized_pnl, unrealized_pnl, trade_count, total_trade_count,
		       taker_trade_count, external_sells, total_sell_volume, unresolved_cost_basis,
		       external_sells_ratio, open_exposure_ratio, taker_ratio, profit_factor,
		       profit_factor_infinite, positions, open_positions, eligible,
		       ineligible_reasons, computed_at_ms
		FROM wallet_pnl
		WHERE wallet = ?
	`, domain.NormalizeHash(wallet))

	var (
		sum                              domain.WalletPnlSummary
		realized, unrealized             string
		external, sellVolume, unresolved string
		externalRatio, takerRatio        string
		openExposure, profitFactor       sql.NullString
		pfInfinite, eligible             int
		reasons                          string
		computedMs                       int64
	)
	err := row.Scan(&sum.Wallet, &sum.RunID, &realized, &unrealized, &sum.TradeCount,
		&sum.TotalTradeCount, &sum.TakerTradeCount, &external, &sellVolume, &unresolved,
		&externalRatio, &openExposure, &takerRatio, &profitFactor, &pfInfinite,
		&sum.Positions, &sum.OpenPositions, &eligible, &reasons, &computedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetSummary: scan: %w", err)
	}

	var p decimals
	sum.RealizedPnL = p.parse("realized_pnl", realized)
	sum.UnrealizedPnL = p.parse("unrealized_pnl", unrealized)
	sum.ExternalSells = p.parse("external_sells", external)
	sum.TotalSellVolume = p.parse("total_sell_volume", sellVolume)
	sum.UnresolvedCostBasis = p.parse("unresolved_cost_basis", unresolved)
	sum.ExternalSellsRatio = p.parse("external_sells_ratio", externalRatio)
	sum.TakerRatio = p.parse("taker_ratio", takerRatio)
	sum.OpenExposureRatio = p.nullable("open_exposure_ratio", openExposure)
	sum.ProfitFactor = p.nullable("profit_factor", profitFactor)
	if p.err != nil {
		return nil, fmt.Errorf("storage.GetSummary: %s: %w", sum.Wallet, p.err)
	}
	sum.ProfitFactorInfinite = pfInfinite == 1
	sum.Eligible = eligible == 1
	if reasons != "" {
		sum.IneligibleReasons = strings.Split(reasons, ",")
	}
	sum.ComputedAt = fromMillis(computedMs)
	return &sum, nil
}

// EligibleWallets devuelve las wallets elegibles del último run, mejores primero.
func (s *SQLiteStorage) EligibleWallets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet FROM wallet_pnl
		WHERE eligible = 1
		ORDER BY CAST(realized_pnl AS REAL) DESC, wallet
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.EligibleWallets: query: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("storage.EligibleWallets: scan row: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// SkippedWallets devuelve los skips registrados para un run.
func (s *SQLiteStorage) SkippedWallets(ctx context.Context, runID string) ([]domain.SkipReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, reason, detail, event_count
		FROM skipped_wallets
		WHERE run_id = ?
		ORDER BY wallet
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.SkippedWallets: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SkipReport
	for rows.Next() {
		var sk domain.SkipReport
		var reason string
		if err := rows.Scan(&sk.Wallet, &reason, &sk.Detail, &sk.EventCount); err != nil {
			return nil, fmt.Errorf("storage.SkippedWallets: scan row: %w", err)
		}
		sk.Reason = domain.SkipReason(reason)
		out = append(out, sk)
	}
	return out, rows.Err()
}

// RunDiagnostics devuelve los diagnósticos guardados de un run.
func (s *SQLiteStorage) RunDiagnostics(ctx context.Context, runID string) (*domain.RunDiagnostics, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT diagnostics FROM pnl_runs WHERE run_id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.RunDiagnostics: scan: %w", err)
	}
	var diag domain.RunDiagnostics
	if err := json.Unmarshal([]byte(blob), &diag); err != nil {
		return nil, fmt.Errorf("storage.RunDiagnostics: decode: %w", err)
	}
	return &diag, nil
}
