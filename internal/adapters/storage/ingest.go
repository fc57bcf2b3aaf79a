package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// SaveWalletInputs materializa los eventos de una wallet (p.ej. los traídos
// de la Data API) en una sola transacción. Los registros ya presentes se ignoran.
func (s *SQLiteStorage) SaveWalletInputs(ctx context.Context, in domain.WalletInputs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveWalletInputs: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertTrades(ctx, tx, in.Trades); err != nil {
		return fmt.Errorf("storage.SaveWalletInputs: %w", err)
	}
	if err := insertActions(ctx, tx, in.Actions); err != nil {
		return fmt.Errorf("storage.SaveWalletInputs: %w", err)
	}
	if err := insertRedemptions(ctx, tx, in.Redemptions); err != nil {
		return fmt.Errorf("storage.SaveWalletInputs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveWalletInputs: commit: %w", err)
	}
	return nil
}

// SaveTrades inserta trades; los duplicados exactos se ignoran.
func (s *SQLiteStorage) SaveTrades(ctx context.Context, trades []domain.TradeEvent) error {
	return s.inTx(ctx, "SaveTrades", func(tx *sql.Tx) error { return insertTrades(ctx, tx, trades) })
}

// SaveCorporateActions inserta splits y merges.
func (s *SQLiteStorage) SaveCorporateActions(ctx context.Context, actions []domain.CorporateActionEvent) error {
	return s.inTx(ctx, "SaveCorporateActions", func(tx *sql.Tx) error { return insertActions(ctx, tx, actions) })
}

// SaveRedemptions inserta redemptions.
func (s *SQLiteStorage) SaveRedemptions(ctx context.Context, reds []domain.RedemptionEvent) error {
	return s.inTx(ctx, "SaveRedemptions", func(tx *sql.Tx) error { return insertRedemptions(ctx, tx, reds) })
}

// SaveResolutions hace upsert de los payouts por (condition, outcome).
func (s *SQLiteStorage) SaveResolutions(ctx context.Context, recs []domain.ResolutionRecord) error {
	return s.inTx(ctx, "SaveResolutions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO resolutions
				(condition_id, outcome_index, payout_numerator, payout_denominator, resolved_at_ms)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx,
				domain.NormalizeHash(r.ConditionID),
				r.OutcomeIndex,
				r.PayoutNumerator.String(),
				r.PayoutDenominator.String(),
				toMillis(r.ResolvedAt),
			); err != nil {
				return fmt.Errorf("insert %s/%d: %w", r.ConditionID, r.OutcomeIndex, err)
			}
		}
		return nil
	})
}

// SaveTokens hace upsert del mapeo token → condición.
func (s *SQLiteStorage) SaveTokens(ctx context.Context, infos []domain.TokenInfo) error {
	return s.inTx(ctx, "SaveTokens", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO tokens (token_id, condition_id, outcome_index, outcome_count)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, t := range infos {
			if _, err := stmt.ExecContext(ctx, t.TokenID, domain.NormalizeHash(t.ConditionID), t.OutcomeIndex, t.OutcomeCount); err != nil {
				return fmt.Errorf("insert token %s: %w", t.TokenID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return fmt.Errorf("storage.%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.%s: commit: %w", op, err)
	}
	return nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, trades []domain.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trades
			(wallet, token_id, side, role, quantity, price, usdc_amount,
			 tx_hash, log_index, ts_ms, source, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare trades: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		role := t.Role
		if role == "" {
			role = domain.RoleUnknown
		}
		if _, err := stmt.ExecContext(ctx,
			domain.NormalizeHash(t.Wallet),
			t.TokenID,
			string(t.Side),
			string(role),
			t.Quantity.String(),
			t.Price.String(),
			t.USDCAmount.String(),
			domain.NormalizeHash(t.TxHash),
			t.LogIndex,
			toMillis(t.Timestamp),
			string(t.Source.Kind),
			t.Source.Confidence,
		); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.Ref(), err)
		}
	}
	return nil
}

func insertActions(ctx context.Context, tx *sql.Tx, actions []domain.CorporateActionEvent) error {
	if len(actions) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO corporate_actions
			(tx_hash, log_index, kind, condition_id, usdc_amount, amount,
			 outcome_count, stakeholder, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare actions: %w", err)
	}
	defer stmt.Close()

	for _, a := range actions {
		if _, err := stmt.ExecContext(ctx,
			domain.NormalizeHash(a.TxHash),
			a.LogIndex,
			string(a.Kind),
			domain.NormalizeHash(a.ConditionID),
			a.USDCAmount.String(),
			a.Amount.String(),
			a.OutcomeCount,
			domain.NormalizeHash(a.Stakeholder),
			toMillis(a.Timestamp),
		); err != nil {
			return fmt.Errorf("insert action %s: %w", a.Ref(), err)
		}
	}
	return nil
}

func insertRedemptions(ctx context.Context, tx *sql.Tx, reds []domain.RedemptionEvent) error {
	if len(reds) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO redemptions
			(wallet, condition_id, token_id, quantity, payout, tx_hash, log_index, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare redemptions: %w", err)
	}
	defer stmt.Close()

	for _, r := range reds {
		if _, err := stmt.ExecContext(ctx,
			domain.NormalizeHash(r.Wallet),
			domain.NormalizeHash(r.ConditionID),
			r.TokenID,
			r.Quantity.String(),
			r.Payout.String(),
			domain.NormalizeHash(r.TxHash),
			r.LogIndex,
			toMillis(r.Timestamp),
		); err != nil {
			return fmt.Errorf("insert redemption %s: %w", r.Ref(), err)
		}
	}
	return nil
}
