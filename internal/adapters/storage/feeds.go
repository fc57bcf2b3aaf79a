package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ListWallets devuelve todas las wallets con trades o redemptions, ordenadas.
func (s *SQLiteStorage) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet FROM trades
		UNION
		SELECT wallet FROM redemptions
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListWallets: query: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("storage.ListWallets: scan row: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// LoadWallet carga los trades de la wallet, los corporate actions de sus tx
// y sus redemptions.
func (s *SQLiteStorage) LoadWallet(ctx context.Context, wallet string) (domain.WalletInputs, error) {
	wallet = domain.NormalizeHash(wallet)
	in := domain.WalletInputs{Wallet: wallet}

	var err error
	if in.Trades, err = s.loadTrades(ctx, wallet); err != nil {
		return in, err
	}
	if in.Actions, err = s.loadActions(ctx, wallet); err != nil {
		return in, err
	}
	if in.Redemptions, err = s.loadRedemptions(ctx, wallet); err != nil {
		return in, err
	}
	return in, nil
}

func (s *SQLiteStorage) loadTrades(ctx context.Context, wallet string) ([]domain.TradeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, token_id, side, role, quantity, price, usdc_amount,
		       tx_hash, log_index, ts_ms, source, confidence
		FROM trades
		WHERE wallet = ?
		ORDER BY ts_ms, tx_hash, log_index, rowid
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("storage.loadTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeEvent
	for rows.Next() {
		var (
			t                  domain.TradeEvent
			side, role, source string
			qty, price, usdc   string
			tsMs               int64
		)
		if err := rows.Scan(&t.Wallet, &t.TokenID, &side, &role, &qty, &price, &usdc,
			&t.TxHash, &t.LogIndex, &tsMs, &source, &t.Source.Confidence); err != nil {
			return nil, fmt.Errorf("storage.loadTrades: scan row: %w", err)
		}
		// lado inválido: se deja pasar y el normalizador lo excluye como integridad
		t.Side = domain.Side(side)
		t.Role = domain.ParseRole(role)
		t.Source.Kind = domain.SourceKind(source)
		t.Timestamp = fromMillis(tsMs)

		var p decimals
		t.Quantity = p.parse("quantity", qty)
		t.Price = p.parse("price", price)
		t.USDCAmount = p.parse("usdc_amount", usdc)
		if p.err != nil {
			return nil, fmt.Errorf("storage.loadTrades: %s: %w", t.TxHash, p.err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStorage) loadActions(ctx context.Context, wallet string) ([]domain.CorporateActionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, log_index, kind, condition_id, usdc_amount, amount,
		       outcome_count, stakeholder, ts_ms
		FROM corporate_actions
		WHERE tx_hash IN (SELECT DISTINCT tx_hash FROM trades WHERE wallet = ?)
		ORDER BY ts_ms, tx_hash, log_index
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("storage.loadActions: query: %w", err)
	}
	defer rows.Close()

	var actions []domain.CorporateActionEvent
	for rows.Next() {
		var (
			a            domain.CorporateActionEvent
			kind         string
			usdc, amount string
			tsMs         int64
		)
		if err := rows.Scan(&a.TxHash, &a.LogIndex, &kind, &a.ConditionID, &usdc, &amount,
			&a.OutcomeCount, &a.Stakeholder, &tsMs); err != nil {
			return nil, fmt.Errorf("storage.loadActions: scan row: %w", err)
		}
		a.Kind = domain.CorporateActionKind(kind)
		a.Timestamp = fromMillis(tsMs)

		var p decimals
		a.USDCAmount = p.parse("usdc_amount", usdc)
		a.Amount = p.parse("amount", amount)
		if p.err != nil {
			return nil, fmt.Errorf("storage.loadActions: %s: %w", a.TxHash, p.err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *SQLiteStorage) loadRedemptions(ctx context.Context, wallet string) ([]domain.RedemptionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, condition_id, token_id, quantity, payout, tx_hash, log_index, ts_ms
		FROM redemptions
		WHERE wallet = ?
		ORDER BY ts_ms, tx_hash, token_id
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("storage.loadRedemptions: query: %w", err)
	}
	defer rows.Close()

	var reds []domain.RedemptionEvent
	for rows.Next() {
		var (
			r           domain.RedemptionEvent
			qty, payout string
			tsMs        int64
		)
		if err := rows.Scan(&r.Wallet, &r.ConditionID, &r.TokenID, &qty, &payout,
			&r.TxHash, &r.LogIndex, &tsMs); err != nil {
			return nil, fmt.Errorf("storage.loadRedemptions: scan row: %w", err)
		}
		r.Timestamp = fromMillis(tsMs)

		var p decimals
		r.Quantity = p.parse("quantity", qty)
		r.Payout = p.parse("payout", payout)
		if p.err != nil {
			return nil, fmt.Errorf("storage.loadRedemptions: %s: %w", r.TxHash, p.err)
		}
		reds = append(reds, r)
	}
	return reds, rows.Err()
}

// LoadResolutions devuelve todos los registros de resolución.
func (s *SQLiteStorage) LoadResolutions(ctx context.Context) ([]domain.ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, outcome_index, payout_numerator, payout_denominator, resolved_at_ms
		FROM resolutions
		ORDER BY condition_id, outcome_index
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadResolutions: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.ResolutionRecord
	for rows.Next() {
		var (
			r        domain.ResolutionRecord
			num, den string
			atMs     int64
		)
		if err := rows.Scan(&r.ConditionID, &r.OutcomeIndex, &num, &den, &atMs); err != nil {
			return nil, fmt.Errorf("storage.LoadResolutions: scan row: %w", err)
		}
		r.ResolvedAt = fromMillis(atMs)

		var p decimals
		r.PayoutNumerator = p.parse("payout_numerator", num)
		r.PayoutDenominator = p.parse("payout_denominator", den)
		if p.err != nil {
			return nil, fmt.Errorf("storage.LoadResolutions: %s: %w", r.ConditionID, p.err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// LoadTokens devuelve el mapeo token → condición.
func (s *SQLiteStorage) LoadTokens(ctx context.Context) ([]domain.TokenInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, condition_id, outcome_index, outcome_count
		FROM tokens
		ORDER BY condition_id, outcome_index
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadTokens: query: %w", err)
	}
	defer rows.Close()

	var infos []domain.TokenInfo
	for rows.Next() {
		var t domain.TokenInfo
		if err := rows.Scan(&t.TokenID, &t.ConditionID, &t.OutcomeIndex, &t.OutcomeCount); err != nil {
			return nil, fmt.Errorf("storage.LoadTokens: scan row: %w", err)
		}
		infos = append(infos, t)
	}
	return infos, rows.Err()
}
