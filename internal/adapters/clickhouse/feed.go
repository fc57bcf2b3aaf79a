package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Feed lee del warehouse los eventos materializados. Las columnas decimales
// se leen con toString() para no pasar por float.
//
// Tablas esperadas: pnl_trades, pnl_corporate_actions, pnl_redemptions,
// pnl_resolutions, pnl_tokens (ver schema.go).
type Feed struct {
	conn *Conn
}

// NewFeed creates a new Feed.
func NewFeed(conn *Conn) *Feed {
	return &Feed{conn: conn}
}

var (
	_ ports.WalletLister   = (*Feed)(nil)
	_ ports.WalletFeed     = (*Feed)(nil)
	_ ports.ResolutionFeed = (*Feed)(nil)
	_ ports.TokenFeed      = (*Feed)(nil)
)

// ListWallets devuelve las wallets con trades o redemptions.
func (f *Feed) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT DISTINCT wallet FROM (
			SELECT lower(wallet) AS wallet FROM pnl_trades
			UNION ALL
			SELECT lower(wallet) AS wallet FROM pnl_redemptions
		)
		ORDER BY wallet
	`)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.ListWallets: query: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("clickhouse.ListWallets: scan: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// LoadWallet carga trades, corporate actions de sus tx y redemptions.
func (f *Feed) LoadWallet(ctx context.Context, wallet string) (domain.WalletInputs, error) {
	wallet = domain.NormalizeHash(wallet)
	in := domain.WalletInputs{Wallet: wallet}

	var err error
	if in.Trades, err = f.loadTrades(ctx, wallet); err != nil {
		return in, err
	}
	if in.Actions, err = f.loadActions(ctx, wallet); err != nil {
		return in, err
	}
	if in.Redemptions, err = f.loadRedemptions(ctx, wallet); err != nil {
		return in, err
	}
	return in, nil
}

func (f *Feed) loadTrades(ctx context.Context, wallet string) ([]domain.TradeEvent, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT lower(wallet), token_id, side, role, toString(quantity), toString(price),
		       toString(usdc_amount), lower(tx_hash), log_index, ts, source, confidence
		FROM pnl_trades
		WHERE lower(wallet) = ?
		ORDER BY ts, tx_hash, log_index
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.loadTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeEvent
	for rows.Next() {
		var (
			t                  domain.TradeEvent
			side, role, source string
			qty, price, usdc   string
			confidence         int32
			ts                 time.Time
		)
		if err := rows.Scan(&t.Wallet, &t.TokenID, &side, &role, &qty, &price, &usdc,
			&t.TxHash, &t.LogIndex, &ts, &source, &confidence); err != nil {
			return nil, fmt.Errorf("clickhouse.loadTrades: scan: %w", err)
		}
		t.Side = domain.Side(side)
		t.Role = domain.ParseRole(role)
		t.Source = domain.Source{Kind: domain.SourceKind(source), Confidence: int(confidence)}
		t.Timestamp = ts.UTC()

		var p decimals
		t.Quantity = p.parse("quantity", qty)
		t.Price = p.parse("price", price)
		t.USDCAmount = p.parse("usdc_amount", usdc)
		if p.err != nil {
			return nil, fmt.Errorf("clickhouse.loadTrades: %s: %w", t.TxHash, p.err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (f *Feed) loadActions(ctx context.Context, wallet string) ([]domain.CorporateActionEvent, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT lower(tx_hash), log_index, kind, lower(condition_id), toString(usdc_amount),
		       toString(amount), outcome_count, lower(stakeholder), ts
		FROM pnl_corporate_actions
		WHERE lower(tx_hash) IN (SELECT lower(tx_hash) FROM pnl_trades WHERE lower(wallet) = ?)
		ORDER BY ts, tx_hash, log_index
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.loadActions: query: %w", err)
	}
	defer rows.Close()

	var actions []domain.CorporateActionEvent
	for rows.Next() {
		var (
			a            domain.CorporateActionEvent
			kind         string
			usdc, amount string
			outcomes     uint8
			ts           time.Time
		)
		if err := rows.Scan(&a.TxHash, &a.LogIndex, &kind, &a.ConditionID, &usdc, &amount,
			&outcomes, &a.Stakeholder, &ts); err != nil {
			return nil, fmt.Errorf("clickhouse.loadActions: scan: %w", err)
		}
		a.Kind = domain.CorporateActionKind(kind)
		a.OutcomeCount = int(outcomes)
		a.Timestamp = ts.UTC()

		var p decimals
		a.USDCAmount = p.parse("usdc_amount", usdc)
		a.Amount = p.parse("amount", amount)
		if p.err != nil {
			return nil, fmt.Errorf("clickhouse.loadActions: %s: %w", a.TxHash, p.err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (f *Feed) loadRedemptions(ctx context.Context, wallet string) ([]domain.RedemptionEvent, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT lower(wallet), lower(condition_id), token_id, toString(quantity),
		       toString(payout), lower(tx_hash), log_index, ts
		FROM pnl_redemptions
		WHERE lower(wallet) = ?
		ORDER BY ts, tx_hash, token_id
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.loadRedemptions: query: %w", err)
	}
	defer rows.Close()

	var reds []domain.RedemptionEvent
	for rows.Next() {
		var (
			r           domain.RedemptionEvent
			qty, payout string
			ts          time.Time
		)
		if err := rows.Scan(&r.Wallet, &r.ConditionID, &r.TokenID, &qty, &payout,
			&r.TxHash, &r.LogIndex, &ts); err != nil {
			return nil, fmt.Errorf("clickhouse.loadRedemptions: scan: %w", err)
		}
		r.Timestamp = ts.UTC()

		var p decimals
		r.Quantity = p.parse("quantity", qty)
		r.Payout = p.parse("payout", payout)
		if p.err != nil {
			return nil, fmt.Errorf("clickhouse.loadRedemptions: %s: %w", r.TxHash, p.err)
		}
		reds = append(reds, r)
	}
	return reds, rows.Err()
}

// LoadResolutions devuelve todos los registros de resolución.
func (f *Feed) LoadResolutions(ctx context.Context) ([]domain.ResolutionRecord, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT lower(condition_id), outcome_index, toString(payout_numerator),
		       toString(payout_denominator), resolved_at
		FROM pnl_resolutions
		ORDER BY condition_id, outcome_index
	`)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.LoadResolutions: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.ResolutionRecord
	for rows.Next() {
		var (
			r        domain.ResolutionRecord
			idx      int32
			num, den string
			at       time.Time
		)
		if err := rows.Scan(&r.ConditionID, &idx, &num, &den, &at); err != nil {
			return nil, fmt.Errorf("clickhouse.LoadResolutions: scan: %w", err)
		}
		r.OutcomeIndex = int(idx)
		r.ResolvedAt = at.UTC()

		var p decimals
		r.PayoutNumerator = p.parse("payout_numerator", num)
		r.PayoutDenominator = p.parse("payout_denominator", den)
		if p.err != nil {
			return nil, fmt.Errorf("clickhouse.LoadResolutions: %s: %w", r.ConditionID, p.err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// LoadTokens devuelve el mapeo token → condición.
func (f *Feed) LoadTokens(ctx context.Context) ([]domain.TokenInfo, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT token_id, lower(condition_id), outcome_index, outcome_count
		FROM pnl_tokens
		ORDER BY condition_id, outcome_index
	`)
	if err != nil {
		return nil, fmt.Errorf("clickhouse.LoadTokens: query: %w", err)
	}
	defer rows.Close()

	var infos []domain.TokenInfo
	for rows.Next() {
		var (
			t          domain.TokenInfo
			idx, count uint8
		)
		if err := rows.Scan(&t.TokenID, &t.ConditionID, &idx, &count); err != nil {
			return nil, fmt.Errorf("clickhouse.LoadTokens: scan: %w", err)
		}
		t.OutcomeIndex, t.OutcomeCount = int(idx), int(count)
		infos = append(infos, t)
	}
	return infos, rows.Err()
}

// decimals parsea varias columnas en un solo paso; el primer error gana.
type decimals struct {
	err error
}

func (p *decimals) parse(field, s string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", field, err)
	}
	return d
}
