package pnl

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Engine calcula el P&L de una wallet a partir de sus datos materializados.
// Es seguro para uso concurrente: el resolver y el token index son de solo
// lectura y cada llamada crea su propio ledger.
type Engine struct {
	cfg        Config
	resolver   *Resolver
	tokens     *TokenIndex
	normalizer *Normalizer
	attributor *Attributor
	aggregator *Aggregator
	scorer     *Scorer
}

// NewEngine crea un Engine sobre el snapshot de resoluciones y tokens del run.
func NewEngine(cfg Config, resolver *Resolver, tokens *TokenIndex) *Engine {
	if cfg.Scale <= 0 {
		cfg.Scale = domain.DefaultScale
	}
	return &Engine{
		cfg:        cfg,
		resolver:   resolver,
		tokens:     tokens,
		normalizer: NewNormalizer(cfg.TiePolicy, cfg.SourcePrecedence),
		attributor: NewAttributor(cfg.SplitCost),
		aggregator: NewAggregator(cfg.Scale),
		scorer:     NewScorer(cfg.Eligibility),
	}
}

// ComputeWallet devuelve un summary completo o un SkipReport, nunca un
// resultado parcial. Un panic dentro del cálculo se convierte en skip.
func (e *Engine) ComputeWallet(in domain.WalletInputs) (res domain.WalletResult) {
	start := time.Now()
	wallet := domain.NormalizeHash(in.Wallet)
	res.Wallet = wallet

	defer func() {
		if r := recover(); r != nil {
			slog.Error("wallet computation panicked",
				"wallet", wallet,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res.Summary = nil
			res.Positions = nil
			res.Skip = &domain.SkipReport{
				Wallet:     wallet,
				Reason:     domain.SkipComputationFailed,
				Detail:     fmt.Sprint(r),
				EventCount: in.EventCount(),
			}
		}
		res.Elapsed = time.Since(start)
	}()

	if n := in.EventCount(); e.cfg.MaxEventsPerWallet > 0 && n > e.cfg.MaxEventsPerWallet {
		slog.Warn("wallet skipped", "wallet", wallet, "events", n, "max", e.cfg.MaxEventsPerWallet)
		res.Skip = &domain.SkipReport{
			Wallet:     wallet,
			Reason:     domain.SkipBudgetExceeded,
			Detail:     fmt.Errorf("%d events, max %d: %w", n, e.cfg.MaxEventsPerWallet, domain.ErrBudgetExceeded).Error(),
			EventCount: n,
		}
		return res
	}

	diag := &res.Diagnostics
	diag.RawTrades = len(in.Trades)

	norm := e.normalizer.Normalize(wallet, in.Trades)
	diag.Duplicates = norm.Duplicates
	diag.ConflictsResolved = norm.ConflictsResolved
	diag.Ambiguous = norm.Ambiguous
	diag.Integrity = append(diag.Integrity, norm.Integrity...)

	attr := e.attributor.Attribute(wallet, norm.Events, in.Actions, e.tokens)
	diag.ActionsAttributed = attr.Attributed
	diag.ActionsUnmatched = attr.Unmatched
	diag.ActionsUnmappable = attr.Unmappable
	diag.SyntheticEvents = len(attr.Events)
	diag.Integrity = append(diag.Integrity, attr.Integrity...)

	redemptions := e.priceRedemptions(wallet, in.Redemptions, diag)
	stream := BuildStream(norm.Events, attr.Events, redemptions)

	ledger := NewLedger(wallet, e.cfg.Scale)
	rec := NewReconciler(ledger)
	for _, ev := range stream {
		switch ev.Kind {
		case domain.LedgerBuy:
			ledger.Buy(ev)
		case domain.LedgerSell:
			if f := ledger.Sell(ev); f.Capped() {
				diag.CappedSells++
				slog.Debug("sell capped at held quantity",
					"wallet", wallet, "token", ev.TokenID, "tx", ev.TxHash, "excess", f.Excess)
			}
		case domain.LedgerRedemption:
			f, applied := rec.Apply(ev, ev.Price)
			if !applied {
				diag.DuplicateRedemption++
				continue
			}
			if f.Capped() {
				diag.CappedRedemptions++
				slog.Debug("redemption capped at held quantity",
					"wallet", wallet, "token", ev.TokenID, "tx", ev.TxHash, "excess", f.Excess)
			}
		}
	}

	ledger.Valuate(e.valuer())

	sum := e.aggregator.Aggregate(wallet, ledger, norm.Events, e.resolver, e.tokens)
	e.scorer.Score(sum, *diag).Apply(&sum)

	res.Summary = &sum
	res.Positions = ledger.Positions()
	return res
}

// priceRedemptions valida las redemptions y les asigna el precio de la
// resolución. Sin resolución válida no hay precio y el canje se excluye.
func (e *Engine) priceRedemptions(wallet string, reds []domain.RedemptionEvent, diag *domain.WalletDiagnostics) []domain.LedgerEvent {
	out := make([]domain.LedgerEvent, 0, len(reds))
	for _, r := range reds {
		r.TxHash = domain.NormalizeHash(r.TxHash)
		r.TokenID = strings.TrimSpace(r.TokenID)

		integrity := func(reason string) {
			slog.Warn("redemption excluded", "wallet", wallet, "ref", r.Ref(), "reason", reason)
			diag.Integrity = append(diag.Integrity, domain.DataIntegrityError{
				Record: domain.RecordRedemption, Ref: r.Ref(), Reason: reason,
			})
		}
		switch {
		case r.TxHash == "":
			integrity("missing tx hash")
			continue
		case r.TokenID == "":
			integrity("missing token id")
			continue
		case !r.Quantity.IsPositive():
			integrity("non-positive quantity " + r.Quantity.String())
			continue
		}

		info, ok := e.tokens.Lookup(r.TokenID)
		if !ok {
			diag.UnpricedRedemptions++
			slog.Warn("redemption without token mapping", "wallet", wallet, "ref", r.Ref())
			continue
		}
		if r.ConditionID != "" && domain.NormalizeHash(r.ConditionID) != info.ConditionID {
			integrity("condition does not match token mapping")
			continue
		}
		price, ok := e.resolver.Resolve(info.ConditionID).Price(info.OutcomeIndex)
		if !ok {
			diag.UnpricedRedemptions++
			slog.Warn("redemption on unresolved condition",
				"wallet", wallet, "ref", r.Ref(), "condition_id", info.ConditionID)
			continue
		}

		out = append(out, domain.LedgerEvent{
			Kind:      domain.LedgerRedemption,
			Origin:    domain.OriginRedemption,
			TokenID:   r.TokenID,
			Quantity:  r.Quantity,
			Price:     price,
			TxHash:    r.TxHash,
			LogIndex:  r.LogIndex,
			Timestamp: r.Timestamp,
			Role:      domain.RoleUnknown,
		})
	}
	return out
}

// valuer valora al precio de resolución; en modo total, las posiciones no
// resueltas se marcan al último precio de trade de la wallet.
func (e *Engine) valuer() Valuer {
	return func(p domain.Position) (decimal.Decimal, domain.ValuationBasis) {
		if info, ok := e.tokens.Lookup(p.TokenID); ok {
			if price, ok := e.resolver.Resolve(info.ConditionID).Price(info.OutcomeIndex); ok {
				return price, domain.ValuedSettlement
			}
		}
		if e.cfg.Valuation == ValuationTotal && p.HasLastPrice {
			return p.LastPrice, domain.ValuedLastTrade
		}
		return decimal.Zero, domain.ValuedNone
	}
}
