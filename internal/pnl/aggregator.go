package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Aggregator suma el estado del ledger en un WalletPnlSummary.
type Aggregator struct {
	scale int32
}

// NewAggregator crea un Aggregator con la precisión indicada.
func NewAggregator(scale int32) *Aggregator {
	return &Aggregator{scale: scale}
}

// Aggregate construye el summary de la wallet. Los ratios y la elegibilidad
// los rellena el Scorer.
func (a *Aggregator) Aggregate(
	wallet string,
	ledger *Ledger,
	trades []domain.TradeEvent,
	resolver *Resolver,
	tokens *TokenIndex,
) domain.WalletPnlSummary {
	s := domain.WalletPnlSummary{
		Wallet:              wallet,
		RealizedPnL:         decimal.Zero,
		UnrealizedPnL:       decimal.Zero,
		UnresolvedCostBasis: decimal.Zero,
		ExternalSells:       ledger.ExternalSells(),
		TotalSellVolume:     ledger.SellVolume(),
	}

	for _, t := range trades {
		s.TotalTradeCount++
		switch t.Role {
		case domain.RoleMaker:
			s.TradeCount++
		case domain.RoleTaker:
			s.TakerTradeCount++
		}
	}

	for _, p := range ledger.Positions() {
		s.Positions++
		s.RealizedPnL = s.RealizedPnL.Add(p.RealizedPnL)
		s.UnrealizedPnL = s.UnrealizedPnL.Add(p.HeldValuePnL)
		if !p.IsOpen() {
			continue
		}
		s.OpenPositions++
		if !isSettled(p.TokenID, resolver, tokens) {
			s.UnresolvedCostBasis = s.UnresolvedCostBasis.Add(p.CostBasis)
		}
	}

	s.ProfitFactor, s.ProfitFactorInfinite = profitFactor(ledger.Realizations(), a.scale)
	return s
}

// isSettled: el token pertenece a una condición con resolución válida.
// Tokens sin mapeo cuentan como no resueltos.
func isSettled(tokenID string, resolver *Resolver, tokens *TokenIndex) bool {
	info, ok := tokens.Lookup(tokenID)
	if !ok {
		return false
	}
	return resolver.Resolve(info.ConditionID).IsResolved()
}

// profitFactor = suma de ganancias / |suma de pérdidas| sobre las realizaciones.
// Sin pérdidas devuelve nil; infinite indica que hubo ganancias.
func profitFactor(realizations []domain.Realization, scale int32) (*decimal.Decimal, bool) {
	gains, losses := decimal.Zero, decimal.Zero
	for _, r := range realizations {
		switch {
		case r.PnL.IsPositive():
			gains = gains.Add(r.PnL)
		case r.PnL.IsNegative():
			losses = losses.Add(r.PnL.Neg())
		}
	}
	if losses.IsZero() {
		return nil, gains.IsPositive()
	}
	pf := gains.DivRound(losses, scale)
	return &pf, false
}
