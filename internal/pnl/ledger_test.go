package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func buyEv(token, qty, price string) domain.LedgerEvent {
	return domain.LedgerEvent{Kind: domain.LedgerBuy, Origin: domain.OriginTrade, TokenID: token, Quantity: dec(qty), Price: dec(price), Timestamp: t0}
}

func sellEv(token, qty, price string) domain.LedgerEvent {
	return domain.LedgerEvent{Kind: domain.LedgerSell, Origin: domain.OriginTrade, TokenID: token, Quantity: dec(qty), Price: dec(price), Timestamp: t0}
}

func TestLedger_SimpleRoundTrip(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	l.Buy(buyEv("yes", "100", "0.40"))
	f := l.Sell(sellEv("yes", "100", "0.60"))

	assertDec(t, "20", f.PnL)
	p, ok := l.Position("yes")
	require.True(t, ok)
	assertDec(t, "20", p.RealizedPnL)
	assert.True(t, p.Quantity.IsZero())
	assert.True(t, p.CostBasis.IsZero())
}

func TestLedger_WeightedAverageCost(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	l.Buy(buyEv("yes", "100", "0.40"))
	l.Buy(buyEv("yes", "100", "0.60"))

	p, _ := l.Position("yes")
	assertDec(t, "200", p.Quantity)
	assertDec(t, "0.5", p.AvgCost(domain.DefaultScale))

	f := l.Sell(sellEv("yes", "50", "0.70"))
	assertDec(t, "10", f.PnL)
	p, _ = l.Position("yes")
	assertDec(t, "0.5", p.AvgCost(domain.DefaultScale), "sells do not move the average")
}

func TestLedger_OversoldPosition(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	l.Buy(buyEv("yes", "10", "0.50"))
	f := l.Sell(sellEv("yes", "15", "0.80"))

	assertDec(t, "10", f.Applied)
	assertDec(t, "5", f.Excess)
	assertDec(t, "3", f.PnL)

	p, _ := l.Position("yes")
	assert.True(t, p.Quantity.IsZero())
	assertDec(t, "5", p.ExternalSells)
	assertDec(t, "5", l.ExternalSells())
	assertDec(t, "15", l.SellVolume())
}

func TestLedger_SellCapIdempotence(t *testing.T) {
	exact := NewLedger("0xw", domain.DefaultScale)
	exact.Buy(buyEv("yes", "10", "0.50"))
	exact.Sell(sellEv("yes", "10", "0.80"))

	over := NewLedger("0xw", domain.DefaultScale)
	over.Buy(buyEv("yes", "10", "0.50"))
	over.Sell(sellEv("yes", "25", "0.80"))

	pe, _ := exact.Position("yes")
	po, _ := over.Position("yes")
	assert.True(t, pe.RealizedPnL.Equal(po.RealizedPnL))
	assert.True(t, pe.Quantity.Equal(po.Quantity))
	assert.True(t, pe.ExternalSells.IsZero())
	assertDec(t, "15", po.ExternalSells)
}

func TestLedger_SellWithoutPosition(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	f := l.Sell(sellEv("ghost", "7", "0.30"))

	assert.True(t, f.PnL.IsZero())
	_, ok := l.Position("ghost")
	assert.False(t, ok, "sells never create positions")
	assertDec(t, "7", l.ExternalSells())
	assert.Empty(t, l.Realizations())
}

func TestLedger_RedemptionThenLeftoverValuation(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	l.Buy(buyEv("yes", "100", "0.30"))

	red := domain.LedgerEvent{Kind: domain.LedgerRedemption, Origin: domain.OriginRedemption, TokenID: "yes", Quantity: dec("60")}
	f := l.Redeem(red, dec("1"))
	assertDec(t, "42", f.PnL)

	l.Valuate(func(domain.Position) (decimal.Decimal, domain.ValuationBasis) {
		return dec("1"), domain.ValuedSettlement
	})

	p, _ := l.Position("yes")
	assertDec(t, "40", p.Quantity)
	assertDec(t, "60", p.RedeemedQuantity)
	assertDec(t, "42", p.RealizedPnL)
	assertDec(t, "28", p.HeldValuePnL)
	assertDec(t, "70", p.RealizedPnL.Add(p.HeldValuePnL), "same as valuing the original 100 once")
}

func TestLedger_RedemptionCapped(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	l.Buy(buyEv("yes", "10", "0.50"))
	red := domain.LedgerEvent{Kind: domain.LedgerRedemption, Origin: domain.OriginRedemption, TokenID: "yes", Quantity: dec("12")}
	f := l.Redeem(red, dec("1"))

	assertDec(t, "10", f.Applied)
	assertDec(t, "2", f.Excess)
	p, _ := l.Position("yes")
	assertDec(t, "2", p.ExcessRedeemed)
	assertDec(t, "5", p.RealizedPnL)
}

func TestLedger_ConservationOnClosedPosition(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	// precios que no dividen exacto: el cierre libera el coste restante
	l.Buy(buyEv("yes", "3", "0.333333"))
	l.Buy(buyEv("yes", "7", "0.41"))
	l.Sell(sellEv("yes", "1", "0.5"))
	l.Sell(sellEv("yes", "2", "0.45"))
	l.Redeem(domain.LedgerEvent{Kind: domain.LedgerRedemption, TokenID: "yes", Quantity: dec("7")}, dec("1"))

	costs := dec("3").Mul(dec("0.333333")).Add(dec("7").Mul(dec("0.41")))
	proceeds := dec("0.5").Add(dec("2").Mul(dec("0.45"))).Add(dec("7"))

	p, _ := l.Position("yes")
	assert.True(t, p.Quantity.IsZero())
	assert.True(t, p.CostBasis.IsZero())
	assert.True(t, proceeds.Sub(costs).Equal(p.RealizedPnL), "realized %s", p.RealizedPnL)
}

func TestLedger_ValuateSkipsClosedAndUnvalued(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	l.Buy(buyEv("a", "10", "0.5"))
	l.Buy(buyEv("b", "10", "0.5"))
	l.Sell(sellEv("b", "10", "0.5"))

	l.Valuate(func(p domain.Position) (decimal.Decimal, domain.ValuationBasis) {
		return decimal.Zero, domain.ValuedNone
	})
	for _, p := range l.Positions() {
		assert.True(t, p.HeldValuePnL.IsZero(), p.TokenID)
		assert.Equal(t, domain.ValuedNone, p.Valuation)
	}
}

func TestLedger_LastPriceOnlyFromTrades(t *testing.T) {
	l := NewLedger("0xw", domain.DefaultScale)
	split := buyEv("yes", "50", "1")
	split.Origin = domain.OriginSplit
	l.Buy(split)

	p, _ := l.Position("yes")
	assert.False(t, p.HasLastPrice)

	l.Sell(sellEv("yes", "10", "0.7"))
	p, _ = l.Position("yes")
	assert.True(t, p.HasLastPrice)
	assertDec(t, "0.7", p.LastPrice)
}

func TestProfitFactor(t *testing.T) {
	pf, inf := profitFactor([]domain.Realization{{PnL: dec("30")}, {PnL: dec("-10")}, {PnL: dec("-5")}}, 6)
	require.NotNil(t, pf)
	assert.False(t, inf)
	assertDec(t, "2", *pf)

	pf, inf = profitFactor([]domain.Realization{{PnL: dec("30")}}, 6)
	assert.Nil(t, pf)
	assert.True(t, inf)

	pf, inf = profitFactor(nil, 6)
	assert.Nil(t, pf)
	assert.False(t, inf)
}
