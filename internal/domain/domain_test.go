package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" buy ")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)

	_, err = ParseSide("hold")
	assert.Error(t, err)
}

func TestParseRole_UnknownFallback(t *testing.T) {
	assert.Equal(t, RoleMaker, ParseRole("maker"))
	assert.Equal(t, RoleTaker, ParseRole("TAKER"))
	assert.Equal(t, RoleUnknown, ParseRole(""))
}

func TestRatio_ZeroDenominator(t *testing.T) {
	assert.True(t, Ratio(d("5"), decimal.Zero, RatioScale).IsZero())
	assert.True(t, d("0.05").Equal(Ratio(d("5"), d("100"), RatioScale)))
}

func TestParseDecimal(t *testing.T) {
	v, err := ParseDecimal("0.400000")
	require.NoError(t, err)
	assert.True(t, v.Equal(d("0.4")))

	v, err = ParseDecimal("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = ParseDecimal("abc")
	assert.Error(t, err)
}

// --- ResolutionState ---

func TestResolutionState_Price(t *testing.T) {
	r := ResolutionState{Status: ResolutionResolved, Payouts: []decimal.Decimal{d("1"), d("0")}}
	p, ok := r.Price(0)
	require.True(t, ok)
	assert.True(t, p.Equal(d("1")))

	_, ok = r.Price(2)
	assert.False(t, ok)

	r.Status = ResolutionInvalid
	_, ok = r.Price(0)
	assert.False(t, ok, "invalid resolutions are never priced")
}

// --- Position ---

func TestPosition_AvgCost(t *testing.T) {
	p := Position{Quantity: d("100"), CostBasis: d("40")}
	assert.True(t, p.AvgCost(DefaultScale).Equal(d("0.4")))
	assert.True(t, Position{}.AvgCost(DefaultScale).IsZero())
}

// --- Ordering ---

func TestCompareLedgerEvents_TieBreaks(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	buy := LedgerEvent{Kind: LedgerBuy, TokenID: "b", TxHash: "0x1", LogIndex: 3, Timestamp: ts}
	sell := LedgerEvent{Kind: LedgerSell, TokenID: "a", TxHash: "0x1", LogIndex: 3, Timestamp: ts}
	earlierTx := LedgerEvent{Kind: LedgerSell, TokenID: "z", TxHash: "0x0", LogIndex: 9, Timestamp: ts}

	assert.Negative(t, CompareLedgerEvents(buy, sell), "buy before sell at the same key")
	assert.Negative(t, CompareLedgerEvents(earlierTx, buy), "tx hash orders before log index")
	assert.Zero(t, CompareLedgerEvents(buy, buy))
}

func TestCompareLedgerEvents_SameKeyOrderedByContent(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	cheap := LedgerEvent{Kind: LedgerSell, Origin: OriginTrade, TokenID: "a", Quantity: d("10"), Price: d("0.10"), TxHash: "0x1", LogIndex: NoLogIndex, Timestamp: ts}
	dear := cheap
	dear.Price = d("0.90")
	small := cheap
	small.Quantity = d("5")
	merge := cheap
	merge.Origin = OriginMerge

	assert.Negative(t, CompareLedgerEvents(cheap, dear))
	assert.Positive(t, CompareLedgerEvents(dear, cheap))
	assert.Negative(t, CompareLedgerEvents(small, cheap))
	assert.Negative(t, CompareLedgerEvents(merge, cheap), "origin before quantity")
}

func TestCompareTrades_Timestamp(t *testing.T) {
	a := TradeEvent{TxHash: "0xb", Timestamp: time.Unix(1, 0)}
	b := TradeEvent{TxHash: "0xa", Timestamp: time.Unix(2, 0)}
	assert.Negative(t, CompareTrades(a, b))
}

func TestCompareTrades_SameKeyOrderedByContent(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	base := TradeEvent{TokenID: "a", Side: SideSell, Quantity: d("10"), Price: d("0.10"), TxHash: "0x1", LogIndex: NoLogIndex, Timestamp: ts,
		Role: RoleUnknown, Source: Source{Kind: SourceDataAPI, Confidence: 50}}
	dear := base
	dear.Price = d("0.90")
	clob := base
	clob.Source = Source{Kind: SourceCLOB, Confidence: 90}

	assert.Negative(t, CompareTrades(base, dear))
	assert.Positive(t, CompareTrades(dear, base))
	assert.Negative(t, CompareTrades(clob, base), "source kind breaks the tie")
	assert.Zero(t, CompareTrades(base, base))
}

// --- Distribution ---

func TestNewDistribution(t *testing.T) {
	vals := []decimal.Decimal{d("0.4"), d("0.1"), d("0.3"), d("0.2")}
	dist := NewDistribution(vals)
	assert.Equal(t, 4, dist.Count)
	assert.True(t, dist.Mean.Equal(d("0.25")))
	assert.True(t, dist.P50.Equal(d("0.2")))
	assert.True(t, dist.P90.Equal(d("0.4")))
	assert.True(t, dist.Max.Equal(d("0.4")))
	assert.True(t, vals[0].Equal(d("0.4")), "input must not be reordered")
}

func TestNewDistribution_Empty(t *testing.T) {
	assert.Equal(t, 0, NewDistribution(nil).Count)
}

// --- Errors ---

func TestDataIntegrityError_As(t *testing.T) {
	var err error = DataIntegrityError{Record: RecordTrade, Ref: "0xabc", Reason: "negative quantity"}
	var target DataIntegrityError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, RecordTrade, target.Record)
	assert.Contains(t, err.Error(), "negative quantity")
}

func TestWalletInputs_EventCount(t *testing.T) {
	in := WalletInputs{
		Trades:      make([]TradeEvent, 3),
		Actions:     make([]CorporateActionEvent, 1),
		Redemptions: make([]RedemptionEvent, 2),
	}
	assert.Equal(t, 6, in.EventCount())
}

func TestCorporateAction_TokenAmountDefaultsToUSDC(t *testing.T) {
	c := CorporateActionEvent{USDCAmount: d("50")}
	assert.True(t, c.TokenAmount().Equal(d("50")))
	c.Amount = d("25")
	assert.True(t, c.TokenAmount().Equal(d("25")))
}
