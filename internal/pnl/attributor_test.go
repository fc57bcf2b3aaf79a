package pnl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

func binaryTokens(t *testing.T) *TokenIndex {
	t.Helper()
	ix, errs := NewTokenIndex([]domain.TokenInfo{
		{TokenID: "yes", ConditionID: "0xc", OutcomeIndex: 0, OutcomeCount: 2},
		{TokenID: "no", ConditionID: "0xc", OutcomeIndex: 1, OutcomeCount: 2},
	})
	require.Empty(t, errs)
	return ix
}

func split(tx, usdc string) domain.CorporateActionEvent {
	return domain.CorporateActionEvent{
		TxHash:      tx,
		LogIndex:    2,
		Kind:        domain.ActionSplit,
		ConditionID: "0xc",
		USDCAmount:  dec(usdc),
		Timestamp:   t0,
	}
}

func TestAttribute_SplitSeedsEveryOutcomeAtUnitCost(t *testing.T) {
	a := NewAttributor(SplitCostUnit)
	trades := []domain.TradeEvent{{TxHash: "0xt1", TokenID: "no", Side: domain.SideSell}}

	res := a.Attribute("0xw", trades, []domain.CorporateActionEvent{split("0xT1", "50")}, binaryTokens(t))
	require.Len(t, res.Events, 2)
	assert.Equal(t, 1, res.Attributed)
	for i, ev := range res.Events {
		assert.Equal(t, domain.LedgerBuy, ev.Kind)
		assert.Equal(t, domain.OriginSplit, ev.Origin)
		assertDec(t, "50", ev.Quantity)
		assertDec(t, "1", ev.Price)
		assert.Equal(t, int64(2), ev.LogIndex)
		assert.Equal(t, []string{"yes", "no"}[i], ev.TokenID)
	}
}

func TestAttribute_EqualCostMode(t *testing.T) {
	a := NewAttributor(SplitCostEqual)
	trades := []domain.TradeEvent{{TxHash: "0xt1"}}

	res := a.Attribute("0xw", trades, []domain.CorporateActionEvent{split("0xt1", "50")}, binaryTokens(t))
	require.Len(t, res.Events, 2)
	assertDec(t, "0.5", res.Events[0].Price)
}

func TestAttribute_MergeProducesSells(t *testing.T) {
	a := NewAttributor(SplitCostUnit)
	merge := split("0xt1", "20")
	merge.Kind = domain.ActionMerge

	res := a.Attribute("0xw", []domain.TradeEvent{{TxHash: "0xt1"}}, []domain.CorporateActionEvent{merge}, binaryTokens(t))
	require.Len(t, res.Events, 2)
	assert.Equal(t, domain.LedgerSell, res.Events[0].Kind)
	assert.Equal(t, domain.OriginMerge, res.Events[0].Origin)
}

func TestAttribute_OnlyByTxMatch(t *testing.T) {
	a := NewAttributor(SplitCostUnit)
	res := a.Attribute("0xw", []domain.TradeEvent{{TxHash: "0xother"}}, []domain.CorporateActionEvent{split("0xt1", "50")}, binaryTokens(t))
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.Unmatched)
}

func TestAttribute_IncompleteTokenMapIsNotGuessed(t *testing.T) {
	ix, _ := NewTokenIndex([]domain.TokenInfo{{TokenID: "yes", ConditionID: "0xc", OutcomeIndex: 0, OutcomeCount: 2}})
	a := NewAttributor(SplitCostUnit)

	res := a.Attribute("0xw", []domain.TradeEvent{{TxHash: "0xt1"}}, []domain.CorporateActionEvent{split("0xt1", "50")}, ix)
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.Unmappable)
}

func TestAttribute_OutcomeCountMismatch(t *testing.T) {
	act := split("0xt1", "50")
	act.OutcomeCount = 3
	res := NewAttributor(SplitCostUnit).Attribute("0xw", []domain.TradeEvent{{TxHash: "0xt1"}}, []domain.CorporateActionEvent{act}, binaryTokens(t))
	assert.Empty(t, res.Events)
	require.Len(t, res.Integrity, 1)
}

func TestTokenIndex_ConflictingMappingDropped(t *testing.T) {
	ix, errs := NewTokenIndex([]domain.TokenInfo{
		{TokenID: "x", ConditionID: "0xc", OutcomeIndex: 0},
		{TokenID: "x", ConditionID: "0xd", OutcomeIndex: 0},
		{TokenID: "y", ConditionID: "0xc", OutcomeIndex: 1},
	})
	require.Len(t, errs, 1)
	_, ok := ix.Lookup("x")
	assert.False(t, ok)
	_, ok = ix.Outcomes("0xc")
	assert.False(t, ok, "outcome 0 is missing after dropping x")
}
