package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(parseTimestamp(json.Number("1717243200"))))
	assert.True(t, want.Equal(parseTimestamp(json.Number("1717243200000"))), "milliseconds")
	assert.True(t, parseTimestamp(json.Number("garbage")).IsZero())
}

func TestMapActivity_BadNumbersBecomeZero(t *testing.T) {
	in := mapActivity("0xW", []activityItem{{
		Type: "TRADE", Side: "sell", Size: "abc", Price: "0.5", TransactionHash: "0xT", Asset: "1",
	}}, nil)
	require.Len(t, in.Trades, 1)
	assert.True(t, in.Trades[0].Quantity.IsZero())
	assert.Equal(t, domain.SideSell, in.Trades[0].Side)
	assert.Equal(t, "0xw", in.Trades[0].Wallet)
}

func TestMapActivity_MergeAndUnmappedRedeem(t *testing.T) {
	in := mapActivity("0xw", []activityItem{
		{Type: "MERGE", ConditionID: "0xC", Size: "5", USDCSize: "5", TransactionHash: "0x1"},
		{Type: "REDEEM", ConditionID: "0xC", Size: "5", TransactionHash: "0x2"},
	}, func(string, int) (string, bool) { return "", false })

	require.Len(t, in.Actions, 1)
	assert.Equal(t, domain.ActionMerge, in.Actions[0].Kind)
	assert.Equal(t, domain.NoLogIndex, in.Actions[0].LogIndex)
	require.Len(t, in.Redemptions, 1)
	assert.Empty(t, in.Redemptions[0].TokenID, "sin outcome index no se adivina el token")
}

func TestMapMarketResolution(t *testing.T) {
	open := gammaMarket{ConditionID: "0xc", OutcomePrices: `["0.62", "0.38"]`}
	_, resolved, err := mapMarketResolution(open)
	require.NoError(t, err)
	assert.False(t, resolved)

	closedPending := gammaMarket{ConditionID: "0xc", Closed: true, OutcomePrices: `["1", "0"]`}
	_, resolved, err = mapMarketResolution(closedPending)
	require.NoError(t, err)
	assert.False(t, resolved, "cerrado sin resolución UMA")

	bad := gammaMarket{ConditionID: "0xc", Closed: true, UMAResolutionStatus: "resolved", OutcomePrices: `["x"]`}
	_, _, err = mapMarketResolution(bad)
	assert.Error(t, err)
}

func TestMapMarketTokens(t *testing.T) {
	infos, err := mapMarketTokens(gammaMarket{ConditionID: "0xC", ClobTokenIDs: `["a","b","c"]`})
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, domain.TokenInfo{TokenID: "c", ConditionID: "0xc", OutcomeIndex: 2, OutcomeCount: 3}, infos[2])

	_, err = mapMarketTokens(gammaMarket{ClobTokenIDs: `not json`})
	assert.Error(t, err)
}
