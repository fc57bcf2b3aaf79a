package onchain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

var (
	condID      = common.HexToHash("0xabc1")
	stakeholder = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	usdcE       = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

func resolutionLog(t *testing.T, block uint64, payouts ...int64) types.Log {
	t.Helper()
	nums := make([]*big.Int, len(payouts))
	for i, p := range payouts {
		nums[i] = big.NewInt(p)
	}
	data, err := ctfABI.Events["ConditionResolution"].Inputs.NonIndexed().Pack(big.NewInt(int64(len(payouts))), nums)
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{topicResolution, condID, common.HexToHash("0x01"), common.HexToHash("0x02")},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0xfeed"),
	}
}

func positionLog(t *testing.T, topic common.Hash, event string, amount int64, block uint64, index uint) types.Log {
	t.Helper()
	data, err := ctfABI.Events[event].Inputs.NonIndexed().Pack(usdcE, []*big.Int{big.NewInt(1), big.NewInt(2)}, big.NewInt(amount))
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{topic, common.BytesToHash(stakeholder.Bytes()), {}, condID},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0xBEEF"),
		Index:       index,
	}
}

func TestDecodeResolution(t *testing.T) {
	at := time.Unix(1_700_000_000, 0).UTC()
	recs, err := DecodeResolution(resolutionLog(t, 1, 1, 0), at)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, strings.ToLower(condID.Hex()), recs[0].ConditionID)
	assert.Equal(t, 0, recs[0].OutcomeIndex)
	assert.True(t, decimal.NewFromInt(1).Equal(recs[0].PayoutNumerator))
	assert.True(t, decimal.NewFromInt(1).Equal(recs[0].PayoutDenominator))
	assert.True(t, recs[1].PayoutNumerator.IsZero())
	assert.Equal(t, at, recs[1].ResolvedAt)
}

func TestDecodeResolution_DenominatorIsSum(t *testing.T) {
	recs, err := DecodeResolution(resolutionLog(t, 1, 3, 1), time.Time{})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(recs[0].PayoutDenominator))
}

func TestDecodeResolution_WrongTopic(t *testing.T) {
	lg := resolutionLog(t, 1, 1, 0)
	lg.Topics[0] = topicSplit
	_, err := DecodeResolution(lg, time.Time{})
	assert.Error(t, err)
}

func TestDecodeAction(t *testing.T) {
	split, err := DecodeAction(positionLog(t, topicSplit, "PositionSplit", 50_250_000, 1, 7), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSplit, split.Kind)
	assert.True(t, decimal.RequireFromString("50.25").Equal(split.USDCAmount))
	assert.True(t, split.USDCAmount.Equal(split.Amount))
	assert.Equal(t, 2, split.OutcomeCount)
	assert.Equal(t, int64(7), split.LogIndex)
	assert.Equal(t, strings.ToLower(stakeholder.Hex()), split.Stakeholder)
	assert.Equal(t, strings.ToLower(condID.Hex()), split.ConditionID)
	assert.Equal(t, strings.ToLower(common.HexToHash("0xbeef").Hex()), split.TxHash)

	merge, err := DecodeAction(positionLog(t, topicMerge, "PositionsMerge", 1_000_000, 1, 0), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionMerge, merge.Kind)

	_, err = DecodeAction(resolutionLog(t, 1, 1, 0), time.Time{})
	assert.Error(t, err)
}

// --- feed ---

type fakeChain struct {
	logs    []types.Log
	latest  uint64
	queries []ethereum.FilterQuery
	headers int
	err     error
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, q)
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < q.FromBlock.Uint64() || lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		for _, topic := range q.Topics[0] {
			if lg.Topics[0] == topic {
				out = append(out, lg)
			}
		}
	}
	return out, nil
}

func (f *fakeChain) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	f.headers++
	return &types.Header{Number: n, Time: 1_700_000_000 + n.Uint64()*2}, nil
}

func (f *fakeChain) BlockNumber(_ context.Context) (uint64, error) { return f.latest, nil }

func TestFeed_LoadResolutions_ChunksRange(t *testing.T) {
	chain := &fakeChain{
		latest: 25,
		logs:   []types.Log{resolutionLog(t, 3, 0, 1), resolutionLog(t, 22, 1, 0)},
	}
	feed := NewFeed(chain, FeedConfig{FromBlock: 1, BlockRange: 10})

	recs, err := feed.LoadResolutions(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	require.Len(t, chain.queries, 3, "bloques 1-10, 11-20, 21-25")
	assert.Equal(t, uint64(25), chain.queries[2].ToBlock.Uint64())
	assert.Equal(t, time.Unix(1_700_000_006, 0).UTC(), recs[0].ResolvedAt)
}

func TestFeed_LoadActions_CachesBlockTimes(t *testing.T) {
	chain := &fakeChain{
		latest: 5,
		logs: []types.Log{
			positionLog(t, topicSplit, "PositionSplit", 10_000_000, 4, 0),
			positionLog(t, topicMerge, "PositionsMerge", 5_000_000, 4, 1),
			resolutionLog(t, 4, 1, 0),
		},
	}
	feed := NewFeed(chain, FeedConfig{})

	actions, err := feed.LoadActions(context.Background(), []string{stakeholder.Hex()})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, 1, chain.headers)
	require.Len(t, chain.queries[0].Topics, 2)
	assert.Equal(t, common.BytesToHash(stakeholder.Bytes()), chain.queries[0].Topics[1][0])
}

func TestFeed_FilterError(t *testing.T) {
	feed := NewFeed(&fakeChain{latest: 5, err: errors.New("rpc down")}, FeedConfig{})
	_, err := feed.LoadResolutions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}
