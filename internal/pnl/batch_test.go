package pnl_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/pnl"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// --- mocks ---

type mockSource struct {
	wallets     []string
	inputs      map[string]domain.WalletInputs
	loadErr     map[string]error
	resolutions []domain.ResolutionRecord
	tokens      []domain.TokenInfo
	resErr      error
	onLoad      func(wallet string)
}

func (m *mockSource) ListWallets(_ context.Context) ([]string, error) { return m.wallets, nil }

func (m *mockSource) LoadWallet(ctx context.Context, wallet string) (domain.WalletInputs, error) {
	if m.onLoad != nil {
		m.onLoad(wallet)
	}
	if err := ctx.Err(); err != nil {
		return domain.WalletInputs{}, err
	}
	if err := m.loadErr[wallet]; err != nil {
		return domain.WalletInputs{}, err
	}
	return m.inputs[wallet], nil
}

func (m *mockSource) LoadResolutions(_ context.Context) ([]domain.ResolutionRecord, error) {
	return m.resolutions, m.resErr
}

func (m *mockSource) LoadTokens(_ context.Context) ([]domain.TokenInfo, error) { return m.tokens, nil }

type mockSink struct {
	mu      sync.Mutex
	outputs []domain.RunOutput
	diags   []domain.RunDiagnostics
	err     error
}

func (m *mockSink) ReplaceSummaries(_ context.Context, out domain.RunOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.outputs = append(m.outputs, out)
	return nil
}

func (m *mockSink) SaveDiagnostics(_ context.Context, diag domain.RunDiagnostics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diags = append(m.diags, diag)
	return nil
}

type mockReporter struct {
	calls int
}

func (m *mockReporter) Report(_ context.Context, _ []domain.WalletResult, _ domain.RunDiagnostics) error {
	m.calls++
	return nil
}

var (
	_ ports.WalletLister   = (*mockSource)(nil)
	_ ports.WalletFeed     = (*mockSource)(nil)
	_ ports.ResolutionFeed = (*mockSource)(nil)
	_ ports.TokenFeed      = (*mockSource)(nil)
	_ ports.SummarySink    = (*mockSink)(nil)
)

// --- helpers ---

func roundTrip(wallet string) domain.WalletInputs {
	buy := tr("0x1", "yes", domain.SideBuy, "100", "0.40", at(0))
	sell := tr("0x2", "yes", domain.SideSell, "100", "0.60", at(1))
	buy.Wallet, sell.Wallet = wallet, wallet
	return domain.WalletInputs{Wallet: wallet, Trades: []domain.TradeEvent{buy, sell}}
}

func newSource(n int) *mockSource {
	src := &mockSource{inputs: map[string]domain.WalletInputs{}}
	for i := 0; i < n; i++ {
		w := fmt.Sprintf("0x%02d", i)
		src.wallets = append(src.wallets, w)
		src.inputs[w] = roundTrip(w)
	}
	return src
}

func newBatch(cfg pnl.Config, src *mockSource, sink *mockSink, reporters ...ports.Reporter) *pnl.Batch {
	return pnl.NewBatch(cfg, pnl.Deps{
		Lister:      src,
		Feed:        src,
		Resolutions: src,
		Tokens:      src,
		Sinks:       []ports.SummarySink{sink},
		Reporters:   reporters,
		Metrics:     metrics.New("test"),
	})
}

// --- tests ---

func TestBatch_Run_WritesAllSummaries(t *testing.T) {
	src := newSource(5)
	sink := &mockSink{}
	rep := &mockReporter{}

	report, err := newBatch(pnl.DefaultConfig(), src, sink, rep).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.outputs, 1)
	out := sink.outputs[0]
	assert.True(t, out.Full)
	assert.Len(t, out.Summaries, 5)
	assert.Len(t, out.Wallets, 5)
	for _, s := range out.Summaries {
		assert.Equal(t, report.Diagnostics.RunID, s.RunID)
		assert.True(t, dec("20").Equal(s.RealizedPnL))
	}
	require.Len(t, sink.diags, 1)
	assert.Equal(t, 5, sink.diags[0].Computed)
	assert.Equal(t, 1, rep.calls)
}

func TestBatch_Run_SameResultForAnyWorkerCount(t *testing.T) {
	var prev []domain.WalletPnlSummary
	for _, workers := range []int{1, 3, 16} {
		cfg := pnl.DefaultConfig()
		cfg.Workers = workers
		sink := &mockSink{}
		_, err := newBatch(cfg, newSource(12), sink).Run(context.Background())
		require.NoError(t, err)

		got := sink.outputs[0].Summaries
		require.Len(t, got, 12)
		if prev != nil {
			for i := range got {
				assert.Equal(t, prev[i].Wallet, got[i].Wallet)
				assert.Equal(t, prev[i].RealizedPnL.String(), got[i].RealizedPnL.String())
			}
		}
		prev = got
	}
}

func TestBatch_Run_SkipsWithoutPartialOutput(t *testing.T) {
	src := newSource(3)
	src.loadErr = map[string]error{"0x01": errors.New("timeout")}
	big := roundTrip("0x02")
	for i := 0; i < 5; i++ {
		big.Trades = append(big.Trades, big.Trades[0])
	}
	src.inputs["0x02"] = big

	cfg := pnl.DefaultConfig()
	cfg.MaxEventsPerWallet = 4
	sink := &mockSink{}
	report, err := newBatch(cfg, src, sink).Run(context.Background())
	require.NoError(t, err)

	out := sink.outputs[0]
	require.Len(t, out.Summaries, 1)
	assert.Equal(t, "0x00", out.Summaries[0].Wallet)
	require.Len(t, out.Skipped, 2)
	assert.Equal(t, domain.SkipLoadFailed, out.Skipped[0].Reason)
	assert.Equal(t, domain.SkipBudgetExceeded, out.Skipped[1].Reason)
	assert.Len(t, report.Diagnostics.Skipped, 2)
}

func TestBatch_Run_TruncatedLoadIsBudgetSkip(t *testing.T) {
	src := newSource(2)
	src.loadErr = map[string]error{"0x01": fmt.Errorf("activity cut at page limit: %w", domain.ErrBudgetExceeded)}
	sink := &mockSink{}

	_, err := newBatch(pnl.DefaultConfig(), src, sink).Run(context.Background())
	require.NoError(t, err)

	out := sink.outputs[0]
	require.Len(t, out.Summaries, 1)
	assert.Equal(t, "0x00", out.Summaries[0].Wallet)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, domain.SkipBudgetExceeded, out.Skipped[0].Reason)
}

func TestBatch_RunWallets_PartialScope(t *testing.T) {
	src := newSource(3)
	sink := &mockSink{}
	_, err := newBatch(pnl.DefaultConfig(), src, sink).RunWallets(context.Background(), []string{"0X01", "0x01", ""})
	require.NoError(t, err)

	out := sink.outputs[0]
	assert.False(t, out.Full)
	assert.Equal(t, []string{"0x01"}, out.Wallets)
}

func TestBatch_Run_ResolutionFeedErrorAborts(t *testing.T) {
	src := newSource(2)
	src.resErr = errors.New("db down")
	sink := &mockSink{}

	_, err := newBatch(pnl.DefaultConfig(), src, sink).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, sink.outputs)
	assert.Len(t, sink.diags, 1, "diagnostics are emitted for every run")
}

func TestBatch_Run_CancelledRunDoesNotReplace(t *testing.T) {
	src := newSource(20)
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	src.onLoad = func(string) { once.Do(cancel) }

	cfg := pnl.DefaultConfig()
	cfg.Workers = 2
	sink := &mockSink{}
	report, err := newBatch(cfg, src, sink).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.outputs)
	require.Len(t, sink.diags, 1)
	assert.True(t, sink.diags[0].Aborted)
	assert.True(t, report.Diagnostics.Aborted)
}

func TestBatch_Run_SinkErrorReturned(t *testing.T) {
	sink := &mockSink{err: errors.New("disk full")}
	_, err := newBatch(pnl.DefaultConfig(), newSource(1), sink).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestBatch_Loop_StopsOnCancel(t *testing.T) {
	cfg := pnl.DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	sink := &mockSink{}
	b := newBatch(cfg, newSource(1), sink)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Loop(ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.GreaterOrEqual(t, len(sink.diags), 2)
}
