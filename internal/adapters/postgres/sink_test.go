package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// setupTestDB arranca un PostgreSQL en contenedor y aplica el schema.
func setupTestDB(t *testing.T) *Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Migrate(ctx))

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return pool
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func makeSummary(wallet, realized string) domain.WalletPnlSummary {
	return domain.WalletPnlSummary{
		Wallet:             wallet,
		RealizedPnL:        dec(realized),
		UnrealizedPnL:      dec("1.5"),
		TradeCount:         55,
		TotalTradeCount:    60,
		TakerTradeCount:    5,
		ExternalSells:      dec("0"),
		TotalSellVolume:    dec("120"),
		ExternalSellsRatio: dec("0"),
		OpenExposureRatio:  ptr(dec("0.125")),
		TakerRatio:         dec("0.08333333"),
		ProfitFactor:       ptr(dec("2.5")),
		Positions:          4,
		OpenPositions:      1,
		Eligible:           true,
		ComputedAt:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSink_ReplaceSummaries(t *testing.T) {
	pool := setupTestDB(t)
	sink := NewSink(pool)
	ctx := context.Background()

	require.NoError(t, sink.ReplaceSummaries(ctx, domain.RunOutput{
		RunID: "r1", Full: true, Wallets: []string{"0xa", "0xb"},
		Summaries: []domain.WalletPnlSummary{makeSummary("0xa", "10"), makeSummary("0xb", "20")},
	}))
	require.NoError(t, sink.ReplaceSummaries(ctx, domain.RunOutput{
		RunID: "r2", Wallets: []string{"0xa"},
		Skipped: []domain.SkipReport{{Wallet: "0xa", Reason: domain.SkipLoadFailed, Detail: "timeout"}},
	}))

	a, err := sink.GetSummary(ctx, "0xa")
	require.NoError(t, err)
	assert.Nil(t, a, "partial run replaced 0xa with nothing")

	b, err := sink.GetSummary(ctx, "0xb")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "r1", b.RunID)
	assert.True(t, dec("20").Equal(b.RealizedPnL))
	require.NotNil(t, b.ProfitFactor)
	assert.True(t, dec("2.5").Equal(*b.ProfitFactor))
	assert.True(t, dec("0.08333333").Equal(b.TakerRatio))
	assert.Nil(t, b.IneligibleReasons)
}

func TestSink_SaveDiagnostics_Upsert(t *testing.T) {
	pool := setupTestDB(t)
	sink := NewSink(pool)
	ctx := context.Background()

	diag := domain.RunDiagnostics{RunID: "r1", StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC(), Wallets: 3}
	require.NoError(t, sink.SaveDiagnostics(ctx, diag))
	diag.Computed = 3
	require.NoError(t, sink.SaveDiagnostics(ctx, diag))

	var computed int
	require.NoError(t, pool.QueryRow(ctx, `SELECT computed FROM pnl_runs WHERE run_id = $1`, "r1").Scan(&computed))
	assert.Equal(t, 3, computed)
}
