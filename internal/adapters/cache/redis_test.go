package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alejandrodnm/polypnl/internal/adapters/cache"
	"github.com/alejandrodnm/polypnl/internal/domain"
)

// setupRedis arranca un Redis en contenedor.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "redis")
	require.NoError(t, err)

	rdb, err := cache.Dial(ctx, endpoint)
	require.NoError(t, err)

	t.Cleanup(func() {
		rdb.Close()
		_ = container.Terminate(ctx)
	})
	return rdb
}

func summary(wallet, realized string, eligible bool) domain.WalletPnlSummary {
	return domain.WalletPnlSummary{
		Wallet:      wallet,
		RealizedPnL: decimal.RequireFromString(realized),
		Eligible:    eligible,
		ComputedAt:  time.Now().UTC(),
	}
}

func TestPublisher_ReplaceSummaries(t *testing.T) {
	rdb := setupRedis(t)
	pub := cache.NewPublisher(rdb, time.Hour, "test")
	ctx := context.Background()

	require.NoError(t, pub.ReplaceSummaries(ctx, domain.RunOutput{
		RunID: "r1", Full: true, Wallets: []string{"0xa", "0xb", "0xc"},
		Summaries: []domain.WalletPnlSummary{
			summary("0xa", "10", true),
			summary("0xb", "50", true),
			summary("0xc", "90", false),
		},
	}))

	top, err := pub.TopEligible(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xb", "0xa"}, top)

	// run parcial: 0xb sin summary sale del set y pierde su clave
	require.NoError(t, pub.ReplaceSummaries(ctx, domain.RunOutput{
		RunID: "r2", Wallets: []string{"0xb", "0xc"},
		Summaries: []domain.WalletPnlSummary{summary("0xc", "90", true)},
	}))

	top, err = pub.TopEligible(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xc", "0xa"}, top)

	b, err := pub.GetSummary(ctx, "0xB")
	require.NoError(t, err)
	assert.Nil(t, b)

	c, err := pub.GetSummary(ctx, "0xc")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, decimal.NewFromInt(90).Equal(c.RealizedPnL))
}

func TestPublisher_FullRunDropsVanishedWallets(t *testing.T) {
	rdb := setupRedis(t)
	pub := cache.NewPublisher(rdb, 0, "test")
	ctx := context.Background()

	require.NoError(t, pub.ReplaceSummaries(ctx, domain.RunOutput{
		RunID: "r1", Full: true, Wallets: []string{"0xa", "0xb"},
		Summaries: []domain.WalletPnlSummary{summary("0xa", "1", true), summary("0xb", "2", false)},
	}))

	// 0xb ya no está en el universo del siguiente run completo
	require.NoError(t, pub.ReplaceSummaries(ctx, domain.RunOutput{
		RunID: "r2", Full: true, Wallets: []string{"0xa"},
		Summaries: []domain.WalletPnlSummary{summary("0xa", "3", true)},
	}))

	b, err := pub.GetSummary(ctx, "0xb")
	require.NoError(t, err)
	assert.Nil(t, b)

	n, err := rdb.Exists(ctx, "test:summary:0xb").Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	members, err := rdb.SMembers(ctx, "test:summaries").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa"}, members)
}

func TestPublisher_SaveDiagnostics(t *testing.T) {
	rdb := setupRedis(t)
	pub := cache.NewPublisher(rdb, 0, "test")
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "test:runs")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.SaveDiagnostics(ctx, domain.RunDiagnostics{RunID: "r9", Computed: 4}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r9", msg.Payload)

	raw, err := rdb.Get(ctx, "test:run:last").Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"RunID":"r9"`)
}
