package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/cache"
	"github.com/alejandrodnm/polypnl/internal/adapters/clickhouse"
	"github.com/alejandrodnm/polypnl/internal/adapters/onchain"
	"github.com/alejandrodnm/polypnl/internal/adapters/polymarket"
	"github.com/alejandrodnm/polypnl/internal/adapters/postgres"
	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// sources agrupa los feeds del batch según la configuración.
type sources struct {
	lister      ports.WalletLister
	feed        ports.WalletFeed
	tokens      ports.TokenFeed
	resolutions ports.ResolutionFeed
	closers     []func()
}

func (s *sources) close() {
	for _, c := range s.closers {
		c()
	}
}

func openSources(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, wallets []string) (*sources, error) {
	src := &sources{}

	var api *polymarket.Source
	apiSource := func() *polymarket.Source {
		if api == nil {
			universe := cfg.Sources.Wallets
			if len(wallets) > 0 {
				universe = wallets
			}
			client := polymarket.NewClient(cfg.API.DataBase, cfg.API.GammaBase)
			api = polymarket.NewSource(client, universe, store)
		}
		return api
	}

	var warehouse *clickhouse.Feed
	openWarehouse := func() (*clickhouse.Feed, error) {
		if warehouse != nil {
			return warehouse, nil
		}
		conn, err := clickhouse.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return nil, err
		}
		src.closers = append(src.closers, func() { conn.Close() })
		if err := conn.Migrate(ctx); err != nil {
			return nil, err
		}
		warehouse = clickhouse.NewFeed(conn)
		return warehouse, nil
	}

	switch cfg.Sources.Trades {
	case config.SourceAPI:
		a := apiSource()
		src.lister, src.feed, src.tokens = a, a, a
	case config.SourceClickHouse:
		w, err := openWarehouse()
		if err != nil {
			src.close()
			return nil, fmt.Errorf("open trades source: %w", err)
		}
		src.lister, src.feed, src.tokens = w, w, w
	default:
		src.lister, src.feed, src.tokens = store, store, store
	}

	switch cfg.Sources.Resolutions {
	case config.SourceAPI:
		src.resolutions = apiSource()
	case config.SourceClickHouse:
		w, err := openWarehouse()
		if err != nil {
			src.close()
			return nil, fmt.Errorf("open resolution source: %w", err)
		}
		src.resolutions = w
	case config.SourceChain:
		feed, err := onchain.Dial(ctx, cfg.Chain.RPCURL, chainFeedConfig(cfg.Chain))
		if err != nil {
			src.close()
			return nil, fmt.Errorf("open resolution source: %w", err)
		}
		src.resolutions = feed
	default:
		src.resolutions = store
	}

	return src, nil
}

func chainFeedConfig(c config.ChainConfig) onchain.FeedConfig {
	return onchain.FeedConfig{
		Contract:   c.Contract,
		FromBlock:  c.FromBlock,
		ToBlock:    c.ToBlock,
		BlockRange: c.BlockRange,
	}
}

// syncChainActions importa a SQLite los splits/merges on-chain de las wallets.
func syncChainActions(ctx context.Context, cfg *config.Config, lister ports.WalletLister, store *storage.SQLiteStorage, wallets []string) error {
	if cfg.Sources.Trades != config.SourceSQLite {
		slog.Warn("chain action sync only feeds the sqlite source", "trades", cfg.Sources.Trades)
	}
	if len(wallets) == 0 {
		var err error
		if wallets, err = lister.ListWallets(ctx); err != nil {
			return fmt.Errorf("list wallets: %w", err)
		}
	}
	if len(wallets) == 0 {
		return nil
	}

	feed, err := onchain.Dial(ctx, cfg.Chain.RPCURL, chainFeedConfig(cfg.Chain))
	if err != nil {
		return err
	}

	start := time.Now()
	actions, err := feed.LoadActions(ctx, wallets)
	if err != nil {
		return err
	}
	if err := store.SaveCorporateActions(ctx, actions); err != nil {
		return err
	}
	slog.Info("chain actions synced", "wallets", len(wallets), "actions", len(actions), "elapsed", time.Since(start))
	return nil
}

// openSinks devuelve SQLite más los sinks opcionales (Postgres, Redis).
func openSinks(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) ([]ports.SummarySink, func(), error) {
	sinks := []ports.SummarySink{store}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, postgres.NewSink(pool))
		slog.Info("postgres sink enabled")
	}

	if cfg.Cache.RedisURL != "" {
		rdb, err := cache.Dial(ctx, cfg.Cache.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { rdb.Close() })
		sinks = append(sinks, cache.NewPublisher(rdb, cfg.CacheTTL(), cfg.Cache.Prefix))
		slog.Info("redis publisher enabled")
	}

	return sinks, closeAll, nil
}
