package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/pnl"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one full batch and exit")
	walletList := flag.String("wallet", "", "comma-separated wallets to recompute (implies -once)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full table + diagnostics (default: compact 1-line)")
	validate := flag.Bool("validate", false, "print position breakdown for top 3 wallets")
	top := flag.Int("top", 20, "wallets shown in the table")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	wallets := splitWallets(*walletList)

	slog.Info("polypnl starting",
		"config", *configPath,
		"trades", cfg.Sources.Trades,
		"resolutions", cfg.Sources.Resolutions,
		"interval", cfg.Interval(),
		"once", *once,
		"wallets", len(wallets),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New("polypnl")
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	src, err := openSources(ctx, cfg, store, wallets)
	if err != nil {
		slog.Error("failed to open sources", "err", err)
		os.Exit(1)
	}
	defer src.close()

	if cfg.Chain.SyncActions {
		if err := syncChainActions(ctx, cfg, src.lister, store, wallets); err != nil {
			slog.Error("chain action sync failed", "err", err)
			os.Exit(1)
		}
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to open sinks", "err", err)
		os.Exit(1)
	}
	defer closeSinks()

	batch := pnl.NewBatch(cfg.PnL(), pnl.Deps{
		Lister:      src.lister,
		Feed:        src.feed,
		Resolutions: src.resolutions,
		Tokens:      src.tokens,
		Sinks:       sinks,
		Reporters:   []ports.Reporter{notify.NewConsole(*top, *table, *validate)},
		Metrics:     m,
	})

	switch {
	case len(wallets) > 0:
		_, err = batch.RunWallets(ctx, wallets)
	case *once:
		_, err = batch.Run(ctx)
	default:
		err = batch.Loop(ctx)
	}
	if err != nil {
		slog.Error("polypnl exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polypnl stopped cleanly")
}

func splitWallets(s string) []string {
	var out []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
