package pnl

// concurrent.go — worker pool para computar wallets en paralelo.
//
// Cada wallet es independiente: los workers comparten solo el resolver y el
// token index (solo lectura) y cada uno carga y computa una wallet a la vez.

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// computeWalletsConcurrent carga y computa las wallets con un pool de workers.
// Si el contexto se cancela deja de encolar; las wallets no procesadas no
// aparecen en el resultado. El resultado sale ordenado por wallet.
//
// Si workers <= 0 usa runtime.NumCPU().
func computeWalletsConcurrent(
	ctx context.Context,
	engine *Engine,
	feed ports.WalletFeed,
	wallets []string,
	workers int,
	observe func(domain.WalletResult),
) []domain.WalletResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(wallets)))

	workCh := make(chan string)
	resultCh := make(chan domain.WalletResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wallet := range workCh {
				res, ok := computeOne(ctx, engine, feed, wallet)
				if !ok {
					continue
				}
				if observe != nil {
					observe(res)
				}
				resultCh <- res
			}
		}()
	}

	go func() {
		defer close(workCh)
		for _, w := range wallets {
			select {
			case <-ctx.Done():
				return
			case workCh <- w:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]domain.WalletResult, 0, len(wallets))
	for res := range resultCh {
		results = append(results, res)
	}
	slices.SortFunc(results, func(a, b domain.WalletResult) int { return strings.Compare(a.Wallet, b.Wallet) })

	slog.Debug("concurrent computation complete",
		"wallets_queued", len(wallets),
		"results", len(results),
		"workers", workers,
	)
	return results
}

// computeOne carga y computa una wallet. ok=false si el contexto se canceló
// durante la carga: esa wallet no tiene resultado en este run.
func computeOne(ctx context.Context, engine *Engine, feed ports.WalletFeed, wallet string) (domain.WalletResult, bool) {
	in, err := feed.LoadWallet(ctx, wallet)
	if err != nil {
		if ctx.Err() != nil {
			return domain.WalletResult{}, false
		}
		reason := domain.SkipLoadFailed
		if errors.Is(err, domain.ErrBudgetExceeded) {
			reason = domain.SkipBudgetExceeded
		}
		slog.Warn("wallet load failed", "wallet", wallet, "reason", reason, "err", err)
		return domain.WalletResult{
			Wallet: wallet,
			Skip: &domain.SkipReport{
				Wallet: wallet,
				Reason: reason,
				Detail: err.Error(),
			},
		}, true
	}
	if in.Wallet == "" {
		in.Wallet = wallet
	}
	return engine.ComputeWallet(in), true
}
