package pnl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

const diagnosticsTimeout = 30 * time.Second

// Deps son las dependencias del batch. Lister solo se usa en runs completos.
type Deps struct {
	Lister      ports.WalletLister
	Feed        ports.WalletFeed
	Resolutions ports.ResolutionFeed
	Tokens      ports.TokenFeed
	Sinks       []ports.SummarySink
	Reporters   []ports.Reporter
	Metrics     *metrics.Metrics
}

// RunReport es el resultado de un run.
type RunReport struct {
	Diagnostics domain.RunDiagnostics
	Results     []domain.WalletResult
}

// Batch orquesta los runs: snapshot de resoluciones, fan-out por wallet,
// escritura whole-replace y diagnósticos.
type Batch struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// NewBatch crea un Batch con todas las dependencias inyectadas.
func NewBatch(cfg Config, deps Deps) *Batch {
	return &Batch{cfg: cfg, deps: deps, now: time.Now}
}

// Loop ejecuta runs completos cada cfg.Interval hasta que el contexto se cancele.
func (b *Batch) Loop(ctx context.Context) error {
	slog.Info("batch loop starting", "interval", b.cfg.Interval)

	if _, err := b.Run(ctx); err != nil {
		slog.Error("pnl run failed", "err", err)
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("batch loop stopped")
			return nil
		case <-ticker.C:
			if _, err := b.Run(ctx); err != nil {
				slog.Error("pnl run failed", "err", err)
			}
		}
	}
}

// Run computa todas las wallets del lister. Las wallets que ya no aparecen
// pierden su summary.
func (b *Batch) Run(ctx context.Context) (RunReport, error) {
	if b.deps.Lister == nil {
		return RunReport{}, errors.New("pnl.Batch.Run: no wallet lister configured")
	}
	return b.run(ctx, nil, true)
}

// RunWallets computa solo las wallets dadas y reemplaza solo sus filas.
func (b *Batch) RunWallets(ctx context.Context, wallets []string) (RunReport, error) {
	return b.run(ctx, wallets, false)
}

func (b *Batch) run(ctx context.Context, wallets []string, full bool) (report RunReport, err error) {
	diag := domain.RunDiagnostics{
		RunID:     uuid.NewString(),
		StartedAt: b.now(),
		Full:      full,
	}
	log := slog.With("run_id", diag.RunID)

	defer func() {
		if ctx.Err() != nil {
			diag.Aborted = true
		}
		diag.FinishedAt = b.now()
		b.saveDiagnostics(ctx, diag)
		b.deps.Metrics.ObserveRun(diag, err)
		report.Diagnostics = diag
	}()

	engine, snapErr := b.snapshot(ctx, &diag)
	if snapErr != nil {
		return report, snapErr
	}

	if full {
		wallets, err = b.deps.Lister.ListWallets(ctx)
		if err != nil {
			return report, fmt.Errorf("pnl.Batch.run: list wallets: %w", err)
		}
	}
	wallets = normalizeWallets(wallets)
	diag.Wallets = len(wallets)
	log.Info("pnl run starting", "wallets", len(wallets), "full", full)

	results := computeWalletsConcurrent(ctx, engine, b.deps.Feed, wallets, b.cfg.Workers, b.deps.Metrics.ObserveWallet)
	if ctx.Err() != nil {
		log.Warn("pnl run aborted, summaries not written", "computed", len(results), "wallets", len(wallets))
		return report, fmt.Errorf("pnl.Batch.run: %w", ctx.Err())
	}

	out := domain.RunOutput{RunID: diag.RunID, Full: full, Wallets: wallets}
	now := b.now()
	for _, res := range results {
		if !res.OK() {
			out.Skipped = append(out.Skipped, *res.Skip)
			continue
		}
		res.Summary.RunID = diag.RunID
		res.Summary.ComputedAt = now
		out.Summaries = append(out.Summaries, *res.Summary)
	}
	summarize(&diag, results)
	report.Results = results

	var sinkErrs []error
	for _, sink := range b.deps.Sinks {
		if err := sink.ReplaceSummaries(ctx, out); err != nil {
			sinkErrs = append(sinkErrs, err)
		}
	}
	if err := errors.Join(sinkErrs...); err != nil {
		return report, fmt.Errorf("pnl.Batch.run: write summaries: %w", err)
	}

	for _, r := range b.deps.Reporters {
		if err := r.Report(ctx, results, diag); err != nil {
			log.Warn("reporter error", "err", err)
		}
	}

	log.Info("pnl run complete",
		"wallets", diag.Wallets,
		"computed", diag.Computed,
		"skipped", len(diag.Skipped),
		"eligible", diag.Eligible,
		"ambiguous", diag.Ambiguous,
		"integrity_errors", diag.IntegrityErrors,
		"duration", b.now().Sub(diag.StartedAt).Round(time.Millisecond),
	)
	return report, nil
}

// snapshot carga resoluciones y tokens una vez por run y construye el engine.
func (b *Batch) snapshot(ctx context.Context, diag *domain.RunDiagnostics) (*Engine, error) {
	recs, err := b.deps.Resolutions.LoadResolutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("pnl.Batch.snapshot: load resolutions: %w", err)
	}
	resolver, resErrs := NewResolver(recs, ResolverOptions{AllowFractionalPayouts: b.cfg.AllowFractionalPayouts})
	diag.ResolutionErrors = len(resErrs)

	infos, err := b.deps.Tokens.LoadTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("pnl.Batch.snapshot: load tokens: %w", err)
	}
	tokens, tokErrs := NewTokenIndex(infos)
	diag.IntegrityErrors += len(tokErrs)

	slog.Debug("run snapshot loaded",
		"conditions", resolver.Len(),
		"invalid_conditions", resolver.Invalid(),
		"tokens", tokens.Len(),
	)
	return NewEngine(b.cfg, resolver, tokens), nil
}

// saveDiagnostics escribe los diagnósticos en todos los sinks, también si el
// contexto del run ya está cancelado.
func (b *Batch) saveDiagnostics(ctx context.Context, diag domain.RunDiagnostics) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()
	for _, sink := range b.deps.Sinks {
		if err := sink.SaveDiagnostics(ctx, diag); err != nil {
			slog.Warn("save diagnostics failed", "run_id", diag.RunID, "err", err)
		}
	}
}

// summarize acumula los contadores y distribuciones del run.
func summarize(diag *domain.RunDiagnostics, results []domain.WalletResult) {
	var external, taker []decimal.Decimal
	for _, res := range results {
		if !res.OK() {
			diag.Skipped = append(diag.Skipped, *res.Skip)
			continue
		}
		diag.Computed++
		if res.Summary.Eligible {
			diag.Eligible++
		}
		d := res.Diagnostics
		diag.Ambiguous += len(d.Ambiguous)
		diag.IntegrityErrors += len(d.Integrity)
		diag.Duplicates += d.Duplicates
		diag.UnpricedRedemptions += d.UnpricedRedemptions
		diag.ActionsUnmappable += d.ActionsUnmappable
		external = append(external, res.Summary.ExternalSellsRatio)
		taker = append(taker, res.Summary.TakerRatio)
	}
	diag.ExternalSellsRatio = domain.NewDistribution(external)
	diag.TakerRatio = domain.NewDistribution(taker)
}

// normalizeWallets pasa a minúsculas, quita vacíos y duplicados y ordena.
func normalizeWallets(wallets []string) []string {
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if w = domain.NormalizeHash(w); w != "" {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
