package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Archive recibe los datos descargados para materializarlos localmente.
type Archive interface {
	SaveWalletInputs(ctx context.Context, in domain.WalletInputs) error
	SaveTokens(ctx context.Context, infos []domain.TokenInfo) error
	SaveResolutions(ctx context.Context, recs []domain.ResolutionRecord) error
}

// Source sirve al motor los datos de un conjunto fijo de wallets obtenidos de
// la Data API y de Gamma. Implementa WalletLister, WalletFeed, ResolutionFeed
// y TokenFeed. La descarga se hace una vez, en la primera llamada.
type Source struct {
	client  *Client
	wallets []string
	archive Archive

	mu          sync.Mutex
	loaded      bool
	inputs      map[string]domain.WalletInputs
	failed      map[string]error // wallets cuya actividad no se pudo descargar entera
	tokens      []domain.TokenInfo
	resolutions []domain.ResolutionRecord
}

// NewSource crea un Source para las wallets dadas. archive puede ser nil.
func NewSource(client *Client, wallets []string, archive Archive) *Source {
	norm := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if w = domain.NormalizeHash(w); w != "" {
			norm = append(norm, w)
		}
	}
	slices.Sort(norm)
	return &Source{
		client:  client,
		wallets: slices.Compact(norm),
		archive: archive,
	}
}

// ListWallets devuelve las wallets configuradas.
func (s *Source) ListWallets(_ context.Context) ([]string, error) {
	return slices.Clone(s.wallets), nil
}

// LoadWallet devuelve la actividad descargada de la wallet.
func (s *Source) LoadWallet(ctx context.Context, wallet string) (domain.WalletInputs, error) {
	if err := s.prefetch(ctx); err != nil {
		return domain.WalletInputs{}, err
	}
	wallet = domain.NormalizeHash(wallet)
	if err := s.failed[wallet]; err != nil {
		return domain.WalletInputs{}, fmt.Errorf("polymarket.LoadWallet: %w", err)
	}
	in, ok := s.inputs[wallet]
	if !ok {
		return domain.WalletInputs{}, fmt.Errorf("polymarket.LoadWallet: wallet %s not in source", wallet)
	}
	return in, nil
}

// LoadResolutions devuelve los payouts de los mercados resueltos que tocan las wallets.
func (s *Source) LoadResolutions(ctx context.Context) ([]domain.ResolutionRecord, error) {
	if err := s.prefetch(ctx); err != nil {
		return nil, err
	}
	return s.resolutions, nil
}

// LoadTokens devuelve el mapeo de tokens de los mercados que tocan las wallets.
func (s *Source) LoadTokens(ctx context.Context) ([]domain.TokenInfo, error) {
	if err := s.prefetch(ctx); err != nil {
		return nil, err
	}
	return s.tokens, nil
}

// prefetch descarga la actividad de todas las wallets y los mercados que
// aparecen en ella. Un fallo no se cachea: la siguiente llamada reintenta.
func (s *Source) prefetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	raw := make(map[string][]activityItem, len(s.wallets))
	failed := make(map[string]error)
	conditions := make(map[string]struct{})
	for _, w := range s.wallets {
		items, err := s.client.FetchActivity(ctx, w)
		if errors.Is(err, domain.ErrBudgetExceeded) {
			// solo esa wallet queda fuera; el resto del run sigue
			failed[w] = err
			continue
		}
		if err != nil {
			return fmt.Errorf("polymarket.prefetch: %w", err)
		}
		raw[w] = items
		for _, it := range items {
			if it.ConditionID != "" {
				conditions[domain.NormalizeHash(it.ConditionID)] = struct{}{}
			}
		}
	}

	markets, err := s.client.FetchMarkets(ctx, slices.Sorted(maps.Keys(conditions)))
	if err != nil {
		return fmt.Errorf("polymarket.prefetch: %w", err)
	}

	var tokens []domain.TokenInfo
	var resolutions []domain.ResolutionRecord
	byOutcome := make(map[string]map[int]string)
	for _, cond := range slices.Sorted(maps.Keys(markets)) {
		gm := markets[cond]
		infos, err := mapMarketTokens(gm)
		if err != nil {
			slog.Warn("gamma market without usable tokens", "condition_id", cond, "err", err)
			continue
		}
		tokens = append(tokens, infos...)
		byOutcome[cond] = make(map[int]string, len(infos))
		for _, ti := range infos {
			byOutcome[cond][ti.OutcomeIndex] = ti.TokenID
		}

		recs, resolved, err := mapMarketResolution(gm)
		if err != nil {
			slog.Warn("gamma resolution unparseable", "condition_id", cond, "err", err)
			continue
		}
		if resolved {
			resolutions = append(resolutions, recs...)
		}
	}
	tokenFor := func(cond string, idx int) (string, bool) {
		t, ok := byOutcome[cond][idx]
		return t, ok
	}

	inputs := make(map[string]domain.WalletInputs, len(raw))
	for w, items := range raw {
		inputs[w] = mapActivity(w, items, tokenFor)
	}

	if s.archive != nil {
		if err := s.save(ctx, inputs, tokens, resolutions); err != nil {
			return fmt.Errorf("polymarket.prefetch: %w", err)
		}
	}

	s.inputs, s.failed, s.tokens, s.resolutions = inputs, failed, tokens, resolutions
	s.loaded = true

	slog.Info("data api prefetch complete",
		"wallets", len(inputs),
		"truncated", len(failed),
		"markets", len(markets),
		"resolved_conditions", countConditions(resolutions),
	)
	return nil
}

func (s *Source) save(ctx context.Context, inputs map[string]domain.WalletInputs, tokens []domain.TokenInfo, recs []domain.ResolutionRecord) error {
	if err := s.archive.SaveTokens(ctx, tokens); err != nil {
		return fmt.Errorf("archive tokens: %w", err)
	}
	if err := s.archive.SaveResolutions(ctx, recs); err != nil {
		return fmt.Errorf("archive resolutions: %w", err)
	}
	for _, w := range slices.Sorted(maps.Keys(inputs)) {
		if err := s.archive.SaveWalletInputs(ctx, inputs[w]); err != nil {
			return fmt.Errorf("archive wallet %s: %w", w, err)
		}
	}
	return nil
}

func countConditions(recs []domain.ResolutionRecord) int {
	seen := make(map[string]struct{})
	for _, r := range recs {
		seen[r.ConditionID] = struct{}{}
	}
	return len(seen)
}
