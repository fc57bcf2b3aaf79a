package pnl

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// NormalizeResult es la salida del normalizador para una wallet.
type NormalizeResult struct {
	Events            []domain.TradeEvent // deduplicados y ordenados
	Ambiguous         []domain.AmbiguousEvent
	Integrity         []domain.DataIntegrityError
	Duplicates        int
	ConflictsResolved int
}

// Normalizer deduplica trades de varias fuentes y resuelve conflictos por confianza.
type Normalizer struct {
	policy     TiePolicy
	precedence map[domain.SourceKind]int
}

// NewNormalizer crea un Normalizer. precedence solo se usa con TiePrecedence;
// las fuentes primero en la lista ganan.
func NewNormalizer(policy TiePolicy, precedence []domain.SourceKind) *Normalizer {
	ranks := make(map[domain.SourceKind]int, len(precedence))
	for i, k := range precedence {
		if _, ok := ranks[k]; !ok {
			ranks[k] = i
		}
	}
	if policy == "" {
		policy = TieExclude
	}
	return &Normalizer{policy: policy, precedence: ranks}
}

// group es un conjunto de registros que describen el mismo fill.
type group struct {
	key     string
	records []domain.TradeEvent
}

// Normalize valida, deduplica y ordena los trades de una wallet.
func (n *Normalizer) Normalize(wallet string, raw []domain.TradeEvent) NormalizeResult {
	var res NormalizeResult

	var groups []*group
	indexed := make(map[string]*group)
	unindexed := make(map[string]*group)

	for _, t := range raw {
		t.TxHash = domain.NormalizeHash(t.TxHash)
		t.TokenID = strings.TrimSpace(t.TokenID)
		if ierr, bad := validateTrade(wallet, t); bad {
			slog.Warn("trade excluded", "wallet", wallet, "ref", ierr.Ref, "reason", ierr.Reason)
			res.Integrity = append(res.Integrity, ierr)
			continue
		}
		if t.HasLogIndex() {
			k := fmt.Sprintf("%s|%s|%d", t.TxHash, t.TokenID, t.LogIndex)
			g, ok := indexed[k]
			if !ok {
				g = &group{key: k}
				indexed[k] = g
				groups = append(groups, g)
			}
			g.records = append(g.records, t)
			continue
		}
		k := fmt.Sprintf("%s|%s|%s|%s", t.TxHash, t.TokenID, t.Quantity.String(), t.Price.String())
		g, ok := unindexed[k]
		if !ok {
			g = &group{key: k}
			unindexed[k] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, t)
	}

	groups = joinUnindexed(groups)
	for _, g := range groups {
		slices.SortStableFunc(g.records, domain.CompareTrades)
	}

	res.Events = make([]domain.TradeEvent, 0, len(groups))
	for _, g := range groups {
		winner, ok, conflict := n.resolve(wallet, g)
		if !ok {
			res.Ambiguous = append(res.Ambiguous, domain.AmbiguousEvent{Key: g.key, Records: g.records})
			continue
		}
		if conflict {
			res.ConflictsResolved++
		}
		res.Duplicates += len(g.records) - 1
		res.Events = append(res.Events, winner)
	}

	slices.SortStableFunc(res.Events, domain.CompareTrades)
	slices.SortFunc(res.Ambiguous, func(a, b domain.AmbiguousEvent) int { return strings.Compare(a.Key, b.Key) })
	return res
}

// joinUnindexed une un grupo sin log index al único grupo indexado del mismo
// (tx, token) con la misma cantidad y precio. Si hay cero o varios candidatos
// el grupo queda separado.
func joinUnindexed(groups []*group) []*group {
	type txToken struct{ tx, token string }
	byTx := make(map[txToken][]*group)
	for _, g := range groups {
		if g.records[0].HasLogIndex() {
			k := txToken{g.records[0].TxHash, g.records[0].TokenID}
			byTx[k] = append(byTx[k], g)
		}
	}
	if len(byTx) == 0 {
		return groups
	}

	out := groups[:0:0]
	for _, g := range groups {
		first := g.records[0]
		if first.HasLogIndex() {
			out = append(out, g)
			continue
		}
		var match *group
		matches := 0
		for _, cand := range byTx[txToken{first.TxHash, first.TokenID}] {
			if slices.ContainsFunc(cand.records, func(r domain.TradeEvent) bool {
				return r.Quantity.Equal(first.Quantity) && r.Price.Equal(first.Price)
			}) {
				match = cand
				matches++
			}
		}
		if matches == 1 {
			match.records = append(match.records, g.records...)
			continue
		}
		out = append(out, g)
	}
	return out
}

// resolve elige el registro ganador de un grupo. ok=false si el grupo es ambiguo.
// conflict indica que había registros en desacuerdo.
func (n *Normalizer) resolve(wallet string, g *group) (winner domain.TradeEvent, ok, conflict bool) {
	if len(g.records) == 1 {
		return g.records[0], true, false
	}

	conflict = !agree(g.records)

	maxConf := g.records[0].Source.Confidence
	for _, r := range g.records[1:] {
		maxConf = max(maxConf, r.Source.Confidence)
	}
	top := filterTrades(g.records, func(r domain.TradeEvent) bool { return r.Source.Confidence == maxConf })
	if agree(top) {
		return n.representative(top), true, conflict
	}

	slog.Warn("conflicting trade records with equal confidence",
		"wallet", wallet,
		"key", g.key,
		"records", len(g.records),
		"confidence", maxConf,
		"policy", n.policy,
	)

	if n.policy == TiePrecedence {
		best := n.rank(top[0].Source.Kind)
		for _, r := range top[1:] {
			best = min(best, n.rank(r.Source.Kind))
		}
		preferred := filterTrades(top, func(r domain.TradeEvent) bool { return n.rank(r.Source.Kind) == best })
		if agree(preferred) {
			return n.representative(preferred), true, true
		}
	}
	return domain.TradeEvent{}, false, true
}

// representative elige, entre registros que coinciden, el que trae rol conocido
// y la fuente de mayor precedencia. Empates: el primero en orden CompareTrades.
func (n *Normalizer) representative(records []domain.TradeEvent) domain.TradeEvent {
	best := records[0]
	for _, r := range records[1:] {
		if best.Role == domain.RoleUnknown && r.Role != domain.RoleUnknown {
			best = r
			continue
		}
		if (best.Role == domain.RoleUnknown) == (r.Role == domain.RoleUnknown) &&
			n.rank(r.Source.Kind) < n.rank(best.Source.Kind) {
			best = r
		}
	}
	if !best.HasLogIndex() {
		for _, r := range records {
			if r.HasLogIndex() {
				best.LogIndex = r.LogIndex
				break
			}
		}
	}
	return best
}

func (n *Normalizer) rank(k domain.SourceKind) int {
	if r, ok := n.precedence[k]; ok {
		return r
	}
	return len(n.precedence)
}

// agree: mismo lado, cantidad y precio; el rol solo discrepa si ambos lo conocen.
func agree(records []domain.TradeEvent) bool {
	first := records[0]
	role := first.Role
	for _, r := range records[1:] {
		if r.Side != first.Side || !r.Quantity.Equal(first.Quantity) || !r.Price.Equal(first.Price) {
			return false
		}
		if r.Role != domain.RoleUnknown {
			if role != domain.RoleUnknown && role != r.Role {
				return false
			}
			role = r.Role
		}
	}
	return true
}

func filterTrades(records []domain.TradeEvent, keep func(domain.TradeEvent) bool) []domain.TradeEvent {
	out := make([]domain.TradeEvent, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// validateTrade detecta registros que no pueden entrar al ledger.
func validateTrade(wallet string, t domain.TradeEvent) (domain.DataIntegrityError, bool) {
	fail := func(reason string) (domain.DataIntegrityError, bool) {
		return domain.DataIntegrityError{Record: domain.RecordTrade, Ref: t.Ref(), Reason: reason}, true
	}
	switch {
	case t.TxHash == "":
		return fail("missing tx hash")
	case t.TokenID == "":
		return fail("missing token id")
	case t.Side != domain.SideBuy && t.Side != domain.SideSell:
		return fail(fmt.Sprintf("invalid side %q", t.Side))
	case !t.Quantity.IsPositive():
		return fail("non-positive quantity " + t.Quantity.String())
	case t.Price.IsNegative():
		return fail("negative price " + t.Price.String())
	case t.Price.GreaterThan(decimal.NewFromInt(1)):
		return fail("price above 1: " + t.Price.String())
	case wallet != "" && t.Wallet != "" && !strings.EqualFold(t.Wallet, wallet):
		return fail("belongs to wallet " + t.Wallet)
	}
	return domain.DataIntegrityError{}, false
}
