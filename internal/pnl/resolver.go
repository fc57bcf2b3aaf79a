package pnl

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ResolverOptions controla la validación de payouts.
type ResolverOptions struct {
	// AllowFractionalPayouts acepta payouts en (0,1), p.ej. resoluciones 50/50.
	AllowFractionalPayouts bool
}

// Resolver es un snapshot inmutable de resoluciones, construido una vez por run
// y compartido por todos los workers.
type Resolver struct {
	states map[string]domain.ResolutionState
}

// NewResolver agrupa los registros por condición y valida cada vector de payouts.
// Las condiciones inválidas quedan marcadas como tal y se devuelve un
// DataIntegrityError por cada una.
func NewResolver(records []domain.ResolutionRecord, opts ResolverOptions) (*Resolver, []domain.DataIntegrityError) {
	byCondition := make(map[string][]domain.ResolutionRecord)
	for _, rec := range records {
		id := domain.NormalizeHash(rec.ConditionID)
		byCondition[id] = append(byCondition[id], rec)
	}

	ids := make([]string, 0, len(byCondition))
	for id := range byCondition {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	r := &Resolver{states: make(map[string]domain.ResolutionState, len(byCondition))}
	var integrity []domain.DataIntegrityError
	for _, id := range ids {
		state := buildState(id, byCondition[id], opts)
		if state.Status == domain.ResolutionInvalid {
			slog.Warn("invalid resolution", "condition_id", id, "reason", state.Reason)
			integrity = append(integrity, domain.DataIntegrityError{
				Record: domain.RecordResolution,
				Ref:    id,
				Reason: state.Reason,
			})
		}
		r.states[id] = state
	}
	return r, integrity
}

// Resolve devuelve el estado de la condición; sin registros → unresolved.
func (r *Resolver) Resolve(conditionID string) domain.ResolutionState {
	id := domain.NormalizeHash(conditionID)
	if s, ok := r.states[id]; ok {
		return s
	}
	return domain.ResolutionState{ConditionID: id, Status: domain.ResolutionUnresolved}
}

// Len devuelve cuántas condiciones tienen registros.
func (r *Resolver) Len() int {
	return len(r.states)
}

// Invalid devuelve cuántas condiciones están marcadas inválidas.
func (r *Resolver) Invalid() int {
	n := 0
	for _, s := range r.states {
		if s.Status == domain.ResolutionInvalid {
			n++
		}
	}
	return n
}

func buildState(id string, recs []domain.ResolutionRecord, opts ResolverOptions) domain.ResolutionState {
	state := domain.ResolutionState{ConditionID: id, Status: domain.ResolutionInvalid}
	invalid := func(format string, args ...any) domain.ResolutionState {
		state.Reason = fmt.Sprintf(format, args...)
		return state
	}

	size := 0
	for _, rec := range recs {
		if rec.OutcomeIndex < 0 {
			return invalid("negative outcome index %d", rec.OutcomeIndex)
		}
		size = max(size, rec.OutcomeIndex+1)
		if rec.ResolvedAt.After(state.ResolvedAt) {
			state.ResolvedAt = rec.ResolvedAt
		}
	}
	if size < 2 {
		return invalid("fewer than two outcomes")
	}

	numerators := make([]*decimal.Decimal, size)
	var den decimal.Decimal
	for i, rec := range recs {
		if !rec.PayoutDenominator.IsPositive() {
			return invalid("non-positive denominator %s", rec.PayoutDenominator)
		}
		if rec.PayoutNumerator.IsNegative() {
			return invalid("negative numerator %s", rec.PayoutNumerator)
		}
		if i == 0 {
			den = rec.PayoutDenominator
		} else if !rec.PayoutDenominator.Equal(den) {
			return invalid("mixed denominators %s and %s", den, rec.PayoutDenominator)
		}
		num := rec.PayoutNumerator
		if prev := numerators[rec.OutcomeIndex]; prev != nil {
			if !prev.Equal(num) {
				return invalid("conflicting payouts for outcome %d", rec.OutcomeIndex)
			}
			continue
		}
		numerators[rec.OutcomeIndex] = &num
	}

	sum := decimal.Zero
	var missing []string
	for i, num := range numerators {
		if num == nil {
			missing = append(missing, fmt.Sprint(i))
			continue
		}
		sum = sum.Add(*num)
	}
	if len(missing) > 0 {
		return invalid("missing outcomes %s", strings.Join(missing, ","))
	}
	if !sum.Equal(den) {
		return invalid("payouts sum to %s/%s", sum, den)
	}

	payouts := make([]decimal.Decimal, size)
	for i, num := range numerators {
		if !opts.AllowFractionalPayouts && !num.IsZero() && !num.Equal(den) {
			return invalid("fractional payout %s/%s for outcome %d", *num, den, i)
		}
		payouts[i] = num.Div(den)
	}

	state.Status = domain.ResolutionResolved
	state.OutcomeCount = size
	state.Payouts = payouts
	return state
}
