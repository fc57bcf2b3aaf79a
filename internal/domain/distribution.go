package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Distribution resume una métrica sobre las wallets computadas de un run.
type Distribution struct {
	Count int
	Mean  decimal.Decimal
	P50   decimal.Decimal
	P90   decimal.Decimal
	P99   decimal.Decimal
	Max   decimal.Decimal
}

// NewDistribution calcula media y percentiles (nearest-rank) de values.
func NewDistribution(values []decimal.Decimal) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })

	sum := decimal.Sum(sorted[0], sorted[1:]...)
	return Distribution{
		Count: len(sorted),
		Mean:  sum.DivRound(decimal.NewFromInt(int64(len(sorted))), RatioScale),
		P50:   percentile(sorted, 50),
		P90:   percentile(sorted, 90),
		P99:   percentile(sorted, 99),
		Max:   sorted[len(sorted)-1],
	}
}

func percentile(sorted []decimal.Decimal, p int) decimal.Decimal {
	// nearest-rank: ceil(p/100 * n), 1-based
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
