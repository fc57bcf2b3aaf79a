package pnl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

func resRec(cond string, idx int, num, den string) domain.ResolutionRecord {
	return domain.ResolutionRecord{
		ConditionID:       cond,
		OutcomeIndex:      idx,
		PayoutNumerator:   dec(num),
		PayoutDenominator: dec(den),
	}
}

func TestResolver_BinaryResolution(t *testing.T) {
	r, errs := NewResolver([]domain.ResolutionRecord{
		resRec("0xC1", 0, "1", "1"),
		resRec("0xc1", 1, "0", "1"),
	}, ResolverOptions{})
	require.Empty(t, errs)

	s := r.Resolve("0xC1")
	assert.True(t, s.IsResolved())
	assert.Equal(t, 2, s.OutcomeCount)
	p, ok := s.Price(0)
	require.True(t, ok)
	assertDec(t, "1", p)
}

func TestResolver_NoRecordIsUnresolved(t *testing.T) {
	r, _ := NewResolver(nil, ResolverOptions{})
	s := r.Resolve("0xmissing")
	assert.Equal(t, domain.ResolutionUnresolved, s.Status)
	_, ok := s.Price(0)
	assert.False(t, ok)
}

func TestResolver_InvalidVectors(t *testing.T) {
	cases := map[string][]domain.ResolutionRecord{
		"sum above one":   {resRec("0xc", 0, "1", "1"), resRec("0xc", 1, "1", "1")},
		"zero denom":      {resRec("0xc", 0, "1", "0"), resRec("0xc", 1, "0", "0")},
		"missing outcome": {resRec("0xc", 0, "1", "1"), resRec("0xc", 2, "0", "1")},
		"conflicting dup": {resRec("0xc", 0, "1", "1"), resRec("0xc", 0, "0", "1"), resRec("0xc", 1, "0", "1")},
		"fractional":      {resRec("0xc", 0, "1", "2"), resRec("0xc", 1, "1", "2")},
		"single outcome":  {resRec("0xc", 0, "1", "1")},
	}
	for name, recs := range cases {
		t.Run(name, func(t *testing.T) {
			r, errs := NewResolver(recs, ResolverOptions{})
			require.Len(t, errs, 1)
			assert.Equal(t, domain.RecordResolution, errs[0].Record)
			s := r.Resolve("0xc")
			assert.Equal(t, domain.ResolutionInvalid, s.Status)
			assert.False(t, s.IsResolved())
			assert.Equal(t, 1, r.Invalid())
		})
	}
}

func TestResolver_FractionalAllowed(t *testing.T) {
	r, errs := NewResolver([]domain.ResolutionRecord{
		resRec("0xc", 0, "1", "2"),
		resRec("0xc", 1, "1", "2"),
	}, ResolverOptions{AllowFractionalPayouts: true})
	require.Empty(t, errs)

	p, ok := r.Resolve("0xc").Price(1)
	require.True(t, ok)
	assertDec(t, "0.5", p)
}

func TestResolver_IdenticalDuplicatesAccepted(t *testing.T) {
	r, errs := NewResolver([]domain.ResolutionRecord{
		resRec("0xc", 0, "0", "1"),
		resRec("0xc", 1, "1", "1"),
		resRec("0xc", 1, "1", "1"),
	}, ResolverOptions{})
	require.Empty(t, errs)
	assert.True(t, r.Resolve("0xc").IsResolved())
}
