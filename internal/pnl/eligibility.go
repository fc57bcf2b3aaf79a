package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Motivos de no elegibilidad, estables para persistir y filtrar.
const (
	ReasonExternalSells     = "external_sells_ratio"
	ReasonOpenExposure      = "open_exposure_ratio"
	ReasonOpenExposureUndef = "open_exposure_undefined"
	ReasonTakerRatio        = "taker_ratio"
	ReasonTradeCount        = "trade_count"
	ReasonRealized          = "realized_pnl"
	ReasonAmbiguous         = "ambiguous_ratio"
)

// EligibilityConfig contiene los umbrales del scorer. Todos son inclusivos:
// un ratio igual al máximo es elegible.
type EligibilityConfig struct {
	// MaxExternalSellsRatio: external sells / volumen de venta solicitado.
	MaxExternalSellsRatio decimal.Decimal
	// MaxOpenExposureRatio: coste en posiciones no resueltas / |realized|.
	MaxOpenExposureRatio decimal.Decimal
	// MaxTakerRatio: trades taker / trades totales.
	MaxTakerRatio decimal.Decimal
	// MinTradeCount se compara con trade_count (solo maker).
	MinTradeCount int
	// RequirePositiveRealized exige realized > 0.
	RequirePositiveRealized bool
	// MaxAmbiguousRatio: eventos ambiguos / trades crudos. 0 = desactivado.
	MaxAmbiguousRatio decimal.Decimal
}

// DefaultEligibilityConfig devuelve los umbrales por defecto.
func DefaultEligibilityConfig() EligibilityConfig {
	return EligibilityConfig{
		MaxExternalSellsRatio:   decimal.RequireFromString("0.05"),
		MaxOpenExposureRatio:    decimal.RequireFromString("0.25"),
		MaxTakerRatio:           decimal.RequireFromString("0.15"),
		MinTradeCount:           50,
		RequirePositiveRealized: true,
	}
}

// Eligibility es la salida del scorer para una wallet.
type Eligibility struct {
	ExternalSellsRatio decimal.Decimal
	OpenExposureRatio  *decimal.Decimal // nil si realized == 0
	TakerRatio         decimal.Decimal
	AmbiguousRatio     decimal.Decimal
	Eligible           bool
	Reasons            []string
}

// Scorer calcula los ratios de confianza y decide la elegibilidad.
type Scorer struct {
	cfg EligibilityConfig
}

// NewScorer crea un Scorer con los umbrales dados.
func NewScorer(cfg EligibilityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score es una función pura del summary y los diagnósticos de la wallet.
func (s *Scorer) Score(sum domain.WalletPnlSummary, diag domain.WalletDiagnostics) Eligibility {
	e := Eligibility{
		ExternalSellsRatio: domain.Ratio(sum.ExternalSells, sum.TotalSellVolume, domain.RatioScale),
		TakerRatio: domain.Ratio(
			decimal.NewFromInt(int64(sum.TakerTradeCount)),
			decimal.NewFromInt(int64(sum.TotalTradeCount)),
			domain.RatioScale,
		),
		AmbiguousRatio: domain.Ratio(
			decimal.NewFromInt(int64(len(diag.Ambiguous))),
			decimal.NewFromInt(int64(diag.RawTrades)),
			domain.RatioScale,
		),
	}
	if !sum.RealizedPnL.IsZero() {
		r := sum.UnresolvedCostBasis.DivRound(sum.RealizedPnL.Abs(), domain.RatioScale)
		e.OpenExposureRatio = &r
	}

	if e.ExternalSellsRatio.GreaterThan(s.cfg.MaxExternalSellsRatio) {
		e.Reasons = append(e.Reasons, ReasonExternalSells)
	}
	switch {
	case e.OpenExposureRatio == nil:
		e.Reasons = append(e.Reasons, ReasonOpenExposureUndef)
	case e.OpenExposureRatio.GreaterThan(s.cfg.MaxOpenExposureRatio):
		e.Reasons = append(e.Reasons, ReasonOpenExposure)
	}
	if e.TakerRatio.GreaterThan(s.cfg.MaxTakerRatio) {
		e.Reasons = append(e.Reasons, ReasonTakerRatio)
	}
	if sum.TradeCount < s.cfg.MinTradeCount {
		e.Reasons = append(e.Reasons, ReasonTradeCount)
	}
	if s.cfg.RequirePositiveRealized && !sum.RealizedPnL.IsPositive() {
		e.Reasons = append(e.Reasons, ReasonRealized)
	}
	if s.cfg.MaxAmbiguousRatio.IsPositive() && e.AmbiguousRatio.GreaterThan(s.cfg.MaxAmbiguousRatio) {
		e.Reasons = append(e.Reasons, ReasonAmbiguous)
	}

	e.Eligible = len(e.Reasons) == 0
	return e
}

// Apply copia ratios y veredicto al summary.
func (e Eligibility) Apply(sum *domain.WalletPnlSummary) {
	sum.ExternalSellsRatio = e.ExternalSellsRatio
	sum.OpenExposureRatio = e.OpenExposureRatio
	sum.TakerRatio = e.TakerRatio
	sum.Eligible = e.Eligible
	sum.IneligibleReasons = e.Reasons
}
