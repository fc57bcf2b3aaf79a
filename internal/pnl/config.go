package pnl

import (
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ValuationMode decide cómo se valora la cantidad en mano al final del stream.
type ValuationMode string

const (
	// ValuationSettlement: solo condiciones resueltas generan unrealized.
	ValuationSettlement ValuationMode = "settlement"
	// ValuationTotal: además, las no resueltas se marcan al último precio de trade.
	ValuationTotal ValuationMode = "total"
)

// TiePolicy decide qué hacer con registros en conflicto de igual confianza.
type TiePolicy string

const (
	TieExclude    TiePolicy = "exclude"
	TiePrecedence TiePolicy = "precedence"
)

// SplitCostMode decide el coste unitario de los tokens creados por un split.
type SplitCostMode string

const (
	// SplitCostUnit: cada token del set cuesta usdc/amount (1.00 en un split 1:1).
	SplitCostUnit SplitCostMode = "unit"
	// SplitCostEqual: el colateral se reparte entre los N outcomes.
	SplitCostEqual SplitCostMode = "equal"
)

// Config contiene la configuración del motor y del batch.
type Config struct {
	Scale                  int32
	Valuation              ValuationMode
	MaxEventsPerWallet     int // 0 = sin límite
	Workers                int // <= 0 usa runtime.NumCPU()
	TiePolicy              TiePolicy
	SourcePrecedence       []domain.SourceKind
	SplitCost              SplitCostMode
	AllowFractionalPayouts bool
	Interval               time.Duration
	Eligibility            EligibilityConfig
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Scale:              domain.DefaultScale,
		Valuation:          ValuationSettlement,
		MaxEventsPerWallet: 200_000,
		TiePolicy:          TieExclude,
		SourcePrecedence: []domain.SourceKind{
			domain.SourceCLOB,
			domain.SourceWarehouse,
			domain.SourceDataAPI,
			domain.SourceInferred,
		},
		SplitCost:   SplitCostUnit,
		Interval:    15 * time.Minute,
		Eligibility: DefaultEligibilityConfig(),
	}
}
