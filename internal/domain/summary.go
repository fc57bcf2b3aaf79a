package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletPnlSummary es el resultado por wallet de un run.
// O está completo y es consistente, o no existe (wallet saltada).
type WalletPnlSummary struct {
	Wallet        string
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal

	// TradeCount cuenta solo fills maker.
	TradeCount      int
	TotalTradeCount int
	TakerTradeCount int

	ExternalSells       decimal.Decimal
	TotalSellVolume     decimal.Decimal
	UnresolvedCostBasis decimal.Decimal

	ExternalSellsRatio decimal.Decimal
	OpenExposureRatio  *decimal.Decimal // nil si realized == 0
	TakerRatio         decimal.Decimal

	// ProfitFactor = ganancias / |pérdidas|. nil sin pérdidas; en ese caso
	// ProfitFactorInfinite indica si hubo ganancias.
	ProfitFactor         *decimal.Decimal
	ProfitFactorInfinite bool

	Positions     int
	OpenPositions int

	Eligible          bool
	IneligibleReasons []string

	RunID      string
	ComputedAt time.Time
}

// TotalPnL = realized + unrealized.
func (s WalletPnlSummary) TotalPnL() decimal.Decimal {
	return s.RealizedPnL.Add(s.UnrealizedPnL)
}

// WalletDiagnostics acumula lo excluido o ajustado al calcular una wallet.
type WalletDiagnostics struct {
	RawTrades           int
	Duplicates          int
	ConflictsResolved   int // conflictos resueltos por confianza o precedencia
	Ambiguous           []AmbiguousEvent
	Integrity           []DataIntegrityError
	ActionsAttributed   int
	ActionsUnmatched    int // tx sin trade de la wallet
	ActionsUnmappable   int // condición sin mapeo completo de tokens
	SyntheticEvents     int
	UnpricedRedemptions int
	DuplicateRedemption int
	CappedSells         int
	CappedRedemptions   int
}

// SkipReason explica por qué una wallet no tiene summary en el run.
type SkipReason string

const (
	SkipBudgetExceeded    SkipReason = "budget_exceeded"
	SkipLoadFailed        SkipReason = "load_failed"
	SkipComputationFailed SkipReason = "computation_failed"
)

// SkipReport registra una wallet saltada.
type SkipReport struct {
	Wallet     string
	Reason     SkipReason
	Detail     string
	EventCount int
}

// WalletResult es la salida de la computación de una wallet: summary o skip.
type WalletResult struct {
	Wallet      string
	Summary     *WalletPnlSummary
	Skip        *SkipReport
	Positions   []Position
	Diagnostics WalletDiagnostics
	Elapsed     time.Duration
}

// OK devuelve true si la wallet tiene summary.
func (r WalletResult) OK() bool {
	return r.Summary != nil && r.Skip == nil
}

// RunDiagnostics se emite siempre, una vez por run.
type RunDiagnostics struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Full       bool // run sobre todas las wallets del lister
	Aborted    bool

	Wallets  int
	Computed int
	Eligible int
	Skipped  []SkipReport

	Ambiguous           int
	IntegrityErrors     int
	ResolutionErrors    int
	Duplicates          int
	UnpricedRedemptions int
	ActionsUnmappable   int

	ExternalSellsRatio Distribution
	TakerRatio         Distribution
}

// RunOutput es lo que se escribe en los sinks al terminar un run.
// Wallets incluye computadas y saltadas: todas reemplazan su fila anterior.
type RunOutput struct {
	RunID     string
	Full      bool
	Wallets   []string
	Summaries []WalletPnlSummary
	Skipped   []SkipReport
}
