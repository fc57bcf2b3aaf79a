package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenInfo mapea un token de outcome a su condición.
// Es una entrada externa: el motor nunca la infiere.
type TokenInfo struct {
	TokenID      string
	ConditionID  string
	OutcomeIndex int
	OutcomeCount int
}

// ResolutionRecord es una fila de resolución: el payout de un outcome.
type ResolutionRecord struct {
	ConditionID       string
	OutcomeIndex      int
	PayoutNumerator   decimal.Decimal
	PayoutDenominator decimal.Decimal
	ResolvedAt        time.Time
}

// ResolutionStatus es el estado de una condición en el snapshot de un run.
type ResolutionStatus string

const (
	ResolutionUnresolved ResolutionStatus = "unresolved"
	ResolutionResolved   ResolutionStatus = "resolved"
	// ResolutionInvalid: hay registros pero violan las invariantes del payout.
	// Se trata como no resuelta a efectos de valoración.
	ResolutionInvalid ResolutionStatus = "invalid"
)

// ResolutionState es la resolución de una condición.
type ResolutionState struct {
	ConditionID  string
	Status       ResolutionStatus
	OutcomeCount int
	Payouts      []decimal.Decimal
	ResolvedAt   time.Time
	Reason       string // motivo cuando Status == invalid
}

// IsResolved devuelve true solo para resoluciones válidas.
func (r ResolutionState) IsResolved() bool {
	return r.Status == ResolutionResolved
}

// Price devuelve el payout por token del outcome. ok=false si la condición no
// está resuelta o el índice está fuera de rango.
func (r ResolutionState) Price(outcomeIndex int) (decimal.Decimal, bool) {
	if !r.IsResolved() || outcomeIndex < 0 || outcomeIndex >= len(r.Payouts) {
		return decimal.Zero, false
	}
	return r.Payouts[outcomeIndex], true
}
