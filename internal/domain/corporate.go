package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CorporateActionKind es split (USDC → set completo de outcomes) o merge (al revés).
type CorporateActionKind string

const (
	ActionSplit CorporateActionKind = "split"
	ActionMerge CorporateActionKind = "merge"
)

// ParseCorporateActionKind acepta "split"/"merge" en cualquier capitalización.
func ParseCorporateActionKind(s string) (CorporateActionKind, error) {
	switch CorporateActionKind(strings.ToLower(strings.TrimSpace(s))) {
	case ActionSplit:
		return ActionSplit, nil
	case ActionMerge:
		return ActionMerge, nil
	}
	return "", fmt.Errorf("domain.ParseCorporateActionKind: unknown kind %q", s)
}

// CorporateActionEvent es un split o merge de posiciones de una condición.
// Amount es la cantidad de tokens por outcome; cero significa igual a USDCAmount
// (el colateral se divide 1:1).
type CorporateActionEvent struct {
	TxHash       string
	LogIndex     int64
	Kind         CorporateActionKind
	ConditionID  string
	USDCAmount   decimal.Decimal
	Amount       decimal.Decimal
	OutcomeCount int
	Stakeholder  string
	Timestamp    time.Time
}

// TokenAmount devuelve la cantidad por outcome efectiva.
func (c CorporateActionEvent) TokenAmount() decimal.Decimal {
	if c.Amount.IsPositive() {
		return c.Amount
	}
	return c.USDCAmount
}

// Ref devuelve una referencia legible para logs y diagnósticos.
func (c CorporateActionEvent) Ref() string {
	return fmt.Sprintf("%s:%d:%s", c.TxHash, c.LogIndex, c.Kind)
}

// RedemptionEvent es el canje de tokens de una condición resuelta.
// Payout es informativo: el precio de canje sale siempre de la resolución.
type RedemptionEvent struct {
	Wallet      string
	ConditionID string
	TokenID     string
	Quantity    decimal.Decimal
	Payout      decimal.Decimal
	TxHash      string
	LogIndex    int64
	Timestamp   time.Time
}

// Ref devuelve una referencia legible para logs y diagnósticos.
func (r RedemptionEvent) Ref() string {
	return fmt.Sprintf("%s:%s", r.TxHash, r.TokenID)
}

// WalletInputs son los datos materializados de una wallet para un run.
type WalletInputs struct {
	Wallet      string
	Trades      []TradeEvent
	Actions     []CorporateActionEvent
	Redemptions []RedemptionEvent
}

// EventCount es el tamaño de entrada que se compara con el límite por wallet.
func (in WalletInputs) EventCount() int {
	return len(in.Trades) + len(in.Actions) + len(in.Redemptions)
}
