package domain

import (
	"cmp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEventKind es la operación que un evento aplica sobre una posición.
type LedgerEventKind string

const (
	LedgerBuy        LedgerEventKind = "buy"
	LedgerSell       LedgerEventKind = "sell"
	LedgerRedemption LedgerEventKind = "redemption"
)

// kindRank: con la misma clave de orden, primero entra cantidad y luego sale.
func (k LedgerEventKind) rank() int {
	switch k {
	case LedgerBuy:
		return 0
	case LedgerSell:
		return 1
	default:
		return 2
	}
}

// EventOrigin indica de qué registro de entrada nace un evento del ledger.
type EventOrigin string

const (
	OriginTrade      EventOrigin = "trade"
	OriginSplit      EventOrigin = "split"
	OriginMerge      EventOrigin = "merge"
	OriginRedemption EventOrigin = "redemption"
)

// LedgerEvent es un elemento del stream cronológico que consume el ledger.
// Los eventos sintéticos (split/merge) llevan el log index del corporate action.
type LedgerEvent struct {
	Kind      LedgerEventKind
	Origin    EventOrigin
	TokenID   string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	TxHash    string
	LogIndex  int64
	Timestamp time.Time
	Role      Role
}

// CompareLedgerEvents define el orden total del stream:
// (timestamp, tx_hash, log_index, kind, token, origin, quantity, price, role).
func CompareLedgerEvents(a, b LedgerEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := strings.Compare(a.TxHash, b.TxHash); c != 0 {
		return c
	}
	if c := cmp.Compare(a.LogIndex, b.LogIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind.rank(), b.Kind.rank()); c != 0 {
		return c
	}
	if c := strings.Compare(a.TokenID, b.TokenID); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Origin), string(b.Origin)); c != 0 {
		return c
	}
	if c := a.Quantity.Cmp(b.Quantity); c != 0 {
		return c
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	return strings.Compare(string(a.Role), string(b.Role))
}

// ValuationBasis indica cómo se valoró la cantidad en mano al final del stream.
type ValuationBasis string

const (
	ValuedNone       ValuationBasis = ""
	ValuedSettlement ValuationBasis = "settlement"
	ValuedLastTrade  ValuationBasis = "last_trade"
)

// Position es el estado de coste medio ponderado de (wallet, token).
// CostBasis es el coste total de la cantidad en mano; el coste medio se deriva.
type Position struct {
	Wallet           string
	TokenID          string
	Quantity         decimal.Decimal
	CostBasis        decimal.Decimal
	RealizedPnL      decimal.Decimal
	RedeemedQuantity decimal.Decimal
	ExternalSells    decimal.Decimal // exceso de venta descartado por el cap
	ExcessRedeemed   decimal.Decimal // exceso de canje descartado por el cap
	SellVolume       decimal.Decimal // cantidad de venta solicitada, antes del cap
	LastPrice        decimal.Decimal
	HasLastPrice     bool
	HeldValuePnL     decimal.Decimal
	Valuation        ValuationBasis
}

// AvgCost devuelve el coste medio por token, 0 si la posición está vacía.
func (p Position) AvgCost(scale int32) decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.CostBasis.DivRound(p.Quantity, scale)
}

// IsOpen devuelve true si queda cantidad en mano.
func (p Position) IsOpen() bool {
	return p.Quantity.IsPositive()
}

// Realization es el P&L realizado por una venta o canje concreto.
type Realization struct {
	TokenID   string
	Origin    EventOrigin
	Quantity  decimal.Decimal
	PnL       decimal.Decimal
	Timestamp time.Time
}
