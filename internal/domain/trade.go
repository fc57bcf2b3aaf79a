package domain

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side es la dirección de un trade desde el punto de vista de la wallet.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide acepta "buy"/"sell" en cualquier capitalización.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("domain.ParseSide: unknown side %q", s)
}

// Role indica si la wallet proveyó liquidez (maker) o la tomó (taker).
type Role string

const (
	RoleMaker   Role = "MAKER"
	RoleTaker   Role = "TAKER"
	RoleUnknown Role = "UNKNOWN"
)

// ParseRole nunca falla: cualquier valor no reconocido es RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleMaker:
		return RoleMaker
	case RoleTaker:
		return RoleTaker
	}
	return RoleUnknown
}

// SourceKind identifica de dónde viene un registro de trade.
type SourceKind string

const (
	SourceCLOB      SourceKind = "clob"      // fill del order book, rol explícito
	SourceInferred  SourceKind = "inferred"  // dirección inferida de transfers on-chain
	SourceDataAPI   SourceKind = "data_api"  // actividad de la Data API
	SourceWarehouse SourceKind = "warehouse" // tablas materializadas
)

// Source etiqueta un registro con su origen y la confianza que el origen declara.
// A mayor Confidence, más peso en la deduplicación.
type Source struct {
	Kind       SourceKind
	Confidence int
}

// NoLogIndex marca un trade cuyo log index no es conocido.
const NoLogIndex int64 = -1

// TradeEvent es un fill atribuido a una wallet.
type TradeEvent struct {
	Wallet     string
	TokenID    string
	Side       Side
	Role       Role
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	USDCAmount decimal.Decimal
	TxHash     string
	LogIndex   int64
	Timestamp  time.Time
	Source     Source
}

// HasLogIndex indica si el registro trae log index fiable.
func (t TradeEvent) HasLogIndex() bool {
	return t.LogIndex >= 0
}

// Ref devuelve una referencia legible para logs y diagnósticos.
func (t TradeEvent) Ref() string {
	if t.HasLogIndex() {
		return fmt.Sprintf("%s:%d:%s", t.TxHash, t.LogIndex, t.TokenID)
	}
	return fmt.Sprintf("%s:%s", t.TxHash, t.TokenID)
}

// NormalizeHash pasa un hash/id hexadecimal a minúsculas sin espacios.
func NormalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// CompareTrades ordena por (timestamp, tx_hash, log_index) y desempata por
// token, lado, cantidad, precio, rol y fuente. Dos trades que comparan igual
// son intercambiables, así que el orden no depende del de la entrada.
func CompareTrades(a, b TradeEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := strings.Compare(a.TxHash, b.TxHash); c != 0 {
		return c
	}
	if c := cmp.Compare(a.LogIndex, b.LogIndex); c != 0 {
		return c
	}
	if c := strings.Compare(a.TokenID, b.TokenID); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Side), string(b.Side)); c != 0 {
		return c
	}
	if c := a.Quantity.Cmp(b.Quantity); c != 0 {
		return c
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Role), string(b.Role)); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Source.Kind), string(b.Source.Kind)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Source.Confidence, b.Source.Confidence); c != 0 {
		return c
	}
	return a.USDCAmount.Cmp(b.USDCAmount)
}
