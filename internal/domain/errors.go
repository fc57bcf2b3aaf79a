package domain

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded: la wallet supera el límite de eventos por wallet.
var ErrBudgetExceeded = errors.New("wallet exceeds event budget")

// RecordKind identifica el tipo de registro de entrada afectado por un error.
type RecordKind string

const (
	RecordTrade           RecordKind = "trade"
	RecordCorporateAction RecordKind = "corporate_action"
	RecordRedemption      RecordKind = "redemption"
	RecordResolution      RecordKind = "resolution"
	RecordToken           RecordKind = "token"
)

// DataIntegrityError describe un registro malformado o inconsistente que se
// excluye del cálculo.
type DataIntegrityError struct {
	Record RecordKind
	Ref    string
	Reason string
}

func (e DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s %s: %s", e.Record, e.Ref, e.Reason)
}

// AmbiguousEvent es un grupo de registros en conflicto que no se pudo resolver
// por confianza. Se excluye del cálculo.
type AmbiguousEvent struct {
	Key     string
	Records []TradeEvent
}

func (e AmbiguousEvent) Error() string {
	return fmt.Sprintf("ambiguous event %s: %d conflicting records", e.Key, len(e.Records))
}
