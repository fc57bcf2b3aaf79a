package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Reconciler aplica redemptions sobre el ledger de forma idempotente.
// Guarda una marca de agua por (wallet, token, tx): reaplicar un canje solo
// aplica la cantidad por encima de la marca.
type Reconciler struct {
	ledger *Ledger
	marks  map[redemptionKey]decimal.Decimal
}

type redemptionKey struct {
	wallet, token, tx string
}

// NewReconciler crea un Reconciler sobre el ledger de la wallet.
func NewReconciler(l *Ledger) *Reconciler {
	return &Reconciler{ledger: l, marks: make(map[redemptionKey]decimal.Decimal)}
}

// Apply canjea ev.Quantity al precio de resolución. applied=false si el canje
// ya estaba reflejado por completo.
func (r *Reconciler) Apply(ev domain.LedgerEvent, price decimal.Decimal) (fill Fill, applied bool) {
	key := redemptionKey{wallet: r.ledger.wallet, token: ev.TokenID, tx: ev.TxHash}
	mark := r.marks[key]
	if !ev.Quantity.GreaterThan(mark) {
		return Fill{Requested: ev.Quantity}, false
	}

	delta := ev
	delta.Quantity = ev.Quantity.Sub(mark)
	r.marks[key] = ev.Quantity
	return r.ledger.Redeem(delta, price), true
}
