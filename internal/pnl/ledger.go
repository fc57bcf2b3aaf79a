package pnl

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Fill es el efecto de una venta o canje sobre una posición.
type Fill struct {
	Requested decimal.Decimal
	Applied   decimal.Decimal // min(requested, cantidad en mano)
	Excess    decimal.Decimal // descartado por el cap
	PnL       decimal.Decimal
}

// Capped devuelve true si parte de la cantidad se descartó.
func (f Fill) Capped() bool {
	return f.Excess.IsPositive()
}

// Ledger mantiene las posiciones de coste medio ponderado de una wallet.
// No es seguro para uso concurrente: cada worker crea el suyo.
type Ledger struct {
	wallet    string
	scale     int32
	positions map[string]*domain.Position

	// ventas sobre tokens sin posición: no crean posición pero cuentan
	orphanSellVolume    decimal.Decimal
	orphanExternalSells decimal.Decimal
	orphanRedeemed      decimal.Decimal

	realizations []domain.Realization
}

// NewLedger crea un ledger vacío para la wallet.
func NewLedger(wallet string, scale int32) *Ledger {
	return &Ledger{
		wallet:    wallet,
		scale:     scale,
		positions: make(map[string]*domain.Position),
	}
}

// Buy suma cantidad y coste. La posición se crea con la primera compra o split.
func (l *Ledger) Buy(ev domain.LedgerEvent) {
	p, ok := l.positions[ev.TokenID]
	if !ok {
		p = &domain.Position{Wallet: l.wallet, TokenID: ev.TokenID}
		l.positions[ev.TokenID] = p
	}
	p.CostBasis = p.CostBasis.Add(ev.Quantity.Mul(ev.Price).Round(l.scale))
	p.Quantity = p.Quantity.Add(ev.Quantity)
	if ev.Origin == domain.OriginTrade {
		p.LastPrice = ev.Price
		p.HasLastPrice = true
	}
}

// Sell aplica el sell-cap: vende como mucho la cantidad en mano y el exceso
// se registra como external sells.
func (l *Ledger) Sell(ev domain.LedgerEvent) Fill {
	p, ok := l.positions[ev.TokenID]
	if !ok {
		l.orphanSellVolume = l.orphanSellVolume.Add(ev.Quantity)
		l.orphanExternalSells = l.orphanExternalSells.Add(ev.Quantity)
		return Fill{Requested: ev.Quantity, Applied: decimal.Zero, Excess: ev.Quantity, PnL: decimal.Zero}
	}

	p.SellVolume = p.SellVolume.Add(ev.Quantity)
	if ev.Origin == domain.OriginTrade {
		p.LastPrice = ev.Price
		p.HasLastPrice = true
	}

	f := l.release(p, ev, ev.Price)
	if f.Capped() {
		p.ExternalSells = p.ExternalSells.Add(f.Excess)
	}
	return f
}

// Redeem canjea tokens al precio de resolución con el mismo cap que Sell.
func (l *Ledger) Redeem(ev domain.LedgerEvent, price decimal.Decimal) Fill {
	p, ok := l.positions[ev.TokenID]
	if !ok {
		l.orphanRedeemed = l.orphanRedeemed.Add(ev.Quantity)
		return Fill{Requested: ev.Quantity, Applied: decimal.Zero, Excess: ev.Quantity, PnL: decimal.Zero}
	}

	f := l.release(p, ev, price)
	p.RedeemedQuantity = p.RedeemedQuantity.Add(f.Applied)
	if f.Capped() {
		p.ExcessRedeemed = p.ExcessRedeemed.Add(f.Excess)
	}
	return f
}

// release saca min(q, qty) de la posición. El coste liberado es proporcional;
// al cerrar la posición se libera todo el coste restante.
func (l *Ledger) release(p *domain.Position, ev domain.LedgerEvent, price decimal.Decimal) Fill {
	f := Fill{Requested: ev.Quantity}
	f.Applied = domain.MinDecimal(ev.Quantity, p.Quantity)
	f.Excess = ev.Quantity.Sub(f.Applied)
	f.PnL = decimal.Zero
	if !f.Applied.IsPositive() {
		return f
	}

	var cost decimal.Decimal
	if f.Applied.Equal(p.Quantity) {
		cost = p.CostBasis
	} else {
		cost = p.CostBasis.Mul(f.Applied).DivRound(p.Quantity, l.scale)
	}
	proceeds := f.Applied.Mul(price).Round(l.scale)
	f.PnL = proceeds.Sub(cost)

	p.CostBasis = p.CostBasis.Sub(cost)
	p.Quantity = p.Quantity.Sub(f.Applied)
	p.RealizedPnL = p.RealizedPnL.Add(f.PnL)

	l.realizations = append(l.realizations, domain.Realization{
		TokenID:   p.TokenID,
		Origin:    ev.Origin,
		Quantity:  f.Applied,
		PnL:       f.PnL,
		Timestamp: ev.Timestamp,
	})
	return f
}

// Valuer devuelve el precio al que valorar una posición abierta y la base usada.
// ValuedNone deja la posición sin unrealized.
type Valuer func(p domain.Position) (decimal.Decimal, domain.ValuationBasis)

// Valuate calcula el held-value P&L de las posiciones abiertas. Se llama una
// sola vez, después de aplicar todo el stream.
func (l *Ledger) Valuate(value Valuer) {
	for _, p := range l.positions {
		p.HeldValuePnL = decimal.Zero
		p.Valuation = domain.ValuedNone
		if !p.IsOpen() {
			continue
		}
		price, basis := value(*p)
		if basis == domain.ValuedNone {
			continue
		}
		p.HeldValuePnL = p.Quantity.Mul(price).Round(l.scale).Sub(p.CostBasis)
		p.Valuation = basis
	}
}

// Position devuelve una copia de la posición del token.
func (l *Ledger) Position(tokenID string) (domain.Position, bool) {
	p, ok := l.positions[tokenID]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions devuelve copias de todas las posiciones ordenadas por token.
func (l *Ledger) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b domain.Position) int { return strings.Compare(a.TokenID, b.TokenID) })
	return out
}

// Realizations devuelve el P&L realizado evento a evento, en orden de aplicación.
func (l *Ledger) Realizations() []domain.Realization {
	return l.realizations
}

// SellVolume es la cantidad de venta solicitada en toda la wallet.
func (l *Ledger) SellVolume() decimal.Decimal {
	total := l.orphanSellVolume
	for _, p := range l.positions {
		total = total.Add(p.SellVolume)
	}
	return total
}

// ExternalSells es la cantidad vendida por encima de lo comprado en el stream.
func (l *Ledger) ExternalSells() decimal.Decimal {
	total := l.orphanExternalSells
	for _, p := range l.positions {
		total = total.Add(p.ExternalSells)
	}
	return total
}
