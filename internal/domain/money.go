package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale es la precisión (dígitos decimales) con la que se redondean
// costes, proceeds y P&L. USDC tiene 6 decimales.
const DefaultScale int32 = 6

// RatioScale es la precisión de los ratios de elegibilidad.
const RatioScale int32 = 8

var one = decimal.NewFromInt(1)

// One devuelve 1 como decimal.
func One() decimal.Decimal { return one }

// ParseDecimal parsea un número decimal desde texto. Cadena vacía = 0.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("domain.ParseDecimal: %q: %w", s, err)
	}
	return d, nil
}

// Round redondea al scale configurado (half away from zero).
func Round(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// Ratio devuelve num/den redondeado a scale; 0 si den es cero.
func Ratio(num, den decimal.Decimal, scale int32) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, scale)
}

// MinDecimal devuelve el menor de a y b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
