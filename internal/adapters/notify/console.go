package notify

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

const defaultTop = 20

// Console implementa ports.Reporter.
type Console struct {
	out      io.Writer
	top      int
	table    bool
	validate bool
}

var _ ports.Reporter = (*Console)(nil)

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(top int, table, validate bool) *Console {
	return NewConsoleWriter(os.Stdout, top, table, validate)
}

// NewConsoleWriter crea un reporter sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer, top int, table, validate bool) *Console {
	if top <= 0 {
		top = defaultTop
	}
	return &Console{out: w, top: top, table: table, validate: validate}
}

// Report imprime el resultado del run en el modo configurado.
func (c *Console) Report(_ context.Context, results []domain.WalletResult, diag domain.RunDiagnostics) error {
	ok := okResults(results)
	if len(ok) == 0 {
		fmt.Fprintf(c.out, "[%s] run %s: no wallets computed (%d skipped)\n",
			time.Now().Format("15:04:05"), shortID(diag.RunID), len(diag.Skipped))
		return nil
	}

	if c.table {
		c.printFull(ok, diag)
	} else {
		c.printCompact(ok, diag)
	}

	if c.validate {
		c.printValidation(ok)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(ok []domain.WalletResult, diag domain.RunDiagnostics) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] run %s | %d wallets → ok:%d skip:%d elig:%d | amb:%d integ:%d",
		time.Now().Format("15:04:05"), shortID(diag.RunID),
		diag.Wallets, diag.Computed, len(diag.Skipped), diag.Eligible,
		diag.Ambiguous, diag.IntegrityErrors)

	shown := 0
	for _, r := range ok {
		if shown >= 3 {
			break
		}
		if !r.Summary.Eligible {
			continue
		}
		fmt.Fprintf(&sb, " | %s %s", shortAddr(r.Wallet), money(r.Summary.RealizedPnL))
		shown++
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de wallets y el bloque de diagnósticos.
func (c *Console) printFull(ok []domain.WalletResult, diag domain.RunDiagnostics) {
	fmt.Fprintf(c.out, "\n[%s] run %s | %d wallets, %d computed, %d eligible, %d skipped (%s)\n",
		time.Now().Format("15:04:05"), shortID(diag.RunID),
		diag.Wallets, diag.Computed, diag.Eligible, len(diag.Skipped),
		diag.FinishedAt.Sub(diag.StartedAt).Round(time.Millisecond))

	c.printTable(ok)
	c.printDiagnostics(diag)
}

// printTable imprime las top N wallets por realized P&L.
func (c *Console) printTable(ok []domain.WalletResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Wallet", "Realized", "Unrealized", "Maker", "Ext%", "Taker%", "OpenExp", "PF", "Status")

	for i, r := range ok {
		if i >= c.top {
			break
		}
		s := r.Summary
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortAddr(s.Wallet),
			money(s.RealizedPnL),
			money(s.UnrealizedPnL),
			fmt.Sprintf("%d/%d", s.TradeCount, s.TotalTradeCount),
			percent(s.ExternalSellsRatio),
			percent(s.TakerRatio),
			optionalPercent(s.OpenExposureRatio),
			profitFactorLabel(s),
			statusLabel(s),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Maker = fills maker/total | Ext% = ventas sin posición previa | OpenExp = coste abierto / |realized|")
}

// printDiagnostics imprime lo excluido en el run.
func (c *Console) printDiagnostics(diag domain.RunDiagnostics) {
	fmt.Fprintf(c.out, "\n=== DIAGNOSTICS ===\n")
	fmt.Fprintf(c.out, "  Ambiguous events:      %d\n", diag.Ambiguous)
	fmt.Fprintf(c.out, "  Integrity errors:      %d\n", diag.IntegrityErrors)
	fmt.Fprintf(c.out, "  Resolution errors:     %d\n", diag.ResolutionErrors)
	fmt.Fprintf(c.out, "  Duplicates collapsed:  %d\n", diag.Duplicates)
	fmt.Fprintf(c.out, "  Unpriced redemptions:  %d\n", diag.UnpricedRedemptions)
	fmt.Fprintf(c.out, "  Unmappable actions:    %d\n", diag.ActionsUnmappable)
	fmt.Fprintf(c.out, "  Ext sells ratio:       %s\n", distLabel(diag.ExternalSellsRatio))
	fmt.Fprintf(c.out, "  Taker ratio:           %s\n", distLabel(diag.TakerRatio))

	if len(diag.Skipped) > 0 {
		fmt.Fprintf(c.out, "\n  Skipped wallets:\n")
		for i, sk := range diag.Skipped {
			if i >= c.top {
				fmt.Fprintf(c.out, "    ... %d more\n", len(diag.Skipped)-i)
				break
			}
			fmt.Fprintf(c.out, "    %s  %-18s events:%d  %s\n",
				shortAddr(sk.Wallet), sk.Reason, sk.EventCount, truncate(sk.Detail, 60))
		}
	}
	fmt.Fprintln(c.out)
}

// printValidation imprime el desglose por posición de las 3 mejores wallets.
func (c *Console) printValidation(ok []domain.WalletResult) {
	top := ok
	if len(top) > 3 {
		top = ok[:3]
	}

	fmt.Fprintln(c.out, "=== VALIDATION: position breakdown ===")
	for i, r := range top {
		s := r.Summary
		fmt.Fprintf(c.out, "\n--- #%d: %s  realized %s  unrealized %s ---\n",
			i+1, s.Wallet, money(s.RealizedPnL), money(s.UnrealizedPnL))

		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Token", "Qty", "Cost", "Realized", "Redeemed", "ExtSells", "Held", "Basis")
		for _, p := range r.Positions {
			basis := string(p.Valuation)
			if basis == "" {
				basis = "-"
			}
			tbl.Append(
				truncate(p.TokenID, 14),
				p.Quantity.StringFixed(2),
				money(p.CostBasis),
				money(p.RealizedPnL),
				p.RedeemedQuantity.StringFixed(2),
				p.ExternalSells.StringFixed(2),
				money(p.HeldValuePnL),
				basis,
			)
		}
		tbl.Render()

		d := r.Diagnostics
		fmt.Fprintf(c.out, "  raw trades %d, duplicates %d, conflicts %d, ambiguous %d, integrity %d\n",
			d.RawTrades, d.Duplicates, d.ConflictsResolved, len(d.Ambiguous), len(d.Integrity))
		fmt.Fprintf(c.out, "  actions: attributed %d, unmatched %d, unmappable %d | capped sells %d, capped redemptions %d\n",
			d.ActionsAttributed, d.ActionsUnmatched, d.ActionsUnmappable, d.CappedSells, d.CappedRedemptions)
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

// okResults devuelve las wallets con summary, mejores primero.
func okResults(results []domain.WalletResult) []domain.WalletResult {
	var ok []domain.WalletResult
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		}
	}
	slices.SortFunc(ok, func(a, b domain.WalletResult) int {
		if c := b.Summary.RealizedPnL.Cmp(a.Summary.RealizedPnL); c != 0 {
			return c
		}
		return cmp.Compare(a.Wallet, b.Wallet)
	})
	return ok
}

func statusLabel(s *domain.WalletPnlSummary) string {
	if s.Eligible {
		return "ELIGIBLE"
	}
	return strings.Join(s.IneligibleReasons, ",")
}

func profitFactorLabel(s *domain.WalletPnlSummary) string {
	switch {
	case s.ProfitFactor != nil:
		return s.ProfitFactor.StringFixed(2)
	case s.ProfitFactorInfinite:
		return "INF"
	default:
		return "-"
	}
}

func distLabel(d domain.Distribution) string {
	if d.Count == 0 {
		return "-"
	}
	return fmt.Sprintf("n=%d mean=%s p50=%s p90=%s max=%s",
		d.Count, percent(d.Mean), percent(d.P50), percent(d.P90), percent(d.Max))
}

var hundred = decimal.NewFromInt(100)

func percent(d decimal.Decimal) string {
	return d.Mul(hundred).StringFixed(1) + "%"
}

func optionalPercent(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return percent(*d)
}

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
