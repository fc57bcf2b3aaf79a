package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// SummarySink persiste la salida de cada run.
type SummarySink interface {
	// ReplaceSummaries reemplaza, en una sola transacción, las filas de todas las
	// wallets del run. Si out.Full, las wallets que no aparecen se eliminan.
	// Las wallets saltadas quedan sin summary.
	ReplaceSummaries(ctx context.Context, out domain.RunOutput) error

	// SaveDiagnostics persiste los diagnósticos del run. Se llama siempre,
	// también en runs abortados.
	SaveDiagnostics(ctx context.Context, diag domain.RunDiagnostics) error
}
