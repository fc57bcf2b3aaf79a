package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Reporter presenta el resultado de un run al usuario.
type Reporter interface {
	// Report recibe los resultados ordenados por wallet y los diagnósticos.
	Report(ctx context.Context, results []domain.WalletResult, diag domain.RunDiagnostics) error
}
