package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// WalletLister enumera las wallets a computar en un run completo.
type WalletLister interface {
	ListWallets(ctx context.Context) ([]string, error)
}

// WalletFeed carga los datos materializados de una wallet: trades, corporate
// actions asociados a sus tx y redemptions.
type WalletFeed interface {
	LoadWallet(ctx context.Context, wallet string) (domain.WalletInputs, error)
}

// ResolutionFeed devuelve todos los registros de resolución conocidos.
// Se carga una vez por run y forma un snapshot inmutable.
type ResolutionFeed interface {
	LoadResolutions(ctx context.Context) ([]domain.ResolutionRecord, error)
}

// TokenFeed devuelve el mapeo token → (condición, outcome).
type TokenFeed interface {
	LoadTokens(ctx context.Context) ([]domain.TokenInfo, error)
}
