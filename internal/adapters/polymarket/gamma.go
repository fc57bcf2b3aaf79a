package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// FetchMarkets obtiene de Gamma los mercados de los condition_ids dados,
// en lotes. Un lote fallido (tras los reintentos del cliente) falla la
// descarga entera: sin él faltarían resoluciones y tokens sin aviso.
func (c *Client) FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]gammaMarket, error) {
	result := make(map[string]gammaMarket, len(conditionIDs))

	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(conditionIDs))
		batch := conditionIDs[i:end]

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("gamma.FetchMarkets: batch %d-%d: %w", i, end, err)
		}

		for _, gm := range resp {
			result[strings.ToLower(gm.ConditionID)] = gm
		}
	}

	slog.Debug("gamma markets fetched",
		"conditions", len(conditionIDs),
		"found", len(result),
	)
	return result, nil
}
