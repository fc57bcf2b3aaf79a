package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	activityPerPage  = 500
	activityMaxPages = 20
)

var activityTypes = strings.Join([]string{activityTrade, activitySplit, activityMerge, activityRedeem}, ",")

// FetchActivity obtiene la actividad de una wallet (trades, splits, merges y
// redeems) de la Data API, en orden cronológico ascendente.
//
// Si la última página permitida llega llena el historial puede estar cortado:
// devuelve un error que envuelve domain.ErrBudgetExceeded en vez de la
// actividad parcial.
func (c *Client) FetchActivity(ctx context.Context, wallet string) ([]activityItem, error) {
	var all []activityItem

	for page := 0; page < activityMaxPages; page++ {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("type", activityTypes)
		q.Set("limit", fmt.Sprint(activityPerPage))
		q.Set("offset", fmt.Sprint(page*activityPerPage))
		q.Set("sortBy", "TIMESTAMP")
		q.Set("sortDirection", "ASC")

		var resp []activityItem
		if err := c.get(ctx, c.dataLimiter, c.dataBase+"/activity?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchActivity: %s: %w", wallet, err)
		}
		all = append(all, resp...)

		slog.Debug("fetched activity page",
			"wallet", wallet,
			"page", page,
			"count", len(resp),
			"total", len(all),
		)

		if len(resp) < activityPerPage {
			return all, nil
		}
	}

	slog.Warn("activity truncated at page limit", "wallet", wallet, "pages", activityMaxPages)
	return nil, fmt.Errorf("data-api.FetchActivity: %s: %d items in %d pages: %w",
		wallet, len(all), activityMaxPages, domain.ErrBudgetExceeded)
}
