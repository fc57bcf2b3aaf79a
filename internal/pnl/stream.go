package pnl

import (
	"slices"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// BuildStream une trades, eventos sintéticos y redemptions en un único stream
// cronológico con orden total determinista.
func BuildStream(
	trades []domain.TradeEvent,
	synthetic []domain.LedgerEvent,
	redemptions []domain.LedgerEvent,
) []domain.LedgerEvent {
	stream := make([]domain.LedgerEvent, 0, len(trades)+len(synthetic)+len(redemptions))
	for _, t := range trades {
		kind := domain.LedgerBuy
		if t.Side == domain.SideSell {
			kind = domain.LedgerSell
		}
		stream = append(stream, domain.LedgerEvent{
			Kind:      kind,
			Origin:    domain.OriginTrade,
			TokenID:   t.TokenID,
			Quantity:  t.Quantity,
			Price:     t.Price,
			TxHash:    t.TxHash,
			LogIndex:  t.LogIndex,
			Timestamp: t.Timestamp,
			Role:      t.Role,
		})
	}
	stream = append(stream, synthetic...)
	stream = append(stream, redemptions...)
	slices.SortStableFunc(stream, domain.CompareLedgerEvents)
	return stream
}
