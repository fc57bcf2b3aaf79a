package polymarket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// La Data API no da log index ni rol: confianza por debajo del CLOB y del warehouse.
const dataAPIConfidence = 50

// outcomeLookup resuelve el token de (condición, outcome) a partir de Gamma.
type outcomeLookup func(conditionID string, outcomeIndex int) (string, bool)

// mapActivity convierte la actividad de la Data API en los inputs del motor.
// Los valores no parseables quedan a cero: el motor los excluye como errores
// de integridad en lugar de perderlos aquí.
func mapActivity(wallet string, items []activityItem, tokenFor outcomeLookup) domain.WalletInputs {
	wallet = domain.NormalizeHash(wallet)
	in := domain.WalletInputs{Wallet: wallet}

	for _, it := range items {
		ts := parseTimestamp(it.Timestamp)
		tx := domain.NormalizeHash(it.TransactionHash)
		cond := domain.NormalizeHash(it.ConditionID)

		switch strings.ToUpper(it.Type) {
		case activityTrade:
			in.Trades = append(in.Trades, domain.TradeEvent{
				Wallet:     wallet,
				TokenID:    it.Asset,
				Side:       domain.Side(strings.ToUpper(it.Side)),
				Role:       domain.RoleUnknown,
				Quantity:   parseNumber("size", it.Size),
				Price:      parseNumber("price", it.Price),
				USDCAmount: parseNumber("usdcSize", it.USDCSize),
				TxHash:     tx,
				LogIndex:   domain.NoLogIndex,
				Timestamp:  ts,
				Source:     domain.Source{Kind: domain.SourceDataAPI, Confidence: dataAPIConfidence},
			})

		case activitySplit, activityMerge:
			kind := domain.ActionSplit
			if strings.ToUpper(it.Type) == activityMerge {
				kind = domain.ActionMerge
			}
			in.Actions = append(in.Actions, domain.CorporateActionEvent{
				TxHash:      tx,
				LogIndex:    domain.NoLogIndex,
				Kind:        kind,
				ConditionID: cond,
				USDCAmount:  parseNumber("usdcSize", it.USDCSize),
				Amount:      parseNumber("size", it.Size),
				Stakeholder: wallet,
				Timestamp:   ts,
			})

		case activityRedeem:
			token := it.Asset
			if token == "" && it.OutcomeIndex != nil && tokenFor != nil {
				token, _ = tokenFor(cond, *it.OutcomeIndex)
			}
			in.Redemptions = append(in.Redemptions, domain.RedemptionEvent{
				Wallet:      wallet,
				ConditionID: cond,
				TokenID:     token,
				Quantity:    parseNumber("size", it.Size),
				Payout:      parseNumber("usdcSize", it.USDCSize),
				TxHash:      tx,
				LogIndex:    domain.NoLogIndex,
				Timestamp:   ts,
			})

		default:
			slog.Debug("activity type ignored", "wallet", wallet, "type", it.Type, "tx", tx)
		}
	}
	return in
}

// mapMarketTokens convierte clobTokenIds de Gamma al mapeo token → (condición, outcome).
func mapMarketTokens(gm gammaMarket) ([]domain.TokenInfo, error) {
	ids, err := decodeStringArray(gm.ClobTokenIDs)
	if err != nil {
		return nil, fmt.Errorf("clobTokenIds: %w", err)
	}
	cond := domain.NormalizeHash(gm.ConditionID)
	infos := make([]domain.TokenInfo, 0, len(ids))
	for i, id := range ids {
		infos = append(infos, domain.TokenInfo{
			TokenID:      id,
			ConditionID:  cond,
			OutcomeIndex: i,
			OutcomeCount: len(ids),
		})
	}
	return infos, nil
}

// mapMarketResolution devuelve el vector de payouts de un mercado resuelto.
// Un mercado cerrado pero sin resolución UMA confirmada no se considera resuelto.
func mapMarketResolution(gm gammaMarket) ([]domain.ResolutionRecord, bool, error) {
	if !gm.Closed || !strings.EqualFold(gm.UMAResolutionStatus, "resolved") {
		return nil, false, nil
	}
	prices, err := decodeStringArray(gm.OutcomePrices)
	if err != nil {
		return nil, false, fmt.Errorf("outcomePrices: %w", err)
	}
	resolvedAt := parseTime(gm.ClosedTime)
	cond := domain.NormalizeHash(gm.ConditionID)

	recs := make([]domain.ResolutionRecord, 0, len(prices))
	for i, p := range prices {
		num, err := decimal.NewFromString(p)
		if err != nil {
			return nil, false, fmt.Errorf("outcomePrices[%d] %q: %w", i, p, err)
		}
		recs = append(recs, domain.ResolutionRecord{
			ConditionID:       cond,
			OutcomeIndex:      i,
			PayoutNumerator:   num,
			PayoutDenominator: decimal.NewFromInt(1),
			ResolvedAt:        resolvedAt,
		})
	}
	return recs, true, nil
}

func decodeStringArray(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseNumber(field string, n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		slog.Debug("unparseable number", "field", field, "value", n.String(), "err", err)
		return decimal.Zero
	}
	return d
}

func parseTimestamp(n json.Number) time.Time {
	s := n.String()
	// unix en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return parseTime(s)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02 15:04:05-07",
		"2006-01-02T15:04:05.000Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
