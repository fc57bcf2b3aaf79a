package pnl

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// AttributionResult son los eventos sintéticos de los corporate actions de una wallet.
type AttributionResult struct {
	Events     []domain.LedgerEvent
	Attributed int
	Unmatched  int // tx sin trade de la wallet
	Unmappable int // condición sin mapeo completo
	Integrity  []domain.DataIntegrityError
}

// Attributor convierte splits y merges en compras y ventas sintéticas.
type Attributor struct {
	mode SplitCostMode
}

// NewAttributor crea un Attributor con el modo de coste indicado.
func NewAttributor(mode SplitCostMode) *Attributor {
	if mode == "" {
		mode = SplitCostUnit
	}
	return &Attributor{mode: mode}
}

// Attribute atribuye a la wallet solo los corporate actions cuyo tx hash
// aparece en sus trades normalizados. Cada split produce una compra por outcome
// y cada merge una venta por outcome, con cantidad = amount.
func (a *Attributor) Attribute(
	wallet string,
	trades []domain.TradeEvent,
	actions []domain.CorporateActionEvent,
	tokens *TokenIndex,
) AttributionResult {
	var res AttributionResult

	txs := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		txs[t.TxHash] = struct{}{}
	}

	for _, act := range actions {
		act.TxHash = domain.NormalizeHash(act.TxHash)
		if reason := validateAction(act); reason != "" {
			slog.Warn("corporate action excluded", "wallet", wallet, "ref", act.Ref(), "reason", reason)
			res.Integrity = append(res.Integrity, domain.DataIntegrityError{
				Record: domain.RecordCorporateAction, Ref: act.Ref(), Reason: reason,
			})
			continue
		}
		if _, ok := txs[act.TxHash]; !ok {
			res.Unmatched++
			continue
		}

		outcomes, ok := tokens.Outcomes(act.ConditionID)
		if !ok {
			slog.Warn("corporate action without token mapping",
				"wallet", wallet,
				"tx", act.TxHash,
				"condition_id", act.ConditionID,
			)
			res.Unmappable++
			continue
		}
		if act.OutcomeCount > 0 && act.OutcomeCount != len(outcomes) {
			res.Integrity = append(res.Integrity, domain.DataIntegrityError{
				Record: domain.RecordCorporateAction,
				Ref:    act.Ref(),
				Reason: fmt.Sprintf("outcome count %d, token map has %d", act.OutcomeCount, len(outcomes)),
			})
			continue
		}

		amount := act.TokenAmount()
		price := act.USDCAmount.Div(amount)
		if a.mode == SplitCostEqual {
			price = price.Div(decimal.NewFromInt(int64(len(outcomes))))
		}

		kind, origin := domain.LedgerBuy, domain.OriginSplit
		if act.Kind == domain.ActionMerge {
			kind, origin = domain.LedgerSell, domain.OriginMerge
		}
		for _, o := range outcomes {
			res.Events = append(res.Events, domain.LedgerEvent{
				Kind:      kind,
				Origin:    origin,
				TokenID:   o.TokenID,
				Quantity:  amount,
				Price:     price,
				TxHash:    act.TxHash,
				LogIndex:  act.LogIndex,
				Timestamp: act.Timestamp,
				Role:      domain.RoleUnknown,
			})
		}
		res.Attributed++
	}
	return res
}

func validateAction(act domain.CorporateActionEvent) string {
	switch {
	case act.TxHash == "":
		return "missing tx hash"
	case act.ConditionID == "":
		return "missing condition id"
	case act.Kind != domain.ActionSplit && act.Kind != domain.ActionMerge:
		return fmt.Sprintf("invalid kind %q", act.Kind)
	case act.USDCAmount.IsNegative():
		return "negative usdc amount"
	case !act.TokenAmount().IsPositive():
		return "non-positive amount"
	}
	return ""
}
