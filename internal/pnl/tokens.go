package pnl

import (
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// TokenIndex es el mapeo token → condición del run, de solo lectura.
type TokenIndex struct {
	byToken     map[string]domain.TokenInfo
	byCondition map[string][]domain.TokenInfo
}

// NewTokenIndex construye el índice. Un token mapeado a dos condiciones
// distintas se descarta y se reporta.
func NewTokenIndex(infos []domain.TokenInfo) (*TokenIndex, []domain.DataIntegrityError) {
	ix := &TokenIndex{
		byToken:     make(map[string]domain.TokenInfo, len(infos)),
		byCondition: make(map[string][]domain.TokenInfo),
	}
	var integrity []domain.DataIntegrityError
	conflicted := make(map[string]bool)

	for _, info := range infos {
		info.TokenID = strings.TrimSpace(info.TokenID)
		info.ConditionID = domain.NormalizeHash(info.ConditionID)
		if info.TokenID == "" || info.ConditionID == "" || info.OutcomeIndex < 0 {
			integrity = append(integrity, domain.DataIntegrityError{
				Record: domain.RecordToken, Ref: info.TokenID, Reason: "incomplete token mapping",
			})
			continue
		}
		if prev, ok := ix.byToken[info.TokenID]; ok {
			if prev.ConditionID != info.ConditionID || prev.OutcomeIndex != info.OutcomeIndex {
				conflicted[info.TokenID] = true
			}
			continue
		}
		ix.byToken[info.TokenID] = info
	}

	for _, id := range slices.Sorted(maps.Keys(conflicted)) {
		slog.Warn("token mapped to multiple outcomes", "token", id)
		integrity = append(integrity, domain.DataIntegrityError{
			Record: domain.RecordToken, Ref: id, Reason: "mapped to multiple outcomes",
		})
		delete(ix.byToken, id)
	}

	for _, info := range ix.byToken {
		ix.byCondition[info.ConditionID] = append(ix.byCondition[info.ConditionID], info)
	}
	return ix, integrity
}

// Lookup devuelve el mapeo de un token.
func (ix *TokenIndex) Lookup(tokenID string) (domain.TokenInfo, bool) {
	info, ok := ix.byToken[strings.TrimSpace(tokenID)]
	return info, ok
}

// Outcomes devuelve los tokens de la condición ordenados por outcome index.
// ok=false si falta algún outcome: un set incompleto no se puede atribuir.
func (ix *TokenIndex) Outcomes(conditionID string) ([]domain.TokenInfo, bool) {
	infos := ix.byCondition[domain.NormalizeHash(conditionID)]
	if len(infos) == 0 {
		return nil, false
	}
	size := len(infos)
	for _, info := range infos {
		if info.OutcomeCount > size {
			size = info.OutcomeCount
		}
	}
	out := make([]domain.TokenInfo, size)
	seen := make([]bool, size)
	for _, info := range infos {
		if info.OutcomeIndex >= size || seen[info.OutcomeIndex] {
			return nil, false
		}
		out[info.OutcomeIndex] = info
		seen[info.OutcomeIndex] = true
	}
	for _, s := range seen {
		if !s {
			return nil, false
		}
	}
	return out, true
}

// Len devuelve el número de tokens mapeados.
func (ix *TokenIndex) Len() int {
	return len(ix.byToken)
}
