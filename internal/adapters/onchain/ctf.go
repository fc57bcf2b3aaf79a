package onchain

// ctf.go — decodificación de eventos del Conditional Token Framework (CTF).
//
// El CTF emite:
//   - ConditionResolution: vector de payouts al resolver una condición.
//     payoutDenominator = suma de numeradores (así lo calcula el contrato).
//   - PositionSplit / PositionsMerge: colateral ↔ set completo de outcomes.
//     amount está en unidades de colateral (USDC.e, 6 decimales) y coincide
//     con la cantidad de cada token del set.

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	// CTF contract en Polygon: guarda los tokens condicionales (ERC1155).
	CTFAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// USDC.e tiene 6 decimales.
	collateralDecimals = 6
)

var (
	ctfABI abi.ABI

	topicResolution common.Hash
	topicSplit      common.Hash
	topicMerge      common.Hash
)

func init() {
	var err error
	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "ConditionResolution",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "conditionId", "type": "bytes32", "indexed": true},
				{"name": "oracle", "type": "address", "indexed": true},
				{"name": "questionId", "type": "bytes32", "indexed": true},
				{"name": "outcomeSlotCount", "type": "uint256", "indexed": false},
				{"name": "payoutNumerators", "type": "uint256[]", "indexed": false}
			]
		},
		{
			"name": "PositionSplit",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "stakeholder", "type": "address", "indexed": true},
				{"name": "collateralToken", "type": "address", "indexed": false},
				{"name": "parentCollectionId", "type": "bytes32", "indexed": true},
				{"name": "conditionId", "type": "bytes32", "indexed": true},
				{"name": "partition", "type": "uint256[]", "indexed": false},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "PositionsMerge",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "stakeholder", "type": "address", "indexed": true},
				{"name": "collateralToken", "type": "address", "indexed": false},
				{"name": "parentCollectionId", "type": "bytes32", "indexed": true},
				{"name": "conditionId", "type": "bytes32", "indexed": true},
				{"name": "partition", "type": "uint256[]", "indexed": false},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}
	topicResolution = ctfABI.Events["ConditionResolution"].ID
	topicSplit = ctfABI.Events["PositionSplit"].ID
	topicMerge = ctfABI.Events["PositionsMerge"].ID
}

type resolutionData struct {
	OutcomeSlotCount *big.Int
	PayoutNumerators []*big.Int
}

type positionData struct {
	CollateralToken common.Address
	Partition       []*big.Int
	Amount          *big.Int
}

// DecodeResolution convierte un log ConditionResolution en un registro por outcome.
func DecodeResolution(lg types.Log, at time.Time) ([]domain.ResolutionRecord, error) {
	if len(lg.Topics) < 4 || lg.Topics[0] != topicResolution {
		return nil, fmt.Errorf("onchain.DecodeResolution: %s: not a ConditionResolution log", ref(lg))
	}
	var data resolutionData
	if err := ctfABI.UnpackIntoInterface(&data, "ConditionResolution", lg.Data); err != nil {
		return nil, fmt.Errorf("onchain.DecodeResolution: %s: unpack: %w", ref(lg), err)
	}

	cond := strings.ToLower(lg.Topics[1].Hex())
	den := new(big.Int)
	for _, n := range data.PayoutNumerators {
		den.Add(den, n)
	}
	// el contrato exige len(payouts) == outcomeSlotCount; si no cuadra, el
	// resolver marcará la condición como inválida por outcomes faltantes
	recs := make([]domain.ResolutionRecord, 0, len(data.PayoutNumerators))
	for i, n := range data.PayoutNumerators {
		recs = append(recs, domain.ResolutionRecord{
			ConditionID:       cond,
			OutcomeIndex:      i,
			PayoutNumerator:   decimal.NewFromBigInt(n, 0),
			PayoutDenominator: decimal.NewFromBigInt(den, 0),
			ResolvedAt:        at,
		})
	}
	return recs, nil
}

// DecodeAction convierte un log PositionSplit o PositionsMerge en un corporate action.
func DecodeAction(lg types.Log, at time.Time) (domain.CorporateActionEvent, error) {
	if len(lg.Topics) < 4 {
		return domain.CorporateActionEvent{}, fmt.Errorf("onchain.DecodeAction: %s: missing topics", ref(lg))
	}
	var kind domain.CorporateActionKind
	var event string
	switch lg.Topics[0] {
	case topicSplit:
		kind, event = domain.ActionSplit, "PositionSplit"
	case topicMerge:
		kind, event = domain.ActionMerge, "PositionsMerge"
	default:
		return domain.CorporateActionEvent{}, fmt.Errorf("onchain.DecodeAction: %s: unknown event %s", ref(lg), lg.Topics[0].Hex())
	}

	var data positionData
	if err := ctfABI.UnpackIntoInterface(&data, event, lg.Data); err != nil {
		return domain.CorporateActionEvent{}, fmt.Errorf("onchain.DecodeAction: %s: unpack: %w", ref(lg), err)
	}

	amount := decimal.NewFromBigInt(data.Amount, -collateralDecimals)
	return domain.CorporateActionEvent{
		TxHash:       strings.ToLower(lg.TxHash.Hex()),
		LogIndex:     int64(lg.Index),
		Kind:         kind,
		ConditionID:  strings.ToLower(lg.Topics[3].Hex()),
		USDCAmount:   amount,
		Amount:       amount,
		OutcomeCount: len(data.Partition),
		Stakeholder:  strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
		Timestamp:    at,
	}, nil
}

func ref(lg types.Log) string {
	return fmt.Sprintf("%s:%d", lg.TxHash.Hex(), lg.Index)
}
