package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const defaultBlockRange = uint64(10_000)

// chainReader es el subconjunto de ethclient.Client que usa el feed.
type chainReader interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// FeedConfig define el rango de bloques a escanear.
type FeedConfig struct {
	Contract   string // por defecto CTFAddress
	FromBlock  uint64
	ToBlock    uint64 // 0 = último bloque
	BlockRange uint64 // bloques por llamada a eth_getLogs
}

// Feed lee resoluciones y corporate actions del CTF vía RPC.
// Implementa ports.ResolutionFeed.
type Feed struct {
	client chainReader
	cfg    FeedConfig

	mu     sync.Mutex
	blockT map[uint64]time.Time
}

// Dial conecta al RPC dado y crea el feed.
func Dial(ctx context.Context, rpcURL string, cfg FeedConfig) (*Feed, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: %s: %w", rpcURL, err)
	}
	return NewFeed(client, cfg), nil
}

// NewFeed crea un feed sobre un cliente ya conectado.
func NewFeed(client chainReader, cfg FeedConfig) *Feed {
	if cfg.Contract == "" {
		cfg.Contract = CTFAddress
	}
	if cfg.BlockRange == 0 {
		cfg.BlockRange = defaultBlockRange
	}
	return &Feed{client: client, cfg: cfg, blockT: make(map[uint64]time.Time)}
}

// LoadResolutions escanea los logs ConditionResolution del rango configurado.
// Un log que no decodifica se descarta con warning: el resto de condiciones
// sigue siendo utilizable.
func (f *Feed) LoadResolutions(ctx context.Context) ([]domain.ResolutionRecord, error) {
	var recs []domain.ResolutionRecord
	err := f.scan(ctx, []common.Hash{topicResolution}, nil, func(lg types.Log, at time.Time) {
		r, err := DecodeResolution(lg, at)
		if err != nil {
			slog.Warn("resolution log skipped", "err", err)
			return
		}
		recs = append(recs, r...)
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.LoadResolutions: %w", err)
	}
	return recs, nil
}

// LoadActions escanea splits y merges del rango. Si se dan stakeholders, solo
// se piden los de esas direcciones.
func (f *Feed) LoadActions(ctx context.Context, stakeholders []string) ([]domain.CorporateActionEvent, error) {
	var filter []common.Hash
	for _, s := range stakeholders {
		filter = append(filter, common.BytesToHash(common.HexToAddress(s).Bytes()))
	}

	var actions []domain.CorporateActionEvent
	err := f.scan(ctx, []common.Hash{topicSplit, topicMerge}, filter, func(lg types.Log, at time.Time) {
		a, err := DecodeAction(lg, at)
		if err != nil {
			slog.Warn("corporate action log skipped", "err", err)
			return
		}
		actions = append(actions, a)
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.LoadActions: %w", err)
	}
	return actions, nil
}

// scan recorre el rango en tramos de BlockRange bloques.
func (f *Feed) scan(ctx context.Context, events []common.Hash, topic1 []common.Hash, fn func(types.Log, time.Time)) error {
	to := f.cfg.ToBlock
	if to == 0 {
		latest, err := f.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("block number: %w", err)
		}
		to = latest
	}

	topics := [][]common.Hash{events}
	if len(topic1) > 0 {
		topics = append(topics, topic1)
	}
	contract := common.HexToAddress(f.cfg.Contract)

	total := 0
	for from := f.cfg.FromBlock; from <= to; from += f.cfg.BlockRange {
		end := min(from+f.cfg.BlockRange-1, to)
		logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{contract},
			Topics:    topics,
		})
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", from, end, err)
		}
		for _, lg := range logs {
			if lg.Removed {
				continue
			}
			at, err := f.blockTime(ctx, lg.BlockNumber)
			if err != nil {
				return err
			}
			fn(lg, at)
		}
		total += len(logs)
	}

	slog.Debug("chain scan complete",
		"from", f.cfg.FromBlock,
		"to", to,
		"logs", total,
	)
	return nil
}

// blockTime devuelve el timestamp del bloque, cacheado.
func (f *Feed) blockTime(ctx context.Context, n uint64) (time.Time, error) {
	f.mu.Lock()
	t, ok := f.blockT[n]
	f.mu.Unlock()
	if ok {
		return t, nil
	}

	h, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", n, err)
	}
	t = time.Unix(int64(h.Time), 0).UTC()

	f.mu.Lock()
	f.blockT[n] = t
	f.mu.Unlock()
	return t, nil
}
