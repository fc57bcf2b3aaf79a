package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

const defaultPrefix = "polypnl"

// Publisher publica en Redis el último summary de cada wallet y el set de
// wallets elegibles (sorted set por realized P&L) para consumidores aguas abajo.
// Implementa ports.SummarySink.
type Publisher struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

var _ ports.SummarySink = (*Publisher)(nil)

// NewPublisher crea un Publisher. ttl 0 = sin expiración.
func NewPublisher(rdb *redis.Client, ttl time.Duration, prefix string) *Publisher {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Publisher{rdb: rdb, ttl: ttl, prefix: prefix}
}

// Dial abre un cliente a partir de una URL redis://.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache.Dial: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache.Dial: ping: %w", err)
	}
	return rdb, nil
}

func (p *Publisher) summaryKey(wallet string) string { return p.prefix + ":summary:" + wallet }
func (p *Publisher) summariesKey() string            { return p.prefix + ":summaries" }
func (p *Publisher) eligibleKey() string             { return p.prefix + ":eligible" }
func (p *Publisher) lastRunKey() string              { return p.prefix + ":run:last" }
func (p *Publisher) runsChannel() string             { return p.prefix + ":runs" }

// ReplaceSummaries escribe los summaries del run en una transacción MULTI.
// El set <prefix>:summaries indexa las wallets con summary publicado. En un run
// completo el set de elegibles se reconstruye desde cero y se borran los
// summaries de wallets que ya no aparecen; en uno parcial solo se tocan las
// wallets del alcance.
func (p *Publisher) ReplaceSummaries(ctx context.Context, out domain.RunOutput) error {
	computed := make(map[string]struct{}, len(out.Summaries))
	for _, s := range out.Summaries {
		computed[s.Wallet] = struct{}{}
	}

	var stale []string
	if out.Full {
		published, err := p.rdb.SMembers(ctx, p.summariesKey()).Result()
		if err != nil {
			return fmt.Errorf("cache.ReplaceSummaries: list published: %w", err)
		}
		for _, w := range published {
			if _, ok := computed[w]; !ok {
				stale = append(stale, w)
			}
		}
	}
	for _, w := range out.Wallets {
		if _, ok := computed[w]; !ok {
			stale = append(stale, w)
		}
	}

	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if out.Full {
			pipe.Del(ctx, p.eligibleKey(), p.summariesKey())
		}
		for _, w := range stale {
			pipe.Del(ctx, p.summaryKey(w))
			pipe.ZRem(ctx, p.eligibleKey(), w)
			pipe.SRem(ctx, p.summariesKey(), w)
		}
		for _, s := range out.Summaries {
			data, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("encode %s: %w", s.Wallet, err)
			}
			pipe.Set(ctx, p.summaryKey(s.Wallet), data, p.ttl)
			pipe.SAdd(ctx, p.summariesKey(), s.Wallet)
			if s.Eligible {
				pipe.ZAdd(ctx, p.eligibleKey(), redis.Z{Score: s.RealizedPnL.InexactFloat64(), Member: s.Wallet})
			} else {
				pipe.ZRem(ctx, p.eligibleKey(), s.Wallet)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.ReplaceSummaries: %w", err)
	}
	return nil
}

// SaveDiagnostics guarda los diagnósticos del último run y avisa por pub/sub.
func (p *Publisher) SaveDiagnostics(ctx context.Context, diag domain.RunDiagnostics) error {
	data, err := json.Marshal(diag)
	if err != nil {
		return fmt.Errorf("cache.SaveDiagnostics: encode: %w", err)
	}
	if err := p.rdb.Set(ctx, p.lastRunKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("cache.SaveDiagnostics: set: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.runsChannel(), diag.RunID).Err(); err != nil {
		// sin suscriptores no es un error; un fallo de red sí, pero el dato ya está
		slog.Warn("run notification not published", "run_id", diag.RunID, "err", err)
	}
	return nil
}

// GetSummary devuelve el summary publicado de la wallet, o nil si no existe.
func (p *Publisher) GetSummary(ctx context.Context, wallet string) (*domain.WalletPnlSummary, error) {
	data, err := p.rdb.Get(ctx, p.summaryKey(domain.NormalizeHash(wallet))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache.GetSummary: %w", err)
	}
	var s domain.WalletPnlSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("cache.GetSummary: decode: %w", err)
	}
	return &s, nil
}

// TopEligible devuelve las n wallets elegibles con mayor realized P&L.
func (p *Publisher) TopEligible(ctx context.Context, n int64) ([]string, error) {
	wallets, err := p.rdb.ZRevRange(ctx, p.eligibleKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache.TopEligible: %w", err)
	}
	return wallets, nil
}
