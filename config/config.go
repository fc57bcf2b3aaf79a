package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pnl"
)

// Fuentes de entrada soportadas.
const (
	SourceSQLite     = "sqlite"
	SourceClickHouse = "clickhouse"
	SourceAPI        = "api"
	SourceChain      = "chain"
)

// Config es la configuración completa del motor de P&L.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Sources     SourcesConfig     `yaml:"sources"`
	Storage     StorageConfig     `yaml:"storage"`
	Cache       CacheConfig       `yaml:"cache"`
	API         APIConfig         `yaml:"api"`
	Chain       ChainConfig       `yaml:"chain"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// EngineConfig controla el cálculo y el batch.
type EngineConfig struct {
	Scale                  int32    `yaml:"scale"`
	Valuation              string   `yaml:"valuation"`             // settlement | total
	MaxEventsPerWallet     *int     `yaml:"max_events_per_wallet"` // 0 = sin límite
	Workers                int      `yaml:"workers"`               // 0 = NumCPU
	TiePolicy              string   `yaml:"tie_policy"`            // exclude | precedence
	SourcePrecedence       []string `yaml:"source_precedence"`
	SplitCost              string   `yaml:"split_cost"` // unit | equal
	AllowFractionalPayouts bool     `yaml:"allow_fractional_payouts"`
	IntervalSeconds        int      `yaml:"interval_seconds"`
}

// EligibilityConfig contiene los umbrales de elegibilidad. Los ratios se leen
// como decimal exacto; un campo ausente toma el default y un 0 explícito se
// respeta.
type EligibilityConfig struct {
	MaxExternalSellsRatio   *decimal.Decimal `yaml:"max_external_sells_ratio"`
	MaxOpenExposureRatio    *decimal.Decimal `yaml:"max_open_exposure_ratio"`
	MaxTakerRatio           *decimal.Decimal `yaml:"max_taker_ratio"`
	MinTradeCount           *int             `yaml:"min_trade_count"`
	RequirePositiveRealized *bool            `yaml:"require_positive_realized"`
	MaxAmbiguousRatio       decimal.Decimal  `yaml:"max_ambiguous_ratio"` // 0 = desactivado
}

// SourcesConfig elige de dónde salen trades y resoluciones.
type SourcesConfig struct {
	Trades      string   `yaml:"trades"`      // sqlite | clickhouse | api
	Resolutions string   `yaml:"resolutions"` // sqlite | clickhouse | chain | api
	Wallets     []string `yaml:"wallets"`     // universo para la fuente api
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN           string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// CacheConfig controla la publicación en Redis. Vacío = desactivado.
type CacheConfig struct {
	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	Prefix     string `yaml:"prefix"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	DataBase  string `yaml:"data_base"`
	GammaBase string `yaml:"gamma_base"`
}

// ChainConfig controla el feed on-chain del CTF.
type ChainConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	Contract    string `yaml:"contract"`
	FromBlock   uint64 `yaml:"from_block"`
	ToBlock     uint64 `yaml:"to_block"` // 0 = último bloque
	BlockRange  uint64 `yaml:"block_range"`
	SyncActions bool   `yaml:"sync_actions"` // importar splits/merges a SQLite antes del run
}

// MetricsConfig controla el endpoint de Prometheus. Vacío = desactivado.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Interval devuelve el intervalo del loop como time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Engine.IntervalSeconds) * time.Second
}

// CacheTTL devuelve el TTL de las claves de Redis.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Validate comprueba los valores enumerados, los rangos y las dependencias entre
// secciones. Espera una Config ya pasada por Load (defaults aplicados).
func (c *Config) Validate() error {
	switch pnl.ValuationMode(c.Engine.Valuation) {
	case pnl.ValuationSettlement, pnl.ValuationTotal:
	default:
		return fmt.Errorf("engine.valuation: unknown mode %q", c.Engine.Valuation)
	}
	switch pnl.TiePolicy(c.Engine.TiePolicy) {
	case pnl.TieExclude, pnl.TiePrecedence:
	default:
		return fmt.Errorf("engine.tie_policy: unknown policy %q", c.Engine.TiePolicy)
	}
	switch pnl.SplitCostMode(c.Engine.SplitCost) {
	case pnl.SplitCostUnit, pnl.SplitCostEqual:
	default:
		return fmt.Errorf("engine.split_cost: unknown mode %q", c.Engine.SplitCost)
	}
	if *c.Engine.MaxEventsPerWallet < 0 {
		return fmt.Errorf("engine.max_events_per_wallet: must be >= 0, got %d", *c.Engine.MaxEventsPerWallet)
	}
	e := c.Eligibility
	for name, v := range map[string]decimal.Decimal{
		"max_external_sells_ratio": *e.MaxExternalSellsRatio,
		"max_open_exposure_ratio":  *e.MaxOpenExposureRatio,
		"max_taker_ratio":          *e.MaxTakerRatio,
		"max_ambiguous_ratio":      e.MaxAmbiguousRatio,
	} {
		if v.IsNegative() {
			return fmt.Errorf("eligibility.%s: must be >= 0, got %s", name, v)
		}
	}
	if *e.MinTradeCount < 0 {
		return fmt.Errorf("eligibility.min_trade_count: must be >= 0, got %d", *e.MinTradeCount)
	}
	for _, s := range c.Engine.SourcePrecedence {
		switch domain.SourceKind(s) {
		case domain.SourceCLOB, domain.SourceWarehouse, domain.SourceDataAPI, domain.SourceInferred:
		default:
			return fmt.Errorf("engine.source_precedence: unknown source %q", s)
		}
	}

	switch c.Sources.Trades {
	case SourceSQLite, SourceAPI:
	case SourceClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("sources.trades: clickhouse requires storage.clickhouse_dsn")
		}
	default:
		return fmt.Errorf("sources.trades: unknown source %q", c.Sources.Trades)
	}
	switch c.Sources.Resolutions {
	case SourceSQLite, SourceAPI:
	case SourceClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("sources.resolutions: clickhouse requires storage.clickhouse_dsn")
		}
	case SourceChain:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("sources.resolutions: chain requires chain.rpc_url")
		}
	default:
		return fmt.Errorf("sources.resolutions: unknown source %q", c.Sources.Resolutions)
	}
	if c.Chain.SyncActions && c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.sync_actions requires chain.rpc_url")
	}
	return nil
}

// PnL traduce la configuración al Config del motor.
func (c *Config) PnL() pnl.Config {
	out := pnl.DefaultConfig()
	out.Scale = c.Engine.Scale
	out.Valuation = pnl.ValuationMode(c.Engine.Valuation)
	out.MaxEventsPerWallet = *c.Engine.MaxEventsPerWallet
	out.Workers = c.Engine.Workers
	out.TiePolicy = pnl.TiePolicy(c.Engine.TiePolicy)
	out.SplitCost = pnl.SplitCostMode(c.Engine.SplitCost)
	out.AllowFractionalPayouts = c.Engine.AllowFractionalPayouts
	out.Interval = c.Interval()
	if len(c.Engine.SourcePrecedence) > 0 {
		out.SourcePrecedence = make([]domain.SourceKind, len(c.Engine.SourcePrecedence))
		for i, s := range c.Engine.SourcePrecedence {
			out.SourcePrecedence[i] = domain.SourceKind(s)
		}
	}

	e := c.Eligibility
	out.Eligibility = pnl.EligibilityConfig{
		MaxExternalSellsRatio:   *e.MaxExternalSellsRatio,
		MaxOpenExposureRatio:    *e.MaxOpenExposureRatio,
		MaxTakerRatio:           *e.MaxTakerRatio,
		MinTradeCount:           *e.MinTradeCount,
		RequirePositiveRealized: *e.RequirePositiveRealized,
		MaxAmbiguousRatio:       e.MaxAmbiguousRatio,
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PNL_SQLITE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("PNL_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("PNL_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("PNL_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("PNL_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	def := pnl.DefaultConfig()

	if cfg.Engine.Scale <= 0 {
		cfg.Engine.Scale = def.Scale
	}
	if cfg.Engine.Valuation == "" {
		cfg.Engine.Valuation = string(def.Valuation)
	}
	if cfg.Engine.MaxEventsPerWallet == nil {
		v := def.MaxEventsPerWallet
		cfg.Engine.MaxEventsPerWallet = &v
	}
	if cfg.Engine.TiePolicy == "" {
		cfg.Engine.TiePolicy = string(def.TiePolicy)
	}
	if cfg.Engine.SplitCost == "" {
		cfg.Engine.SplitCost = string(def.SplitCost)
	}
	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = int(def.Interval / time.Second)
	}
	for i, s := range cfg.Engine.SourcePrecedence {
		cfg.Engine.SourcePrecedence[i] = strings.ToLower(strings.TrimSpace(s))
	}

	elig := def.Eligibility
	if cfg.Eligibility.MaxExternalSellsRatio == nil {
		cfg.Eligibility.MaxExternalSellsRatio = &elig.MaxExternalSellsRatio
	}
	if cfg.Eligibility.MaxOpenExposureRatio == nil {
		cfg.Eligibility.MaxOpenExposureRatio = &elig.MaxOpenExposureRatio
	}
	if cfg.Eligibility.MaxTakerRatio == nil {
		cfg.Eligibility.MaxTakerRatio = &elig.MaxTakerRatio
	}
	if cfg.Eligibility.MinTradeCount == nil {
		cfg.Eligibility.MinTradeCount = &elig.MinTradeCount
	}
	if cfg.Eligibility.RequirePositiveRealized == nil {
		v := elig.RequirePositiveRealized
		cfg.Eligibility.RequirePositiveRealized = &v
	}

	if cfg.Sources.Trades == "" {
		cfg.Sources.Trades = SourceSQLite
	}
	if cfg.Sources.Resolutions == "" {
		cfg.Sources.Resolutions = SourceSQLite
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polypnl.db"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 24 * 60 * 60
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "polypnl"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Chain.BlockRange == 0 {
		cfg.Chain.BlockRange = 10_000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
