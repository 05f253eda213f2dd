// Package config loads the ledger configuration from an HJSON file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hjson/hjson-go/v4"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"time-ledger/internal/fixedpoint"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Height sources.
const (
	HeightManual = "manual"
	HeightClock  = "clock"
	HeightSolana = "solana"
)

// Config is the full runtime configuration.
type Config struct {
	Listen      string `json:"listen"`
	MetricsAddr string `json:"metrics_addr"`

	Log      LogConfig      `json:"log"`
	Storage  StorageConfig  `json:"storage"`
	Height   HeightConfig   `json:"height"`
	Exchange ExchangeConfig `json:"exchange"`
	Staking  StakingConfig  `json:"staking"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text or json
	File   string `json:"file"`
}

// StorageConfig selects where state and events are persisted.
type StorageConfig struct {
	Backend       string `json:"backend"`
	PostgresDSN   string `json:"postgres_dsn"`
	ClickhouseDSN string `json:"clickhouse_dsn"` // optional event analytics sink
}

// HeightConfig selects the source of ledger heights.
type HeightConfig struct {
	Source      string   `json:"source"`
	Start       uint64   `json:"start"`
	Interval    Duration `json:"interval"`
	RPCEndpoint string   `json:"rpc_endpoint"`
	WSEndpoint  string   `json:"ws_endpoint"`
	// IdleTimeout is how long the slot stream may be silent before heights
	// are read over RPC. Zero uses the watcher default.
	IdleTimeout Duration `json:"idle_timeout"`
}

// ExchangeConfig holds the exchange constants. Amounts are whole units.
type ExchangeConfig struct {
	FeeRecipient    string              `json:"fee_recipient"`
	BaseFee         decimal.Decimal     `json:"base_fee"`
	TokenBaseFee    decimal.Decimal     `json:"token_base_fee"`
	BaseLiquidity   decimal.Decimal     `json:"base_liquidity"`
	DeveloperFee    fixedpoint.Fraction `json:"developer_fee"`
	DividendFee     fixedpoint.Fraction `json:"dividend_fee"`
	EnrollmentShare fixedpoint.Fraction `json:"enrollment_share"`
	DonationShare   fixedpoint.Fraction `json:"donation_share"`
}

// StakingConfig holds the staking ledger constants.
type StakingConfig struct {
	OneYear                   uint64              `json:"one_year"`
	DepositFee                fixedpoint.Fraction `json:"deposit_fee"`
	Commission                fixedpoint.Fraction `json:"commission"`
	DepositBurnShare          fixedpoint.Fraction `json:"deposit_burn_share"`
	AnticipationTokenShare    fixedpoint.Fraction `json:"anticipation_token_share"`
	AnticipationFeeMultiplier uint64              `json:"anticipation_fee_multiplier"`
}

// Duration decodes "15s" style strings.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a quoted Go duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Duration.String() + `"`), nil
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Listen:      ":8080",
		MetricsAddr: ":9090",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{Backend: BackendMemory},
		Height: HeightConfig{
			Source:   HeightClock,
			Start:    1,
			Interval: Duration{15 * time.Second},
		},
		Exchange: ExchangeConfig{
			BaseFee:         decimal.RequireFromString("0.01"),
			TokenBaseFee:    decimal.NewFromInt(1),
			BaseLiquidity:   decimal.NewFromInt(900_000),
			DeveloperFee:    fixedpoint.NewFraction(1, 100),
			DividendFee:     fixedpoint.NewFraction(1, 100),
			EnrollmentShare: fixedpoint.NewFraction(1, 2),
			DonationShare:   fixedpoint.NewFraction(1, 2),
		},
		Staking: StakingConfig{
			OneYear:                   2_102_400,
			DepositFee:                fixedpoint.NewFraction(1, 50),
			Commission:                fixedpoint.NewFraction(1, 240),
			DepositBurnShare:          fixedpoint.NewFraction(1, 2),
			AnticipationTokenShare:    fixedpoint.NewFraction(1, 2),
			AnticipationFeeMultiplier: 2,
		},
	}
}

// Load reads .env (if present), then the HJSON file at path (if not empty),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes HJSON into cfg, keeping fields the document omits.
func Parse(data []byte, cfg *Config) error {
	if err := hjson.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// applyEnv overrides endpoints, DSNs and logging from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	overrides := map[string]*string{
		"TIME_LEDGER_LISTEN":        &c.Listen,
		"TIME_LEDGER_METRICS_ADDR":  &c.MetricsAddr,
		"TIME_LEDGER_LOG_LEVEL":     &c.Log.Level,
		"TIME_LEDGER_LOG_FILE":      &c.Log.File,
		"TIME_LEDGER_STORAGE":       &c.Storage.Backend,
		"POSTGRES_DSN":              &c.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":            &c.Storage.ClickhouseDSN,
		"TIME_LEDGER_HEIGHT_SOURCE": &c.Height.Source,
		"SOLANA_RPC_ENDPOINT":       &c.Height.RPCEndpoint,
		"SOLANA_WS_ENDPOINT":        &c.Height.WSEndpoint,
		"TIME_LEDGER_FEE_RECIPIENT": &c.Exchange.FeeRecipient,
	}
	for key, field := range overrides {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*field = v
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			add("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		add("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Height.Source {
	case HeightManual:
	case HeightClock:
		if c.Height.Interval.Duration <= 0 {
			add("height.interval must be positive")
		}
	case HeightSolana:
		if c.Height.RPCEndpoint == "" {
			add("height.rpc_endpoint is required for the solana height source")
		}
		if c.Height.IdleTimeout.Duration < 0 {
			add("height.idle_timeout must not be negative")
		}
	default:
		add("unknown height.source %q", c.Height.Source)
	}

	for name, d := range map[string]decimal.Decimal{
		"exchange.base_fee":       c.Exchange.BaseFee,
		"exchange.token_base_fee": c.Exchange.TokenBaseFee,
		"exchange.base_liquidity": c.Exchange.BaseLiquidity,
	} {
		if !d.IsPositive() {
			add("%s must be positive", name)
		}
	}

	for name, f := range map[string]fixedpoint.Fraction{
		"exchange.developer_fee":           c.Exchange.DeveloperFee,
		"exchange.dividend_fee":            c.Exchange.DividendFee,
		"exchange.enrollment_share":        c.Exchange.EnrollmentShare,
		"exchange.donation_share":          c.Exchange.DonationShare,
		"staking.deposit_fee":              c.Staking.DepositFee,
		"staking.commission":               c.Staking.Commission,
		"staking.deposit_burn_share":       c.Staking.DepositBurnShare,
		"staking.anticipation_token_share": c.Staking.AnticipationTokenShare,
	} {
		if err := f.Validate(); err != nil {
			add("%s: %v", name, err)
		}
	}

	if c.Staking.OneYear == 0 {
		add("staking.one_year must be positive")
	}
	if c.Staking.AnticipationFeeMultiplier == 0 {
		add("staking.anticipation_fee_multiplier must be positive")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
