// Package config defines all configuration for the cross-venue arbitrage
// scanner. Config is loaded from a YAML file (default: configs/config.yaml)
// with env overrides under the CROSSARB_ prefix; venue credentials come from
// their own dedicated environment variables and never live in the YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects what the process is allowed to do with detected opportunities.
type Mode string

const (
	ModeScan  Mode = "scan"  // detect and record only, never place orders
	ModePaper Mode = "paper" // simulate execution against virtual wallets
	ModeLive  Mode = "live"  // place real orders on both venues
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode Mode `mapstructure:"-"` // set from CLI flags, not the file

	VenueA    VenueAConfig    `mapstructure:"venue_a"`
	VenueB    VenueBConfig    `mapstructure:"venue_b"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Exec      ExecConfig      `mapstructure:"exec"`
	Paper     PaperConfig     `mapstructure:"paper"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// VenueAConfig covers the integer-cent CLOB reached over signed REST.
// APIKey and PrivateKeyPEM come from VENUE_A_KEY / VENUE_A_SECRET; the PEM may
// contain literal "\n" escapes (common when stored in a single env line).
type VenueAConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	APIPrefix     string  `mapstructure:"api_prefix"` // signed-path prefix, e.g. /trade-api/v2
	APIKey        string  `mapstructure:"-"`
	PrivateKeyPEM string  `mapstructure:"-"`
	ReadPerSec    float64 `mapstructure:"read_per_sec"`
	WritePerSec   float64 `mapstructure:"write_per_sec"`
}

// VenueBConfig covers the token CLOB: a Gamma-style discovery API plus the
// CLOB book/order API. Wallet credentials come from VENUE_B_* env variables.
// If the L2 API key triplet is absent it is derived from the wallet key at a
// fixed nonce on startup.
type VenueBConfig struct {
	GammaBaseURL  string `mapstructure:"gamma_base_url"`
	CLOBBaseURL   string `mapstructure:"clob_base_url"`
	ChainID       int    `mapstructure:"chain_id"`
	SignatureType int    `mapstructure:"signature_type"` // 2 = proxy (maker = funder)

	PrivateKey    string `mapstructure:"-"`
	FunderAddress string `mapstructure:"-"`
	APIKey        string `mapstructure:"-"`
	APISecret     string `mapstructure:"-"`
	APIPassphrase string `mapstructure:"-"`

	ReadPerSec  float64 `mapstructure:"read_per_sec"`
	WritePerSec float64 `mapstructure:"write_per_sec"`
}

// ScannerConfig times the two-speed loop and bounds the quote fan-out.
type ScannerConfig struct {
	MarketRefresh  time.Duration `mapstructure:"market_refresh"`
	PricePoll      time.Duration `mapstructure:"price_poll"`
	ScanWindow     time.Duration `mapstructure:"scan_window"`
	FetchWorkers   int           `mapstructure:"fetch_workers"`
	QuoteTimeout   time.Duration `mapstructure:"quote_timeout"`
	MinSpreadCents float64       `mapstructure:"min_spread_cents"`
}

// MatcherConfig tunes the cross-venue join.
type MatcherConfig struct {
	SportsTolerance time.Duration `mapstructure:"sports_tolerance"`
	CryptoTolerance time.Duration `mapstructure:"crypto_tolerance"`
	CryptoEnabled   bool          `mapstructure:"crypto_enabled"`
}

// ExecConfig bounds live and paper execution.
//
//   - MaxTradeUSD caps combined two-leg spend per execution.
//   - MaxUnitsPerMap caps units per single execution (thin-book guard).
//   - MaxUnitsPerMarket caps cumulative units per venue-A market per session.
//   - PolyMinOrderUSD is the venue-B per-leg minimum; below it the executor
//     walks the venue-B ladder to a blended price.
//   - CooldownCycles is how many price ticks a pair rests after any terminal
//     state (doubled after an unwind, 6x after an order conflict).
type ExecConfig struct {
	MaxTradeUSD       float64       `mapstructure:"max_trade_usd"`
	MaxUnitsPerMap    int           `mapstructure:"max_units_per_map"`
	MaxUnitsPerMarket int           `mapstructure:"max_units_per_market"`
	PolyMinOrderUSD   float64       `mapstructure:"poly_min_order_usd"`
	CooldownCycles    int           `mapstructure:"cooldown_cycles"`
	NoFillCooldown    int           `mapstructure:"no_fill_cooldown_cycles"`
	Leg1SettleDelay   time.Duration `mapstructure:"leg1_settle_delay"`
	UnwindDelay       time.Duration `mapstructure:"unwind_delay"`
	TakerFeeRate      float64       `mapstructure:"taker_fee_rate"` // venue-A fee, fraction of face value
}

// PaperConfig sizes the virtual wallets used in paper mode.
type PaperConfig struct {
	StartingCashUSD float64 `mapstructure:"starting_cash_usd"` // per venue
}

// VerifyConfig gates CS2 executions on a public match-schedule page.
type VerifyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SkipUnverified bool          `mapstructure:"skip_unverified"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	BaseURL        string        `mapstructure:"base_url"`
}

// StoreConfig sets where opportunities and trades are persisted.
type StoreConfig struct {
	DBPath     string `mapstructure:"db_path"`
	NDJSONPath string `mapstructure:"ndjson_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only web dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Credentials use dedicated env vars: VENUE_A_KEY, VENUE_A_SECRET,
// VENUE_B_PRIV_KEY, VENUE_B_API_KEY, VENUE_B_API_SECRET,
// VENUE_B_API_PASSPHRASE, VENUE_B_FUNDER.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CROSSARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.VenueA.APIKey = os.Getenv("VENUE_A_KEY")
	// PEM secrets pasted into env files often carry literal \n escapes.
	cfg.VenueA.PrivateKeyPEM = strings.ReplaceAll(os.Getenv("VENUE_A_SECRET"), `\n`, "\n")
	cfg.VenueB.PrivateKey = os.Getenv("VENUE_B_PRIV_KEY")
	cfg.VenueB.FunderAddress = os.Getenv("VENUE_B_FUNDER")
	cfg.VenueB.APIKey = os.Getenv("VENUE_B_API_KEY")
	cfg.VenueB.APISecret = os.Getenv("VENUE_B_API_SECRET")
	cfg.VenueB.APIPassphrase = os.Getenv("VENUE_B_API_PASSPHRASE")

	cfg.Mode = ModeScan
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("venue_a.api_prefix", "/trade-api/v2")
	v.SetDefault("venue_a.read_per_sec", 15.0)
	v.SetDefault("venue_a.write_per_sec", 5.0)

	v.SetDefault("venue_b.chain_id", 137)
	v.SetDefault("venue_b.signature_type", 2)
	v.SetDefault("venue_b.read_per_sec", 20.0)
	v.SetDefault("venue_b.write_per_sec", 4.0)

	v.SetDefault("scanner.market_refresh", 2*time.Hour)
	v.SetDefault("scanner.price_poll", 2*time.Second)
	v.SetDefault("scanner.scan_window", 72*time.Hour)
	v.SetDefault("scanner.fetch_workers", 20)
	v.SetDefault("scanner.quote_timeout", 2*time.Second)
	v.SetDefault("scanner.min_spread_cents", 3.3)

	v.SetDefault("matcher.sports_tolerance", 4*time.Hour)
	v.SetDefault("matcher.crypto_tolerance", time.Hour)
	v.SetDefault("matcher.crypto_enabled", false)

	v.SetDefault("exec.max_trade_usd", 5.0)
	v.SetDefault("exec.max_units_per_map", 200)
	v.SetDefault("exec.max_units_per_market", 400)
	v.SetDefault("exec.poly_min_order_usd", 1.0)
	v.SetDefault("exec.cooldown_cycles", 10)
	v.SetDefault("exec.no_fill_cooldown_cycles", 15)
	v.SetDefault("exec.leg1_settle_delay", 500*time.Millisecond)
	v.SetDefault("exec.unwind_delay", 2*time.Second)
	v.SetDefault("exec.taker_fee_rate", 0.0175)

	v.SetDefault("paper.starting_cash_usd", 10000.0)

	v.SetDefault("verify.enabled", false)
	v.SetDefault("verify.skip_unverified", true)
	v.SetDefault("verify.cache_ttl", 30*time.Minute)
	v.SetDefault("verify.base_url", "https://liquipedia.net")

	v.SetDefault("store.db_path", "crossarb.db")
	v.SetDefault("store.ndjson_path", "opportunities.ndjson")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8080)
}

// HasVenueACredentials reports whether signed venue-A requests are possible.
func (c *Config) HasVenueACredentials() bool {
	return c.VenueA.APIKey != "" && c.VenueA.PrivateKeyPEM != ""
}

// HasVenueBCredentials reports whether venue-B order signing is possible.
// The L2 triplet is optional (derivable), the wallet key is not.
func (c *Config) HasVenueBCredentials() bool {
	return c.VenueB.PrivateKey != ""
}

// Validate checks required fields and value ranges. Credential checks depend
// on mode: scan-only runs without any credentials.
func (c *Config) Validate() error {
	if c.VenueA.BaseURL == "" {
		return fmt.Errorf("venue_a.base_url is required")
	}
	if c.VenueB.GammaBaseURL == "" {
		return fmt.Errorf("venue_b.gamma_base_url is required")
	}
	if c.VenueB.CLOBBaseURL == "" {
		return fmt.Errorf("venue_b.clob_base_url is required")
	}
	if c.Scanner.PricePoll <= 0 {
		return fmt.Errorf("scanner.price_poll must be > 0")
	}
	if c.Scanner.MarketRefresh <= 0 {
		return fmt.Errorf("scanner.market_refresh must be > 0")
	}
	if c.Scanner.FetchWorkers < 1 {
		return fmt.Errorf("scanner.fetch_workers must be >= 1")
	}
	if c.Scanner.MinSpreadCents <= 0 {
		return fmt.Errorf("scanner.min_spread_cents must be > 0")
	}
	if c.Exec.MaxTradeUSD <= 0 {
		return fmt.Errorf("exec.max_trade_usd must be > 0")
	}
	if c.Exec.PolyMinOrderUSD <= 0 {
		return fmt.Errorf("exec.poly_min_order_usd must be > 0")
	}
	if c.Exec.CooldownCycles < 1 {
		return fmt.Errorf("exec.cooldown_cycles must be >= 1")
	}
	switch c.VenueB.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("venue_b.signature_type must be one of: 0 (EOA), 1 (proxy), 2 (gnosis safe proxy)")
	}
	if c.Mode == ModeLive {
		if !c.HasVenueACredentials() {
			return fmt.Errorf("live mode requires VENUE_A_KEY and VENUE_A_SECRET")
		}
		if !c.HasVenueBCredentials() {
			return fmt.Errorf("live mode requires VENUE_B_PRIV_KEY")
		}
		if c.VenueB.SignatureType != 0 && c.VenueB.FunderAddress == "" {
			return fmt.Errorf("live mode with proxy signing requires VENUE_B_FUNDER")
		}
	}
	return nil
}
