package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"lagarb/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderWebSocket = "websocket"
	ProviderREST      = "rest"
	ProviderSimulated = "simulated"

	ModeLive  = "live"
	ModePaper = "paper"
)

// VenueConfig describes one price source.
type VenueConfig struct {
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider"` // websocket, rest, simulated
	WSURL      string `yaml:"ws_url"`
	RestURL    string `yaml:"rest_url"`
	AssetID    string `yaml:"asset_id"`
	Channel    string `yaml:"channel"`
	PriceField string `yaml:"price_field"`
	APIKey     string `yaml:"api_key"`

	PollIntervalMS int `yaml:"poll_interval_ms"` // rest

	SimStartPrice float64 `yaml:"sim_start_price"` // simulated
	SimStep       float64 `yaml:"sim_step"`
	SimIntervalMS int     `yaml:"sim_interval_ms"`
}

// Config holds every setting of the engine.
// Credentials may be overridden from the environment after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Venues struct {
		Tracked   VenueConfig `yaml:"tracked"`
		Reference VenueConfig `yaml:"reference"`
	} `yaml:"venues"`

	Feed struct {
		ReconnectBackoffMS  int `yaml:"reconnect_backoff_ms"`
		HandshakeTimeoutSec int `yaml:"handshake_timeout_sec"`
		ReadTimeoutSec      int `yaml:"read_timeout_sec"`
	} `yaml:"feed"`

	Execution struct {
		Mode                string  `yaml:"mode"` // live, paper
		RestURL             string  `yaml:"rest_url"`
		OrderPath           string  `yaml:"order_path"`
		APIKey              string  `yaml:"api_key"`
		APISecret           string  `yaml:"api_secret"`
		APIPassphrase       string  `yaml:"api_passphrase"`
		TimeoutMS           int     `yaml:"timeout_ms"`
		LatencyBudgetMS     *int    `yaml:"latency_budget_ms"` // nil defaults to 100; 0 disables the check
		MaxIdleConnsPerHost int     `yaml:"max_idle_conns_per_host"`
		PaperLatencyMS      *int    `yaml:"paper_latency_ms"`  // nil defaults to 45
		FeeBps              float64 `yaml:"fee_bps"`
	} `yaml:"execution"`

	Strategy struct {
		LagThreshold     float64 `yaml:"lag_threshold"`
		MaxTradeFraction float64 `yaml:"max_trade_fraction"`
		LossCapFraction  float64 `yaml:"loss_cap_fraction"`
		InitialCapital   float64 `yaml:"initial_capital"`
		PollIntervalMS   int     `yaml:"poll_interval_ms"` // 0 yields between polls
		CooldownMS       int     `yaml:"cooldown_ms"`
		WarmupMS         int     `yaml:"warmup_ms"`
		SignalBuffer     int     `yaml:"signal_buffer"`
	} `yaml:"strategy"`

	Storage struct {
		JournalPath string `yaml:"journal_path"` // empty disables the journal
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr"` // empty disables publishing
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Ops struct {
		ListenAddr string `yaml:"listen_addr"` // empty disables the ops server
		DumpPath   string `yaml:"dump_path"`
	} `yaml:"ops"`

	Logging struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"logging"`
}

// LoadConfig reads the YAML file, applies defaults and environment overrides, then validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	// A missing .env is normal outside development.
	_ = godotenv.Load()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "lagarb"
	}
	if c.Venues.Tracked.Name == "" {
		c.Venues.Tracked.Name = "tracked"
	}
	if c.Venues.Reference.Name == "" {
		c.Venues.Reference.Name = "reference"
	}
	for _, v := range []*VenueConfig{&c.Venues.Tracked, &c.Venues.Reference} {
		if v.Provider == "" {
			v.Provider = ProviderWebSocket
		}
		if v.Channel == "" {
			v.Channel = "market"
		}
		if v.PriceField == "" {
			v.PriceField = "price"
		}
		if v.PollIntervalMS == 0 {
			v.PollIntervalMS = 1000
		}
		if v.SimStartPrice == 0 {
			v.SimStartPrice = 60000
		}
		if v.SimStep == 0 {
			v.SimStep = 100
		}
		if v.SimIntervalMS == 0 {
			v.SimIntervalMS = 100
		}
	}

	if c.Feed.ReconnectBackoffMS == 0 {
		c.Feed.ReconnectBackoffMS = 1000
	}
	if c.Feed.HandshakeTimeoutSec == 0 {
		c.Feed.HandshakeTimeoutSec = 10
	}
	if c.Feed.ReadTimeoutSec == 0 {
		c.Feed.ReadTimeoutSec = 60
	}

	if c.Execution.Mode == "" {
		c.Execution.Mode = ModeLive
	}
	if c.Execution.OrderPath == "" {
		c.Execution.OrderPath = "/order"
	}
	if c.Execution.TimeoutMS == 0 {
		c.Execution.TimeoutMS = 500
	}
	if c.Execution.LatencyBudgetMS == nil {
		c.Execution.LatencyBudgetMS = intPtr(100)
	}
	if c.Execution.MaxIdleConnsPerHost == 0 {
		c.Execution.MaxIdleConnsPerHost = 100
	}
	if c.Execution.PaperLatencyMS == nil {
		c.Execution.PaperLatencyMS = intPtr(45)
	}

	if c.Strategy.CooldownMS == 0 {
		c.Strategy.CooldownMS = 500
	}
	if c.Strategy.WarmupMS == 0 {
		c.Strategy.WarmupMS = 10
	}
	if c.Strategy.SignalBuffer == 0 {
		c.Strategy.SignalBuffer = 100
	}

	if c.Redis.Channel == "" {
		c.Redis.Channel = "lagarb:trades"
	}
	if c.Ops.DumpPath == "" {
		c.Ops.DumpPath = "panic_dump.json"
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Logging.File == "" {
		c.Logging.File = "app.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	for _, v := range []VenueConfig{c.Venues.Tracked, c.Venues.Reference} {
		if err := v.validate(); err != nil {
			return err
		}
	}
	if c.Venues.Tracked.Provider == ProviderSimulated {
		return &domain.ConfigError{Field: "venues.tracked.provider", Err: errors.New("tracked venue cannot be simulated")}
	}

	switch c.Execution.Mode {
	case ModeLive:
		if !hasPrefix(c.Execution.RestURL, "http://") && !hasPrefix(c.Execution.RestURL, "https://") {
			return &domain.ConfigError{Field: "execution.rest_url", Err: fmt.Errorf("invalid URL %q", c.Execution.RestURL)}
		}
	case ModePaper:
	default:
		return &domain.ConfigError{Field: "execution.mode", Err: fmt.Errorf("unknown mode %q", c.Execution.Mode)}
	}
	if c.Execution.TimeoutMS < 0 || derefInt(c.Execution.LatencyBudgetMS) < 0 ||
		derefInt(c.Execution.PaperLatencyMS) < 0 || c.Execution.FeeBps < 0 {
		return &domain.ConfigError{Field: "execution", Err: errors.New("timeouts and fees must not be negative")}
	}

	s := c.Strategy
	if s.LagThreshold <= 0 {
		return &domain.ConfigError{Field: "strategy.lag_threshold", Err: errors.New("must be positive")}
	}
	if s.MaxTradeFraction <= 0 || s.MaxTradeFraction > 1 {
		return &domain.ConfigError{Field: "strategy.max_trade_fraction", Err: errors.New("must be in (0, 1]")}
	}
	if s.LossCapFraction <= 0 || s.LossCapFraction > 1 {
		return &domain.ConfigError{Field: "strategy.loss_cap_fraction", Err: errors.New("must be in (0, 1]")}
	}
	if s.InitialCapital <= 0 {
		return &domain.ConfigError{Field: "strategy.initial_capital", Err: errors.New("must be positive")}
	}
	if s.PollIntervalMS < 0 || s.CooldownMS < 0 || s.WarmupMS < 0 || s.SignalBuffer < 1 {
		return &domain.ConfigError{Field: "strategy", Err: errors.New("intervals must not be negative and signal_buffer must be at least 1")}
	}

	return nil
}

func (v VenueConfig) validate() error {
	field := "venues." + v.Name
	switch v.Provider {
	case ProviderWebSocket:
		if !hasPrefix(v.WSURL, "ws://") && !hasPrefix(v.WSURL, "wss://") {
			return &domain.ConfigError{Field: field + ".ws_url", Err: fmt.Errorf("invalid WS URL %q", v.WSURL)}
		}
		if v.AssetID == "" {
			return &domain.ConfigError{Field: field + ".asset_id", Err: errors.New("required")}
		}
	case ProviderREST:
		if !hasPrefix(v.RestURL, "http://") && !hasPrefix(v.RestURL, "https://") {
			return &domain.ConfigError{Field: field + ".rest_url", Err: fmt.Errorf("invalid URL %q", v.RestURL)}
		}
		if v.PollIntervalMS <= 0 {
			return &domain.ConfigError{Field: field + ".poll_interval_ms", Err: errors.New("must be positive")}
		}
	case ProviderSimulated:
		if v.SimStartPrice <= 0 || v.SimIntervalMS <= 0 {
			return &domain.ConfigError{Field: field, Err: errors.New("simulated feed needs a positive start price and interval")}
		}
	default:
		return &domain.ConfigError{Field: field + ".provider", Err: fmt.Errorf("unknown provider %q", v.Provider)}
	}
	return nil
}

// ReconnectBackoff is the fixed delay between feed redials.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Feed.ReconnectBackoffMS) * time.Millisecond
}

func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Execution.TimeoutMS) * time.Millisecond
}

// LatencyBudget is zero when the check is disabled.
func (c *Config) LatencyBudget() time.Duration {
	return time.Duration(derefInt(c.Execution.LatencyBudgetMS)) * time.Millisecond
}

func (c *Config) PaperLatency() time.Duration {
	return time.Duration(derefInt(c.Execution.PaperLatencyMS)) * time.Millisecond
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Strategy.CooldownMS) * time.Millisecond
}

func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Strategy.WarmupMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Strategy.PollIntervalMS) * time.Millisecond
}

func intPtr(v int) *int { return &v }

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// overrideWithEnv replaces credentials with environment values when present.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("LAGARB_API_KEY"); key != "" {
		cfg.Execution.APIKey = key
	}
	if secret := os.Getenv("LAGARB_API_SECRET"); secret != "" {
		cfg.Execution.APISecret = secret
	}
	if pass := os.Getenv("LAGARB_API_PASSPHRASE"); pass != "" {
		cfg.Execution.APIPassphrase = pass
	}
	if key := os.Getenv("LAGARB_REFERENCE_API_KEY"); key != "" {
		cfg.Venues.Reference.APIKey = key
	}
	if pass := os.Getenv("LAGARB_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
}
