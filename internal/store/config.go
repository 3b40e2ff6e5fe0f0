package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FlipReverse  = "REVERSE"
	FlipFlatOnly = "FLAT_ONLY"
)

type Config struct {
	Mode        string `yaml:"mode"`
	PollSeconds int    `yaml:"poll_seconds"`
	Interval    string `yaml:"interval"`
	WindowSize  int    `yaml:"window_size"`
	Market      struct {
		Open  string `yaml:"open"`
		Close string `yaml:"close"`
	} `yaml:"market"`
	Supertrend struct {
		Length     int     `yaml:"length"`
		Multiplier float64 `yaml:"multiplier"`
	} `yaml:"supertrend"`
	Strategy struct {
		FlipPolicy string `yaml:"flip_policy"`
		LongOnly   bool   `yaml:"long_only"`
	} `yaml:"strategy"`
	Qty struct {
		Default   int            `yaml:"default"`
		PerSymbol map[string]int `yaml:"per_symbol"`
	} `yaml:"qty"`
	Risk struct {
		MaxNotional float64 `yaml:"max_notional"`
	} `yaml:"risk"`
	Stop struct {
		LookbackBars int     `yaml:"lookback_bars"`
		FallbackPct  float64 `yaml:"fallback_pct"`
		RewardRisk   float64 `yaml:"reward_risk"`
		MinTick      float64 `yaml:"min_tick"`
	} `yaml:"stop"`
	Broker struct {
		BaseURL           string  `yaml:"base_url"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		ClientLocalIP     string  `yaml:"client_local_ip"`
		ClientPublicIP    string  `yaml:"client_public_ip"`
		MACAddress        string  `yaml:"mac_address"`
	} `yaml:"broker"`
	Server struct {
		Addr                  string  `yaml:"addr"`
		RequestsPerSecond     float64 `yaml:"requests_per_second"`
		Burst                 int     `yaml:"burst"`
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	} `yaml:"server"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Autostart struct {
		TradingSymbol string `yaml:"trading_symbol"`
		SymbolToken   string `yaml:"symbol_token"`
		Exchange      string `yaml:"exchange"`
		Quantity      int    `yaml:"quantity"`
	} `yaml:"autostart"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %d", c.PollSeconds)
	}
	if c.Supertrend.Length < 2 {
		return fmt.Errorf("supertrend.length must be at least 2, got %d", c.Supertrend.Length)
	}
	if c.Supertrend.Multiplier <= 0 {
		return fmt.Errorf("supertrend.multiplier must be positive, got %.2f", c.Supertrend.Multiplier)
	}
	if c.WindowSize < c.Supertrend.Length {
		return fmt.Errorf("window_size %d is smaller than supertrend.length %d", c.WindowSize, c.Supertrend.Length)
	}
	if c.Strategy.FlipPolicy != FlipReverse && c.Strategy.FlipPolicy != FlipFlatOnly {
		return fmt.Errorf("strategy.flip_policy must be '%s' or '%s', got '%s'", FlipReverse, FlipFlatOnly, c.Strategy.FlipPolicy)
	}
	if c.Stop.FallbackPct <= 0 || c.Stop.FallbackPct >= 100 {
		return fmt.Errorf("stop.fallback_pct must be between 0-100, got %.2f", c.Stop.FallbackPct)
	}
	if c.Stop.RewardRisk <= 0 {
		return fmt.Errorf("stop.reward_risk must be positive, got %.2f", c.Stop.RewardRisk)
	}
	if c.Stop.LookbackBars <= 0 {
		return errors.New("stop.lookback_bars must be positive")
	}
	if c.Qty.Default <= 0 {
		return fmt.Errorf("qty.default must be positive, got %d", c.Qty.Default)
	}
	return nil
}

// QtyFor returns the configured quantity for a trading symbol.
func (c *Config) QtyFor(symbol string) int {
	if v, ok := c.Qty.PerSymbol[symbol]; ok && v > 0 {
		return v
	}
	return c.Qty.Default
}

func (c *Config) applyDefaults() {
	c.Mode = strings.ToUpper(c.Mode)
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.Interval == "" {
		c.Interval = "ONE_MINUTE"
	}
	if c.WindowSize == 0 {
		c.WindowSize = 100
	}
	if c.Market.Open == "" {
		c.Market.Open = "09:15"
	}
	if c.Market.Close == "" {
		c.Market.Close = "15:30"
	}
	if c.Supertrend.Length == 0 {
		c.Supertrend.Length = 10
	}
	if c.Supertrend.Multiplier == 0 {
		c.Supertrend.Multiplier = 2.0
	}
	c.Strategy.FlipPolicy = strings.ToUpper(c.Strategy.FlipPolicy)
	if c.Strategy.FlipPolicy == "" {
		c.Strategy.FlipPolicy = FlipReverse
	}
	if c.Qty.Default == 0 {
		c.Qty.Default = 1
	}
	if c.Stop.LookbackBars == 0 {
		c.Stop.LookbackBars = 3
	}
	if c.Stop.FallbackPct == 0 {
		c.Stop.FallbackPct = 2
	}
	if c.Stop.RewardRisk == 0 {
		c.Stop.RewardRisk = 2
	}
	if c.Stop.MinTick == 0 {
		c.Stop.MinTick = 0.05
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://apiconnect.angelone.in"
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.RequestsPerSecond == 0 {
		c.Broker.RequestsPerSecond = 3
	}
	if c.Broker.Burst == 0 {
		c.Broker.Burst = 3
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Server.RequestsPerSecond == 0 {
		c.Server.RequestsPerSecond = 20
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 50
	}
	if c.Server.RequestTimeoutSeconds == 0 {
		c.Server.RequestTimeoutSeconds = 30
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
