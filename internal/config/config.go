// Package config loads run settings from defaults, a YAML file, the
// environment and the venue credentials file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ksred/klear-accumulate/internal/client"
	"github.com/ksred/klear-accumulate/internal/strategy"
)

const DefaultBaseURL = "https://api.stockfighter.io/ob/api"

var (
	ErrMissingAPIKey = errors.New("venue API key is required")
	ErrMissingTarget = errors.New("account, venue and stock are required")
)

type VenueConfig struct {
	BaseURL           string        `yaml:"base-url"`
	Account           string        `yaml:"account"`
	Venue             string        `yaml:"venue"`
	Symbol            string        `yaml:"stock"`
	APIKey            string        `yaml:"api-key"`
	AuthHeader        string        `yaml:"auth-header"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests-per-second"`
}

type StrategyConfig struct {
	Target        int64         `yaml:"target"`
	BuySize       int64         `yaml:"buy-size"`
	SellSize      int64         `yaml:"sell-size"`
	BuysPerSell   int           `yaml:"buys-per-sell"`
	CycleDuration time.Duration `yaml:"cycle-duration"`
	Markup        float64       `yaml:"markup"`
	Markdown      float64       `yaml:"markdown"`
}

type MonitorConfig struct {
	Poll   time.Duration `yaml:"poll"`
	Checks int           `yaml:"checks"`
}

type SamplerConfig struct {
	SeedSamples  int           `yaml:"seed-samples"`
	SampleDelay  time.Duration `yaml:"sample-delay"`
	RepriceEvery int           `yaml:"reprice-every"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
	// Production switches console output from the pretty writer to JSON
	Production bool `yaml:"production"`
}

type Config struct {
	Venue    VenueConfig    `yaml:"venue"`
	Strategy StrategyConfig `yaml:"strategy"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the settings of a stock accumulation run
func Default() Config {
	p := strategy.DefaultParams()
	return Config{
		Venue: VenueConfig{
			BaseURL:    DefaultBaseURL,
			AuthHeader: client.DefaultAuthHeader,
			Timeout:    10 * time.Second,
		},
		Strategy: StrategyConfig{
			Target:        p.Target,
			BuySize:       p.BuySize,
			SellSize:      p.SellSize,
			BuysPerSell:   p.BuysPerSell,
			CycleDuration: p.CycleDuration,
			Markup:        p.Markup,
			Markdown:      p.Markdown,
		},
		Monitor: MonitorConfig{
			Poll:   time.Second,
			Checks: 5,
		},
		Sampler: SamplerConfig{
			SeedSamples:  p.SeedSamples,
			SampleDelay:  p.SampleDelay,
			RepriceEvery: p.RepriceEvery,
		},
		Log: LogConfig{
			Level:      "info",
			TimeFormat: time.RFC3339,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Console:    true,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file error: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config yaml error: %w", err)
	}
	return cfg, nil
}

type apiKeyFile struct {
	APIKey string `json:"api-key"`
}

// LoadAPIKey reads the venue key from a JSON credentials file of the form
// {"api-key": "..."}
func LoadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read api key file error: %w", err)
	}
	var f apiKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("unmarshal api key file error: %w", err)
	}
	if f.APIKey == "" {
		return "", fmt.Errorf("%s: %w", path, ErrMissingAPIKey)
	}
	return f.APIKey, nil
}

// LoadEnv loads a .env file when one exists and applies environment overrides
func (c *Config) LoadEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	if v := os.Getenv("ACCUMULATE_API_KEY"); v != "" {
		c.Venue.APIKey = v
	}
	if v := os.Getenv("ACCUMULATE_BASE_URL"); v != "" {
		c.Venue.BaseURL = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG value %q: %w", v, err)
		}
		if debug {
			c.Log.Level = "debug"
		}
	}
	if os.Getenv("ENV") == "production" {
		c.Log.Production = true
	}
	return nil
}

// Params maps the settings onto strategy parameters
func (c Config) Params() strategy.Params {
	return strategy.Params{
		Venue:         c.Venue.Venue,
		Symbol:        c.Venue.Symbol,
		Target:        c.Strategy.Target,
		BuySize:       c.Strategy.BuySize,
		SellSize:      c.Strategy.SellSize,
		BuysPerSell:   c.Strategy.BuysPerSell,
		CycleDuration: c.Strategy.CycleDuration,
		Markup:        c.Strategy.Markup,
		Markdown:      c.Strategy.Markdown,
		SeedSamples:   c.Sampler.SeedSamples,
		SampleDelay:   c.Sampler.SampleDelay,
		RepriceEvery:  c.Sampler.RepriceEvery,
	}
}

// ClientConfig maps the settings onto the venue client configuration
func (c Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:           c.Venue.BaseURL,
		APIKey:            c.Venue.APIKey,
		AuthHeader:        c.Venue.AuthHeader,
		Timeout:           c.Venue.Timeout,
		RequestsPerSecond: c.Venue.RequestsPerSecond,
	}
}

// Validate checks that a run can start
func (c Config) Validate() error {
	if c.Venue.Account == "" || c.Venue.Venue == "" || c.Venue.Symbol == "" {
		return ErrMissingTarget
	}
	if c.Venue.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Venue.BaseURL == "" {
		return errors.New("venue base url is required")
	}
	if c.Monitor.Checks < 1 {
		return fmt.Errorf("monitor checks must be at least 1, got %d", c.Monitor.Checks)
	}
	if c.Monitor.Poll < 0 {
		return fmt.Errorf("monitor poll interval cannot be negative, got %s", c.Monitor.Poll)
	}
	return c.Params().Validate()
}
