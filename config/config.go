package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/levtrader/ledger"
)

// EnvPrefix prefixes environment overrides, e.g. LEVTRADER_DATABASE_PATH.
const EnvPrefix = "LEVTRADER"

// Config is the complete levtrader configuration.
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database" mapstructure:"database"`
	Engine   EngineConfig   `json:"engine" yaml:"engine" mapstructure:"engine"`
	Quotes   QuotesConfig   `json:"quotes" yaml:"quotes" mapstructure:"quotes"`
	Monitor  MonitorConfig  `json:"monitor" yaml:"monitor" mapstructure:"monitor"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	NATS     NATSConfig     `json:"nats" yaml:"nats" mapstructure:"nats"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}

type DatabaseConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"required"`
}

// EngineConfig holds the ledger's trading rules.
type EngineConfig struct {
	InitialBalance    float64 `json:"initial_balance" yaml:"initial_balance" mapstructure:"initial_balance" validate:"gt=0"`
	MaintenanceBuffer float64 `json:"maintenance_buffer" yaml:"maintenance_buffer" mapstructure:"maintenance_buffer" validate:"gte=0,lt=1"`
	MaxLeverage       int     `json:"max_leverage" yaml:"max_leverage" mapstructure:"max_leverage" validate:"gte=1,lte=1000"`
	HistoryLimit      int     `json:"history_limit" yaml:"history_limit" mapstructure:"history_limit" validate:"gte=1"`
	PasswordCost      int     `json:"password_cost" yaml:"password_cost" mapstructure:"password_cost" validate:"omitempty,gte=4,lte=31"`
}

// QuotesConfig lists the price sources in the order they are tried:
// binance, rest, then the simulated table.
type QuotesConfig struct {
	Timeout     string          `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"duration"`
	QuoteAsset  string          `json:"quote_asset" yaml:"quote_asset" mapstructure:"quote_asset" validate:"required,alphanum"`
	Concurrency int             `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
	Binance     BinanceConfig   `json:"binance" yaml:"binance" mapstructure:"binance"`
	REST        RESTConfig      `json:"rest" yaml:"rest" mapstructure:"rest"`
	Simulated   SimulatedConfig `json:"simulated" yaml:"simulated" mapstructure:"simulated"`
	Breaker     BreakerConfig   `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
}

type BinanceConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	BaseURL           string  `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `json:"burst" yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"required_if=Enabled true,omitempty,url"`
}

// SimulatedConfig is the last-resort price table. Its prices are
// placeholders, not reference values.
type SimulatedConfig struct {
	Enabled bool               `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Jitter  float64            `json:"jitter" yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lt=1"`
	Seed    uint64             `json:"seed" yaml:"seed" mapstructure:"seed"`
	Prices  map[string]float64 `json:"prices" yaml:"prices" mapstructure:"prices" validate:"dive,gt=0"`
}

type BreakerConfig struct {
	MinRequests  uint32  `json:"min_requests" yaml:"min_requests" mapstructure:"min_requests"`
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
	Timeout      string  `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"duration"`
}

type MonitorConfig struct {
	Interval string `json:"interval" yaml:"interval" mapstructure:"interval" validate:"duration"`
	Workers  int    `json:"workers" yaml:"workers" mapstructure:"workers" validate:"gte=1"`
}

type ServerConfig struct {
	Addr            string `json:"addr" yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"duration"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `json:"url" yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix" mapstructure:"subject_prefix" validate:"required"`
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Console bool   `json:"console" yaml:"console" mapstructure:"console"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./levtrader.db"},
		Engine: EngineConfig{
			InitialBalance:    10000,
			MaintenanceBuffer: 0.005,
			MaxLeverage:       125,
			HistoryLimit:      50,
		},
		Quotes: QuotesConfig{
			Timeout:     "3s",
			QuoteAsset:  "USDT",
			Concurrency: 8,
			Binance: BinanceConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             5,
			},
			Simulated: SimulatedConfig{
				Enabled: true,
				Jitter:  0.001,
				Seed:    1,
				Prices: map[string]float64{
					"BTC": 80000,
					"ETH": 3000,
					"SOL": 150,
				},
			},
			Breaker: BreakerConfig{
				MinRequests:  5,
				FailureRatio: 0.5,
				Timeout:      "30s",
			},
		},
		Monitor: MonitorConfig{Interval: "5s", Workers: 4},
		Server:  ServerConfig{Addr: "127.0.0.1:8080", ShutdownTimeout: "10s"},
		NATS:    NATSConfig{SubjectPrefix: "levtrader.positions"},
		Log:     LogConfig{Level: "info", Console: true},
	}
}

// Load builds a Config from the defaults, the file at path (YAML or JSON,
// optional), a .env file (optional) and LEVTRADER_* environment variables,
// in increasing order of precedence.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	// Every leaf is written so AutomaticEnv can find it; a key missing
	// from the defaults is never looked up in the environment.
	v := viper.New()
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Quotes.Simulated.Prices = upperKeys(cfg.Quotes.Simulated.Prices)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func configType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

// viper lower-cases map keys; symbols are upper case everywhere else.
func upperKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// SaveToFile writes the configuration as JSON for a .json path and YAML
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if configType(path) == "json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var msgs []string

	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s fails %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
		}
	case err != nil:
		return err
	}
	if c.Quotes.Sources() == 0 {
		msgs = append(msgs, "quotes: at least one source must be enabled")
	}
	if c.Engine.MaxLeverage > 0 && 1/float64(c.Engine.MaxLeverage) <= c.Engine.MaintenanceBuffer {
		msgs = append(msgs, fmt.Sprintf("engine: max_leverage %d leaves no margin above maintenance_buffer %v",
			c.Engine.MaxLeverage, c.Engine.MaintenanceBuffer))
	}

	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (q QuotesConfig) TimeoutDuration() time.Duration  { return mustDuration(q.Timeout) }
func (b BreakerConfig) TimeoutDuration() time.Duration { return mustDuration(b.Timeout) }
func (m MonitorConfig) Every() time.Duration           { return mustDuration(m.Interval) }
func (s ServerConfig) ShutdownAfter() time.Duration    { return mustDuration(s.ShutdownTimeout) }

// SimulatedPrices converts the table to decimals.
func (s SimulatedConfig) SimulatedPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Prices))
	for sym, p := range s.Prices {
		out[strings.ToUpper(sym)] = decimal.NewFromFloat(p)
	}
	return out
}

// Sources counts the enabled price sources.
func (q QuotesConfig) Sources() int {
	n := 0
	for _, on := range []bool{q.Binance.Enabled, q.REST.Enabled, q.Simulated.Enabled} {
		if on {
			n++
		}
	}
	return n
}

// Ledger converts the engine section to the ledger's own config. The
// engine's quote deadline covers every source in the chain plus one spare
// timeout, so fallback sources are still reached.
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		InitialBalance:    decimal.NewFromFloat(c.Engine.InitialBalance),
		MaintenanceBuffer: decimal.NewFromFloat(c.Engine.MaintenanceBuffer),
		MaxLeverage:       c.Engine.MaxLeverage,
		QuoteTimeout:      c.Quotes.TimeoutDuration() * time.Duration(c.Quotes.Sources()+1),
		HistoryLimit:      c.Engine.HistoryLimit,
		PasswordCost:      c.Engine.PasswordCost,
		QuoteConcurrency:  c.Quotes.Concurrency,
	}
}
