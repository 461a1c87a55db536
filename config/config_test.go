package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 10000.0, cfg.Engine.InitialBalance)
	assert.Equal(t, 0.005, cfg.Engine.MaintenanceBuffer)
	assert.Equal(t, 125, cfg.Engine.MaxLeverage)
	assert.Equal(t, 2, cfg.Quotes.Sources(), "binance and simulated")
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "missing database path",
			mutate: func(c *Config) { c.Database.Path = "" },
			errMsg: "Config.Database.Path",
		},
		{
			name:   "negative balance",
			mutate: func(c *Config) { c.Engine.InitialBalance = -1000 },
			errMsg: "Config.Engine.InitialBalance",
		},
		{
			name:   "zero leverage cap",
			mutate: func(c *Config) { c.Engine.MaxLeverage = 0 },
			errMsg: "Config.Engine.MaxLeverage",
		},
		{
			name:   "bad quote timeout",
			mutate: func(c *Config) { c.Quotes.Timeout = "soon" },
			errMsg: "Config.Quotes.Timeout",
		},
		{
			name:   "zero monitor interval",
			mutate: func(c *Config) { c.Monitor.Interval = "0s" },
			errMsg: "Config.Monitor.Interval",
		},
		{
			name: "rest enabled without url",
			mutate: func(c *Config) {
				c.Quotes.REST.Enabled = true
				c.Quotes.REST.BaseURL = ""
			},
			errMsg: "Config.Quotes.REST.BaseURL",
		},
		{
			name:   "negative simulated price",
			mutate: func(c *Config) { c.Quotes.Simulated.Prices["BTC"] = -1 },
			errMsg: "Config.Quotes.Simulated.Prices[BTC]",
		},
		{
			name: "no sources",
			mutate: func(c *Config) {
				c.Quotes.Binance.Enabled = false
				c.Quotes.Simulated.Enabled = false
			},
			errMsg: "at least one source",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			errMsg: "Config.Log.Level",
		},
		{
			name:   "leverage beyond maintenance buffer",
			mutate: func(c *Config) { c.Engine.MaxLeverage = 500 },
			errMsg: "max_leverage 500",
		},
		{
			name: "high leverage with a small buffer",
			mutate: func(c *Config) {
				c.Engine.MaxLeverage = 500
				c.Engine.MaintenanceBuffer = 0.001
			},
		},
		{
			name:   "bad nats url",
			mutate: func(c *Config) { c.NATS.URL = "not a url" },
			errMsg: "Config.NATS.URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.Path = "/var/lib/levtrader/ledger.db"
			cfg.Monitor.Interval = "2s"
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := Load(path, "")
			require.NoError(t, err)

			assert.Equal(t, cfg.Database.Path, loaded.Database.Path)
			assert.Equal(t, cfg.Engine, loaded.Engine)
			assert.Equal(t, 2*time.Second, loaded.Monitor.Every())
			assert.Equal(t, 80000.0, loaded.Quotes.Simulated.Prices["BTC"])
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml", "")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LEVTRADER_SERVER_ADDR=0.0.0.0:9090\n"), 0o600))

	t.Setenv("LEVTRADER_DATABASE_PATH", filepath.Join(dir, "env.db"))
	t.Setenv("LEVTRADER_ENGINE_MAX_LEVERAGE", "20")
	t.Setenv("LEVTRADER_QUOTES_BINANCE_ENABLED", "false")
	t.Setenv("LEVTRADER_QUOTES_BINANCE_BASE_URL", "https://testnet.binance.vision")
	t.Setenv("LEVTRADER_ENGINE_PASSWORD_COST", "5")
	t.Setenv("LEVTRADER_NATS_URL", "nats://127.0.0.1:4222")
	t.Cleanup(func() { _ = os.Unsetenv("LEVTRADER_SERVER_ADDR") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "env.db"), cfg.Database.Path)
	assert.Equal(t, 20, cfg.Engine.MaxLeverage)
	assert.False(t, cfg.Quotes.Binance.Enabled)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr)
	assert.Equal(t, "https://testnet.binance.vision", cfg.Quotes.Binance.BaseURL)
	assert.Equal(t, 5, cfg.Engine.PasswordCost)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)

	// A missing .env file is not an error.
	_, err = Load("", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}

func TestLedgerConfig(t *testing.T) {
	cfg := Default()
	lc := cfg.Ledger()

	assert.True(t, lc.InitialBalance.Equal(decimal.NewFromInt(10000)))
	assert.True(t, lc.MaintenanceBuffer.Equal(decimal.RequireFromString("0.005")))
	assert.Equal(t, 125, lc.MaxLeverage)
	assert.Equal(t, 9*time.Second, lc.QuoteTimeout, "3s per source, two sources plus one")
	assert.Equal(t, 8, lc.QuoteConcurrency)

	prices := cfg.Quotes.Simulated.SimulatedPrices()
	assert.True(t, prices["ETH"].Equal(decimal.NewFromInt(3000)))
}
