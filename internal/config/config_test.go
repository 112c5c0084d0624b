package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksred/klear-settlement/internal/margin"
	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/internal/waterfall"
	"github.com/ksred/klear-settlement/pkg/contenthash"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempFile(t, `
database:
  path: /tmp/audit.db
margin:
  initial_rate: 0.1
  variation_rate: "0.5"
  stress_scenarios: [0.8, 1.2]
  reference_prices:
    AAPL: 19000
waterfall:
  layers:
    - name: margin
      limit: 5000
    - name: fund
      limit: 3000
settlement:
  margin_tolerance: 250
processor:
  interval: 2s
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/audit.db", cfg.Database.Path)
	assert.True(t, decimal.RequireFromString("0.1").Equal(cfg.Margin.InitialRate))
	assert.True(t, decimal.RequireFromString("0.5").Equal(cfg.Margin.VariationRate))
	require.Len(t, cfg.Margin.StressScenarios, 2)
	assert.True(t, decimal.RequireFromString("1.2").Equal(cfg.Margin.StressScenarios[1]))
	assert.Equal(t, int64(19000), cfg.Margin.ReferencePrices["AAPL"])
	assert.Equal(t, []waterfall.Layer{{Name: "margin", Limit: 5000}, {Name: "fund", Limit: 3000}}, cfg.Waterfall.Layers)
	assert.Equal(t, int64(250), cfg.Settlement.MarginTolerance)
	assert.Equal(t, 2*time.Second, cfg.Processor.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AUDIT_DB", "/var/lib/settlement/audit.db")
	path := writeTempFile(t, `
database:
  path: ${TEST_AUDIT_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/settlement/audit.db", cfg.Database.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeTempFile(t, "margin: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeTempFile(t, "margin:\n  initial_rate: abc\n"))
	assert.Error(t, err)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, DefaultProcessorInterval, cfg.Processor.Interval)
	assert.Equal(t, waterfall.DefaultConfig(), cfg.Waterfall)
	assert.Len(t, cfg.Margin.StressScenarios, len(margin.DefaultConfig().StressScenarios))
	assert.True(t, margin.DefaultConfig().InitialRate.Equal(cfg.Margin.InitialRate))
	assert.Equal(t, DefaultSymbols, cfg.Simulation.Symbols)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"negative rate", func(c *Config) { c.Margin.InitialRate = decimal.NewFromInt(-1) }},
		{"bad reference price", func(c *Config) { c.Margin.ReferencePrices = map[string]int64{"AAPL": -5} }},
		{"duplicate layer", func(c *Config) {
			c.Waterfall.Layers = []waterfall.Layer{{Name: "a", Limit: 1}, {Name: "a", Limit: 2}}
		}},
		{"negative tolerance", func(c *Config) { c.Settlement.MarginTolerance = -1 }},
		{"zero interval", func(c *Config) { c.Processor.Interval = 0 }},
		{"one account", func(c *Config) { c.Simulation.Accounts = 1 }},
		{"no workers", func(c *Config) { c.Simulation.Workers = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), types.ErrInvalidConfig)
		})
	}
}

func TestLoadAndValidateRejectsInvalid(t *testing.T) {
	path := writeTempFile(t, `
waterfall:
  layers:
    - name: only
      limit: 0
`)
	_, err := LoadAndValidate(path)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestEngineConfigHashesTickers(t *testing.T) {
	m := MarginConfig{
		Config:          margin.DefaultConfig(),
		ReferencePrices: map[string]int64{"AAPL": 19000, "MSFT": 41000},
	}
	got := m.EngineConfig().ReferencePrices
	assert.Equal(t, map[types.SymbolHash]int64{
		types.SymbolHash(contenthash.Symbol("AAPL")): 19000,
		types.SymbolHash(contenthash.Symbol("MSFT")): 41000,
	}, got)

	_, err := margin.NewEngine(m.EngineConfig())
	assert.NoError(t, err)
}
