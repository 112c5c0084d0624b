// Package config loads the settlement engine configuration from YAML.
package config

import (
	"time"

	"github.com/ksred/klear-settlement/internal/margin"
	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/internal/waterfall"
	"github.com/ksred/klear-settlement/pkg/contenthash"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Margin     MarginConfig     `yaml:"margin"`
	Waterfall  waterfall.Config `yaml:"waterfall"`
	Settlement SettlementConfig `yaml:"settlement"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Simulation SimulationConfig `yaml:"simulation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig points at the sqlite audit export.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MarginConfig extends the engine parameters with reference prices keyed
// by ticker, e.g. AAPL: 19000.
type MarginConfig struct {
	margin.Config   `yaml:",inline"`
	ReferencePrices map[string]int64 `yaml:"reference_prices"`
}

// EngineConfig resolves tickers to symbol hashes.
func (m MarginConfig) EngineConfig() margin.Config {
	cfg := m.Config
	cfg.ReferencePrices = make(map[types.SymbolHash]int64, len(m.ReferencePrices))
	for ticker, price := range m.ReferencePrices {
		cfg.ReferencePrices[types.SymbolHash(contenthash.Symbol(ticker))] = price
	}
	return cfg
}

// SettlementConfig holds cycle-level policy.
type SettlementConfig struct {
	// MarginTolerance is how far an account's margin requirement may exceed
	// its balance before the account is treated as defaulted.
	MarginTolerance int64 `yaml:"margin_tolerance"`
}

// ProcessorConfig holds the ingestion loop settings.
type ProcessorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SimulationConfig drives cmd/simulation.
type SimulationConfig struct {
	Seed           int64    `yaml:"seed"`
	Trades         int      `yaml:"trades"`
	Accounts       int      `yaml:"accounts"`
	InitialBalance int64    `yaml:"initial_balance"`
	Symbols        []string `yaml:"symbols"`
	Workers        int      `yaml:"workers"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}
