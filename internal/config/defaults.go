package config

import (
	"time"

	"github.com/ksred/klear-settlement/internal/margin"
	"github.com/ksred/klear-settlement/internal/waterfall"
)

// Default values for optional configuration fields.
const (
	DefaultDatabasePath      = "settlement.db"
	DefaultProcessorInterval = 500 * time.Millisecond
	DefaultSeed              = 42
	DefaultTrades            = 1000
	DefaultAccounts          = 10
	DefaultInitialBalance    = 100_000_000
	DefaultWorkers           = 4
	DefaultLogLevel          = "info"
)

var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"}

// Default returns a complete configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values. A zero rate in the file is therefore
// indistinguishable from an omitted one.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}

	marginDefaults := margin.DefaultConfig()
	if c.Margin.InitialRate.IsZero() {
		c.Margin.InitialRate = marginDefaults.InitialRate
	}
	if c.Margin.VariationRate.IsZero() {
		c.Margin.VariationRate = marginDefaults.VariationRate
	}
	if len(c.Margin.StressScenarios) == 0 {
		c.Margin.StressScenarios = marginDefaults.StressScenarios
	}

	if len(c.Waterfall.Layers) == 0 {
		c.Waterfall = waterfall.DefaultConfig()
	}

	if c.Processor.Interval == 0 {
		c.Processor.Interval = DefaultProcessorInterval
	}

	if c.Simulation.Seed == 0 {
		c.Simulation.Seed = DefaultSeed
	}
	if c.Simulation.Trades == 0 {
		c.Simulation.Trades = DefaultTrades
	}
	if c.Simulation.Accounts == 0 {
		c.Simulation.Accounts = DefaultAccounts
	}
	if c.Simulation.InitialBalance == 0 {
		c.Simulation.InitialBalance = DefaultInitialBalance
	}
	if len(c.Simulation.Symbols) == 0 {
		c.Simulation.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if c.Simulation.Workers == 0 {
		c.Simulation.Workers = DefaultWorkers
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}
