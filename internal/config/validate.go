package config

import (
	"fmt"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/rs/zerolog"
)

// Validate checks that all required fields are set and values are valid.
// Every failure wraps types.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", types.ErrInvalidConfig)
	}
	if err := c.Margin.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("margin: %w", err)
	}
	if err := c.Waterfall.Validate(); err != nil {
		return fmt.Errorf("waterfall: %w", err)
	}
	if c.Settlement.MarginTolerance < 0 {
		return fmt.Errorf("%w: settlement.margin_tolerance must be >= 0", types.ErrInvalidConfig)
	}
	if c.Processor.Interval <= 0 {
		return fmt.Errorf("%w: processor.interval must be positive", types.ErrInvalidConfig)
	}
	if c.Simulation.Trades < 0 {
		return fmt.Errorf("%w: simulation.trades must be >= 0", types.ErrInvalidConfig)
	}
	if c.Simulation.Accounts < 2 {
		return fmt.Errorf("%w: simulation.accounts must be >= 2", types.ErrInvalidConfig)
	}
	if c.Simulation.InitialBalance < 0 {
		return fmt.Errorf("%w: simulation.initial_balance must be >= 0", types.ErrInvalidConfig)
	}
	if c.Simulation.Workers < 1 {
		return fmt.Errorf("%w: simulation.workers must be >= 1", types.ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level %q: %v", types.ErrInvalidConfig, c.Logging.Level, err)
	}
	return nil
}
