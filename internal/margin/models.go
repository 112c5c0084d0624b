package margin

import (
	"fmt"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/shopspring/decimal"
)

// Config holds the margin parameters. Rates and shocks are decimal fractions:
// 0.05 is five percent, a shock of 0.85 marks positions down fifteen percent.
// Floor is the minimum Total for an account with any exposure; zero leaves
// Total as the plain sum.
type Config struct {
	InitialRate     decimal.Decimal            `yaml:"initial_rate"`
	VariationRate   decimal.Decimal            `yaml:"variation_rate"`
	StressScenarios []decimal.Decimal          `yaml:"stress_scenarios"`
	Floor           int64                      `yaml:"floor"`
	ReferencePrices map[types.SymbolHash]int64 `yaml:"-"`
}

// DefaultConfig returns a 5% initial rate, full variation pass-through and
// symmetric shocks of 5, 10 and 15 percent.
func DefaultConfig() Config {
	return Config{
		InitialRate:   decimal.RequireFromString("0.05"),
		VariationRate: decimal.NewFromInt(1),
		StressScenarios: []decimal.Decimal{
			decimal.RequireFromString("0.85"),
			decimal.RequireFromString("0.90"),
			decimal.RequireFromString("0.95"),
			decimal.RequireFromString("1.05"),
			decimal.RequireFromString("1.10"),
			decimal.RequireFromString("1.15"),
		},
		ReferencePrices: map[types.SymbolHash]int64{},
	}
}

// Validate rejects parameters that would make requirements meaningless.
func (c Config) Validate() error {
	if c.InitialRate.IsNegative() {
		return fmt.Errorf("%w: initial rate %s is negative", types.ErrInvalidConfig, c.InitialRate)
	}
	if c.VariationRate.IsNegative() {
		return fmt.Errorf("%w: variation rate %s is negative", types.ErrInvalidConfig, c.VariationRate)
	}
	if c.Floor < 0 {
		return fmt.Errorf("%w: margin floor %d is negative", types.ErrInvalidConfig, c.Floor)
	}
	if len(c.StressScenarios) == 0 {
		return fmt.Errorf("%w: at least one stress scenario is required", types.ErrInvalidConfig)
	}
	for i, shock := range c.StressScenarios {
		if !shock.IsPositive() {
			return fmt.Errorf("%w: stress scenario %d shock %s must be positive", types.ErrInvalidConfig, i, shock)
		}
	}
	for symbol, price := range c.ReferencePrices {
		if price <= 0 {
			return fmt.Errorf("%w: reference price %d for symbol %x must be positive", types.ErrInvalidConfig, price, uint64(symbol))
		}
	}
	return nil
}

// MarginRequirement is the collateral an account must post.
// Total is the saturating sum of the three components, raised to the
// configured floor when one is set.
type MarginRequirement struct {
	AccountID   types.AccountID `json:"account_id"`
	Initial     int64           `json:"initial"`
	Variation   int64           `json:"variation"`
	Stress      int64           `json:"stress"`
	Total       int64           `json:"total"`
	ContentHash uint64          `json:"content_hash"`
}
