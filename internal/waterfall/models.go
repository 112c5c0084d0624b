package waterfall

import (
	"fmt"

	"github.com/ksred/klear-settlement/internal/types"
)

// Layer is one tier of loss-absorbing capital.
type Layer struct {
	Name  string `yaml:"name" json:"name"`
	Limit int64  `yaml:"limit" json:"limit"`
}

// Config lists layers in the order they absorb losses.
type Config struct {
	Layers []Layer `yaml:"layers"`
}

// DefaultConfig is the conventional CCP waterfall: the defaulter's own
// resources first, then CCP skin in the game, then the mutualised fund.
func DefaultConfig() Config {
	return Config{
		Layers: []Layer{
			{Name: "defaulter_margin", Limit: 10_000},
			{Name: "defaulter_fund", Limit: 5_000},
			{Name: "ccp_first_loss", Limit: 2_000},
			{Name: "members_fund", Limit: 20_000},
			{Name: "ccp_capital", Limit: 50_000},
		},
	}
}

func (c Config) Validate() error {
	if len(c.Layers) == 0 {
		return fmt.Errorf("%w: waterfall needs at least one layer", types.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Layers))
	for i, layer := range c.Layers {
		if layer.Name == "" {
			return fmt.Errorf("%w: waterfall layer %d has no name", types.ErrInvalidConfig, i)
		}
		if _, dup := seen[layer.Name]; dup {
			return fmt.Errorf("%w: waterfall layer %q is repeated", types.ErrInvalidConfig, layer.Name)
		}
		seen[layer.Name] = struct{}{}
		if layer.Limit <= 0 {
			return fmt.Errorf("%w: waterfall layer %q limit %d must be positive", types.ErrInvalidConfig, layer.Name, layer.Limit)
		}
	}
	return nil
}

// LayerAbsorption reports what one layer took from a loss.
type LayerAbsorption struct {
	Name           string `json:"name"`
	Limit          int64  `json:"limit"`
	Absorbed       int64  `json:"absorbed"`
	RemainingAfter int64  `json:"remaining_after"`
}

// Result is the outcome of running one loss through the waterfall.
// TotalAbsorbed + Shortfall == Loss always holds.
type Result struct {
	Loss          int64             `json:"loss"`
	Layers        []LayerAbsorption `json:"layers"`
	TotalAbsorbed int64             `json:"total_absorbed"`
	FullyCovered  bool              `json:"fully_covered"`
	Shortfall     int64             `json:"shortfall"`
	ContentHash   uint64            `json:"content_hash"`
}
