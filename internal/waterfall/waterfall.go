// Package waterfall allocates a defaulting member's uncovered loss across
// ordered layers of capital.
package waterfall

import (
	"fmt"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/contenthash"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
)

// DefaultWaterfall is immutable after construction.
type DefaultWaterfall struct {
	layers []Layer
}

// New validates cfg and builds a waterfall.
func New(cfg Config) (*DefaultWaterfall, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DefaultWaterfall{layers: append([]Layer(nil), cfg.Layers...)}, nil
}

// Layers returns a copy of the configured layers.
func (w *DefaultWaterfall) Layers() []Layer {
	return append([]Layer(nil), w.layers...)
}

// TotalCapacity is the sum of every layer limit, saturating.
func (w *DefaultWaterfall) TotalCapacity() int64 {
	var total int64
	for _, l := range w.layers {
		total = ticks.Add(total, l.Limit)
	}
	return total
}

// AbsorbLoss draws the loss down through the layers in order. Each layer
// takes min(remaining, limit); once nothing remains, later layers take zero.
func (w *DefaultWaterfall) AbsorbLoss(loss int64) (Result, error) {
	if loss < 0 {
		return Result{}, fmt.Errorf("%w: loss %d is negative", types.ErrInvalidLoss, loss)
	}

	result := Result{
		Loss:   loss,
		Layers: make([]LayerAbsorption, 0, len(w.layers)),
	}
	remaining := loss
	for _, l := range w.layers {
		absorbed := min(remaining, l.Limit)
		remaining -= absorbed
		result.Layers = append(result.Layers, LayerAbsorption{
			Name:           l.Name,
			Limit:          l.Limit,
			Absorbed:       absorbed,
			RemainingAfter: remaining,
		})
	}
	result.TotalAbsorbed = loss - remaining
	result.Shortfall = remaining
	result.FullyCovered = remaining == 0
	result.ContentHash = hashResult(&result)

	event := log.Info()
	if !result.FullyCovered {
		event = log.Warn()
	}
	event.
		Str("service", "waterfall").
		Int64("loss", loss).
		Int64("absorbed", result.TotalAbsorbed).
		Int64("shortfall", result.Shortfall).
		Msg("absorbed loss through waterfall")

	return result, nil
}

// AbsorbLosses runs each loss independently against the full waterfall.
func (w *DefaultWaterfall) AbsorbLosses(losses []int64) ([]Result, error) {
	results := make([]Result, 0, len(losses))
	for i, loss := range losses {
		r, err := w.AbsorbLoss(loss)
		if err != nil {
			return nil, fmt.Errorf("loss %d: %w", i, err)
		}
		results = append(results, r)
	}
	return results, nil
}

func hashResult(r *Result) uint64 {
	h := contenthash.New().Int64(r.Loss).Int64(r.TotalAbsorbed)
	for _, l := range r.Layers {
		h.String(l.Name).Int64(l.Absorbed)
	}
	return h.Sum64()
}
