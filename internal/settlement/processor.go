package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/rs/zerolog/log"
)

// Processor batches submitted trades and settles them on a fixed interval.
type Processor struct {
	service  *Service
	interval time.Duration // time between settlement cycles

	mu    sync.Mutex
	queue []types.Trade
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Submit queues a trade for the next cycle. Safe for concurrent use.
func (p *Processor) Submit(trade types.Trade) {
	p.mu.Lock()
	p.queue = append(p.queue, trade)
	p.mu.Unlock()
}

func (p *Processor) SubmitBatch(trades []types.Trade) {
	p.mu.Lock()
	p.queue = append(p.queue, trades...)
	p.mu.Unlock()
}

// Pending is the number of queued trades.
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush settles everything queued so far. It returns nil, nil when the queue
// is empty. A batch the cycle refused before journaling anything because ctx
// was done goes back on the queue.
func (p *Processor) Flush(ctx context.Context) (*CycleReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil, nil
	}
	// submission order depends on scheduling; the journal must not
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].TradeID < batch[j].TradeID })

	report, err := p.service.RunCycle(ctx, batch)
	if err != nil && report == nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		p.mu.Lock()
		p.queue = append(batch, p.queue...)
		p.mu.Unlock()
	}
	return report, err
}

// Start begins the settlement processing loop. Trades still queued when ctx
// is cancelled are left for a final Flush by the caller.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting settlement processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("pending", p.Pending()).Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			report, err := p.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("failed to run settlement cycle")
			}
			if report != nil {
				logger.Debug().
					Str("run_id", report.RunID).
					Int("settled", report.Settled).
					Int("failed", report.Failed).
					Msg("processed settlement cycle")
			}
		}
	}
}
