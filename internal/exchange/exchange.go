// Package exchange simulates the external ledger that feeds confirmed
// trades into settlement. Given the same seed it produces the same trades.
package exchange

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/contenthash"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
)

// ErrExecutionFailed is returned when a venue rejects an execution.
var ErrExecutionFailed = errors.New("execution failed")

// Venue is a mock execution venue.
type Venue struct {
	ID              string
	Name            string
	MinLatency      int // in milliseconds
	MaxLatency      int
	LiquidityFactor float64 // 0-1, share of an order the venue can fill
	SuccessRate     float64 // 0-1, probability of a successful execution
}

var mockVenues = []*Venue{
	{
		ID:              "EXCH1",
		Name:            "Primary Exchange",
		MinLatency:      5,
		MaxLatency:      30,
		LiquidityFactor: 0.9,
		SuccessRate:     0.95,
	},
	{
		ID:              "EXCH2",
		Name:            "Secondary Exchange",
		MinLatency:      10,
		MaxLatency:      50,
		LiquidityFactor: 0.7,
		SuccessRate:     0.90,
	},
	{
		ID:              "EXCH3",
		Name:            "Regional Exchange",
		MinLatency:      15,
		MaxLatency:      70,
		LiquidityFactor: 0.5,
		SuccessRate:     0.85,
	},
	{
		ID:              "EXCH4",
		Name:            "Dark Pool",
		MinLatency:      20,
		MaxLatency:      100,
		LiquidityFactor: 0.3,
		SuccessRate:     0.75,
	},
}

// Venues returns a copy of the mock venues.
func Venues() []Venue {
	out := make([]Venue, len(mockVenues))
	for i, v := range mockVenues {
		out[i] = *v
	}
	return out
}

// Instrument is a tradable symbol with its reference price in ticks.
type Instrument struct {
	Ticker string
	Symbol types.SymbolHash
	Price  int64
}

// order is what the feed asks a venue to execute.
type order struct {
	instrument Instrument
	buyer      types.AccountID
	seller     types.AccountID
	quantity   int64
}

// Feed generates confirmed trades between accounts 1..n. It is not safe for
// concurrent use.
type Feed struct {
	rng         *rand.Rand
	venues      []*Venue
	instruments []Instrument
	accounts    int
	nextID      types.TradeID
	clock       time.Time
}

// NewFeed builds a feed over tickers. Tickers missing from prices get a
// seeded reference price.
func NewFeed(seed int64, tickers []string, prices map[string]int64, accounts int, start time.Time) (*Feed, error) {
	if accounts < 2 {
		return nil, fmt.Errorf("%w: feed needs at least two accounts, got %d", types.ErrInvalidConfig, accounts)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: feed needs at least one symbol", types.ErrInvalidConfig)
	}

	rng := rand.New(rand.NewSource(seed))
	instruments := make([]Instrument, len(tickers))
	for i, ticker := range tickers {
		price, ok := prices[ticker]
		if !ok {
			price = 1_000 + rng.Int63n(49_000)
		}
		if price <= 0 {
			return nil, fmt.Errorf("%w: price %d for %s must be positive", types.ErrInvalidConfig, price, ticker)
		}
		instruments[i] = Instrument{
			Ticker: ticker,
			Symbol: types.SymbolHash(contenthash.Symbol(ticker)),
			Price:  price,
		}
	}

	return &Feed{
		rng:         rng,
		venues:      mockVenues,
		instruments: instruments,
		accounts:    accounts,
		nextID:      1,
		clock:       start,
	}, nil
}

func (f *Feed) Instruments() []Instrument {
	return append([]Instrument(nil), f.instruments...)
}

// Next produces one confirmed trade, trying up to three venues.
func (f *Feed) Next() (types.Trade, error) {
	o := f.newOrder()
	logger := log.With().
		Str("component", "exchange_feed").
		Str("symbol", o.instrument.Ticker).
		Int64("quantity", o.quantity).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		venue := f.selectVenue()
		trade, err := f.execute(venue, o)
		if err != nil {
			lastErr = err
			logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Str("venue_id", venue.ID).
				Msg("execution attempt failed")
			continue
		}
		return trade, nil
	}

	logger.Warn().Msg("failed to execute order on any venue")
	return types.Trade{}, lastErr
}

// Generate returns n trades, skipping orders no venue would execute.
func (f *Feed) Generate(n int) ([]types.Trade, error) {
	trades := make([]types.Trade, 0, n)
	misses := 0
	for len(trades) < n {
		trade, err := f.Next()
		if err != nil {
			misses++
			if misses > n+10 {
				return trades, fmt.Errorf("generated %d of %d trades: %w", len(trades), n, err)
			}
			continue
		}
		trades = append(trades, trade)
	}

	log.Info().
		Str("component", "exchange_feed").
		Int("trades", len(trades)).
		Int("failed_orders", misses).
		Msg("generated trade batch")

	return trades, nil
}

func (f *Feed) newOrder() order {
	buyer := types.AccountID(f.rng.Intn(f.accounts) + 1)
	seller := types.AccountID(f.rng.Intn(f.accounts-1) + 1)
	if seller >= buyer {
		seller++
	}
	return order{
		instrument: f.instruments[f.rng.Intn(len(f.instruments))],
		buyer:      buyer,
		seller:     seller,
		quantity:   int64(f.rng.Intn(100) + 1),
	}
}

// selectVenue picks a venue weighted by liquidity and success rate.
func (f *Feed) selectVenue() *Venue {
	total := 0.0
	for _, v := range f.venues {
		total += v.LiquidityFactor * v.SuccessRate
	}

	choice := f.rng.Float64() * total
	current := 0.0
	for _, v := range f.venues {
		current += v.LiquidityFactor * v.SuccessRate
		if current >= choice {
			return v
		}
	}
	return f.venues[0]
}

func (f *Feed) execute(v *Venue, o order) (types.Trade, error) {
	latency := f.rng.Intn(v.MaxLatency-v.MinLatency+1) + v.MinLatency
	f.clock = f.clock.Add(time.Duration(latency) * time.Millisecond)

	if f.rng.Float64() > v.SuccessRate {
		return types.Trade{}, fmt.Errorf("%w on venue %s", ErrExecutionFailed, v.ID)
	}

	// +/-2% around the reference price, in basis points
	ref := o.instrument.Price
	price := ticks.Add(ticks.MulDiv(ref, 9_800, 10_000), ticks.MulDiv(ref, f.rng.Int63n(401), 10_000))
	if price <= 0 {
		price = 1
	}

	quantity := o.quantity
	if f.rng.Float64() > v.LiquidityFactor {
		quantity = int64(float64(quantity) * v.LiquidityFactor)
		if quantity == 0 {
			return types.Trade{}, fmt.Errorf("%w: insufficient liquidity on venue %s", ErrExecutionFailed, v.ID)
		}
	}

	trade := types.Trade{
		TradeID:   f.nextID,
		Symbol:    o.instrument.Symbol,
		BuyerID:   o.buyer,
		SellerID:  o.seller,
		Price:     price,
		Quantity:  quantity,
		Timestamp: f.clock,
		Status:    types.StatusPending,
	}
	f.nextID++

	log.Debug().
		Str("component", "exchange_feed").
		Str("venue_id", v.ID).
		Uint64("trade_id", uint64(trade.TradeID)).
		Int64("price", trade.Price).
		Int64("quantity", trade.Quantity).
		Msg("trade confirmed")

	return trade, nil
}
