// Package netting reduces confirmed trades to net cash obligations between
// clearing members, first per counterparty pair and then across the whole
// member graph by cancelling cycles.
package netting

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
)

// Engine accumulates trades for one netting cycle.
//
// The accumulator is guarded by a mutex so that concurrent ingestion is
// serialized into a single writer.
type Engine struct {
	mu           sync.Mutex
	accumulators map[types.Pair]*accumulator
	trades       int
}

// NewEngine creates an empty netting engine.
func NewEngine() *Engine {
	return &Engine{
		accumulators: make(map[types.Pair]*accumulator),
	}
}

// AddTrade folds a trade into its pair's running net. A trade whose buyer is
// the pair's Low account increases the amount Low owes; any other trade
// decreases it. Accumulation saturates instead of overflowing.
func (e *Engine) AddTrade(trade *types.Trade) error {
	if err := trade.Validate(); err != nil {
		return err
	}

	pair := types.CanonicalPair(trade.BuyerID, trade.SellerID)
	notional := ticks.Mul(trade.Price, trade.Quantity)
	quantity := trade.Quantity
	if trade.BuyerID != pair.Low {
		notional = ticks.Neg(notional)
		quantity = -quantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc, ok := e.accumulators[pair]
	if !ok {
		acc = &accumulator{positions: make(map[types.SymbolHash]int64)}
		e.accumulators[pair] = acc
	}
	acc.amount = ticks.Add(acc.amount, notional)
	acc.positions[trade.Symbol] = ticks.Add(acc.positions[trade.Symbol], quantity)
	acc.tradeIDs = append(acc.tradeIDs, trade.TradeID)
	e.trades++

	log.Debug().
		Str("service", "netting").
		Uint64("trade_id", uint64(trade.TradeID)).
		Uint64("low_id", uint64(pair.Low)).
		Uint64("high_id", uint64(pair.High)).
		Int64("notional", notional).
		Int64("running_net", acc.amount).
		Msg("added trade to netting")

	return nil
}

// AddTrades adds each trade in order and stops at the first invalid one.
func (e *Engine) AddTrades(trades []types.Trade) error {
	for i := range trades {
		if err := e.AddTrade(&trades[i]); err != nil {
			return fmt.Errorf("add trade %d: %w", trades[i].TradeID, err)
		}
	}
	return nil
}

// ComputeNet emits one obligation per pair whose net amount is non-zero,
// ordered by pair.
func (e *Engine) ComputeNet() []types.NetObligation {
	e.mu.Lock()
	defer e.mu.Unlock()

	obligations := make([]types.NetObligation, 0, len(e.accumulators))
	for pair, acc := range e.accumulators {
		if acc.amount == 0 {
			continue
		}
		obligations = append(obligations, acc.obligation(pair))
	}
	sortObligations(obligations)

	log.Info().
		Str("service", "netting").
		Int("pairs", len(e.accumulators)).
		Int("trades", e.trades).
		Int("obligations", len(obligations)).
		Msg("completed bilateral netting")

	return obligations
}

// ComputeMultilateral nets bilaterally, then cancels cycles across pairs.
func (e *Engine) ComputeMultilateral() *MultilateralResult {
	return MultilateralNet(e.ComputeNet())
}

// NetAmount returns what a owes b after bilateral netting; negative means b
// owes a. Fully offset or unknown pairs return zero.
func (e *Engine) NetAmount(a, b types.AccountID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	pair := types.CanonicalPair(a, b)
	acc, ok := e.accumulators[pair]
	if !ok {
		return 0
	}
	if a == pair.Low {
		return acc.amount
	}
	return ticks.Neg(acc.amount)
}

// TradeCount is the number of trades accumulated since the last Reset.
func (e *Engine) TradeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trades
}

// Reset clears all accumulated state for the next netting cycle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accumulators = make(map[types.Pair]*accumulator)
	e.trades = 0
}

func (acc *accumulator) obligation(pair types.Pair) types.NetObligation {
	positions := make([]types.Position, 0, len(acc.positions))
	for symbol, qty := range acc.positions {
		if qty == 0 {
			continue
		}
		positions = append(positions, types.Position{Symbol: symbol, Quantity: qty})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	tradeIDs := append([]types.TradeID(nil), acc.tradeIDs...)
	sort.Slice(tradeIDs, func(i, j int) bool { return tradeIDs[i] < tradeIDs[j] })

	return types.NetObligation{
		Pair:      pair,
		Amount:    acc.amount,
		Positions: positions,
		TradeIDs:  tradeIDs,
	}
}

func sortObligations(obligations []types.NetObligation) {
	sort.Slice(obligations, func(i, j int) bool {
		return obligations[i].Pair.Less(obligations[j].Pair)
	})
}

// GrossValue sums obligation magnitudes, saturating.
func GrossValue(obligations []types.NetObligation) int64 {
	var gross int64
	for _, ob := range obligations {
		gross = ticks.Add(gross, ob.Magnitude())
	}
	return gross
}

// NetPositions returns each account's net cash position across obligations:
// positive means the account is owed money overall.
func NetPositions(obligations []types.NetObligation) map[types.AccountID]int64 {
	positions := make(map[types.AccountID]int64)
	for _, ob := range obligations {
		m := ob.Magnitude()
		positions[ob.Debtor()] = ticks.Sub(positions[ob.Debtor()], m)
		positions[ob.Creditor()] = ticks.Add(positions[ob.Creditor()], m)
	}
	return positions
}
