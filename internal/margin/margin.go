// Package margin computes initial, variation and stress margin for net
// obligations and for each member's whole portfolio of obligations.
package margin

import (
	"math"
	"sort"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/contenthash"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// Engine is stateless after construction and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an engine that owns a copy of it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prices := make(map[types.SymbolHash]int64, len(cfg.ReferencePrices))
	for symbol, price := range cfg.ReferencePrices {
		prices[symbol] = price
	}
	cfg.ReferencePrices = prices
	cfg.StressScenarios = append([]decimal.Decimal(nil), cfg.StressScenarios...)
	return &Engine{cfg: cfg}, nil
}

// exposure is an account's side of one or more obligations: the cash it owes
// (negative when owed) and its signed position per symbol.
type exposure struct {
	owed      int64
	positions map[types.SymbolHash]int64
}

func (x *exposure) add(ob types.NetObligation, account types.AccountID) {
	sign := ob.Perspective(account)
	x.owed = ticks.Add(x.owed, ticks.Mul(ob.Amount, sign))
	for _, p := range ob.Positions {
		x.positions[p.Symbol] = ticks.Add(x.positions[p.Symbol], ticks.Mul(p.Quantity, sign))
	}
}

// ComputeObligationMargin charges the obligation's debtor.
func (e *Engine) ComputeObligationMargin(ob types.NetObligation) MarginRequirement {
	account := ob.Debtor()
	x := exposure{positions: make(map[types.SymbolHash]int64)}
	x.add(ob, account)
	return e.requirement(account, &x)
}

// ComputeAccountMargin aggregates every obligation involving id into one
// exposure before applying the margin formulas.
func (e *Engine) ComputeAccountMargin(id types.AccountID, obligations []types.NetObligation) MarginRequirement {
	x := exposure{positions: make(map[types.SymbolHash]int64)}
	for _, ob := range obligations {
		if ob.Involves(id) {
			x.add(ob, id)
		}
	}
	return e.requirement(id, &x)
}

// ComputePortfolioMargin returns one requirement per account appearing in
// obligations, ordered by account id.
func (e *Engine) ComputePortfolioMargin(obligations []types.NetObligation) []MarginRequirement {
	exposures := make(map[types.AccountID]*exposure)
	get := func(id types.AccountID) *exposure {
		x, ok := exposures[id]
		if !ok {
			x = &exposure{positions: make(map[types.SymbolHash]int64)}
			exposures[id] = x
		}
		return x
	}
	for _, ob := range obligations {
		get(ob.Pair.Low).add(ob, ob.Pair.Low)
		if ob.Pair.High != ob.Pair.Low {
			get(ob.Pair.High).add(ob, ob.Pair.High)
		}
	}

	ids := make([]types.AccountID, 0, len(exposures))
	for id := range exposures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	reqs := make([]MarginRequirement, 0, len(ids))
	var total int64
	for _, id := range ids {
		req := e.requirement(id, exposures[id])
		total = ticks.Add(total, req.Total)
		reqs = append(reqs, req)
	}

	log.Info().
		Str("service", "margin").
		Int("accounts", len(reqs)).
		Int64("total_margin", total).
		Msg("computed portfolio margin")

	return reqs
}

func (e *Engine) requirement(account types.AccountID, x *exposure) MarginRequirement {
	mark := e.markToMarket(x)

	req := MarginRequirement{
		AccountID: account,
		Initial:   scale(ticks.Abs(x.owed), e.cfg.InitialRate),
		Variation: scale(ticks.Abs(ticks.Sub(mark, x.owed)), e.cfg.VariationRate),
		Stress:    e.stress(mark),
	}
	req.Total = ticks.Add(ticks.Add(req.Initial, req.Variation), req.Stress)
	if x.owed != 0 || len(x.positions) > 0 {
		req.Total = ticks.SelectMax(req.Total, e.cfg.Floor)
	}
	req.ContentHash = contenthash.New().
		Uint64(uint64(req.AccountID)).
		Int64(req.Initial).
		Int64(req.Variation).
		Int64(req.Stress).
		Int64(req.Total).
		Sum64()

	log.Debug().
		Str("service", "margin").
		Uint64("account_id", uint64(account)).
		Int64("owed", x.owed).
		Int64("mark", mark).
		Int64("initial", req.Initial).
		Int64("variation", req.Variation).
		Int64("stress", req.Stress).
		Int64("total", req.Total).
		Msg("computed margin requirement")

	return req
}

// markToMarket values positions at reference prices, summing in symbol
// order. An exposure with no open position, or holding any symbol without a
// reference price, is marked at its trade-implied value: the cash it owes.
func (e *Engine) markToMarket(x *exposure) int64 {
	symbols := make([]types.SymbolHash, 0, len(x.positions))
	for symbol, qty := range x.positions {
		if qty != 0 {
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		return x.owed
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	var mark int64
	for _, symbol := range symbols {
		price, ok := e.cfg.ReferencePrices[symbol]
		if !ok {
			return x.owed
		}
		mark = ticks.Add(mark, ticks.Mul(x.positions[symbol], price))
	}
	return mark
}

// stress is the worst absolute move of mark across all scenarios.
func (e *Engine) stress(mark int64) int64 {
	base := decimal.NewFromInt(mark)
	var worst int64
	for _, shock := range e.cfg.StressScenarios {
		move := toTicks(base.Mul(shock).Sub(base).Abs())
		worst = ticks.SelectMax(worst, move)
	}
	return worst
}

// scale returns floor(v * rate) for non-negative v, saturating.
func scale(v int64, rate decimal.Decimal) int64 {
	return toTicks(decimal.NewFromInt(v).Mul(rate))
}

func toTicks(d decimal.Decimal) int64 {
	d = d.Floor()
	if d.GreaterThan(maxInt64) {
		return math.MaxInt64
	}
	if d.LessThan(minInt64) {
		return math.MinInt64
	}
	return d.IntPart()
}
