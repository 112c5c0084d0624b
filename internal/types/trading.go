package types

import (
	"fmt"
	"time"
)

// AccountID identifies a clearing member account.
type AccountID uint64

// TradeID identifies a confirmed trade supplied by the external ledger.
type TradeID uint64

// SymbolHash identifies an instrument by the content hash of its ticker.
type SymbolHash uint64

// SettlementStatus is the lifecycle state of a trade.
type SettlementStatus string

const (
	StatusPending SettlementStatus = "PENDING"
	StatusNetted  SettlementStatus = "NETTED"
	StatusCleared SettlementStatus = "CLEARED"
	StatusSettled SettlementStatus = "SETTLED"
	StatusFailed  SettlementStatus = "FAILED"
)

// IsTerminal reports whether no further transition can leave s.
func (s SettlementStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed
}

// CanTransition reports whether s may move to next. The lifecycle only moves
// one step forward (PENDING -> NETTED -> CLEARED -> SETTLED), except that any
// non-terminal state may fail.
func (s SettlementStatus) CanTransition(next SettlementStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusNetted
	case StatusNetted:
		return next == StatusCleared
	case StatusCleared:
		return next == StatusSettled
	}
	return false
}

// Trade is a confirmed trade between two counterparties. Price and quantity
// are integer ticks.
type Trade struct {
	TradeID   TradeID          `json:"trade_id"`
	Symbol    SymbolHash       `json:"symbol_hash"`
	BuyerID   AccountID        `json:"buyer_id"`
	SellerID  AccountID        `json:"seller_id"`
	Price     int64            `json:"price"`
	Quantity  int64            `json:"quantity"`
	Timestamp time.Time        `json:"timestamp"`
	Status    SettlementStatus `json:"status"`
}

// Validate checks arithmetic sanity only. Trade authenticity is the
// responsibility of the ledger that produced it.
func (t *Trade) Validate() error {
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: trade %d quantity %d must be positive", ErrInvalidTrade, t.TradeID, t.Quantity)
	}
	if t.Price <= 0 {
		return fmt.Errorf("%w: trade %d price %d must be positive", ErrInvalidTrade, t.TradeID, t.Price)
	}
	return nil
}

// Advance moves the trade to next, enforcing the lifecycle.
func (t *Trade) Advance(next SettlementStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: trade %d %s -> %s", ErrInvalidTransition, t.TradeID, t.Status, next)
	}
	t.Status = next
	return nil
}
