package journal

import (
	"encoding/json"
	"fmt"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/contenthash"
)

// EventKind tags the event variant. The numeric value is part of every
// entry hash, so existing values must never be renumbered.
type EventKind uint8

const (
	KindTradeReceived EventKind = iota + 1
	KindNettingCompleted
	KindObligationCleared
	KindMarginComputed
	KindLossAbsorbed
)

func (k EventKind) String() string {
	switch k {
	case KindTradeReceived:
		return "TRADE_RECEIVED"
	case KindNettingCompleted:
		return "NETTING_COMPLETED"
	case KindObligationCleared:
		return "OBLIGATION_CLEARED"
	case KindMarginComputed:
		return "MARGIN_COMPUTED"
	case KindLossAbsorbed:
		return "LOSS_ABSORBED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// Event is a journaled domain event. The variants are closed: only types in
// this package implement it.
type Event interface {
	Kind() EventKind
	hash(h *contenthash.Hasher)
}

type TradeReceived struct {
	TradeID  types.TradeID    `json:"trade_id"`
	Symbol   types.SymbolHash `json:"symbol_hash"`
	BuyerID  types.AccountID  `json:"buyer_id"`
	SellerID types.AccountID  `json:"seller_id"`
	Price    int64            `json:"price"`
	Quantity int64            `json:"quantity"`
}

// TradeReceivedFrom copies the economic fields of a trade.
func TradeReceivedFrom(t *types.Trade) TradeReceived {
	return TradeReceived{
		TradeID:  t.TradeID,
		Symbol:   t.Symbol,
		BuyerID:  t.BuyerID,
		SellerID: t.SellerID,
		Price:    t.Price,
		Quantity: t.Quantity,
	}
}

func (TradeReceived) Kind() EventKind { return KindTradeReceived }

func (e TradeReceived) hash(h *contenthash.Hasher) {
	h.Uint64(uint64(e.TradeID)).
		Uint64(uint64(e.Symbol)).
		Uint64(uint64(e.BuyerID)).
		Uint64(uint64(e.SellerID)).
		Int64(e.Price).
		Int64(e.Quantity)
}

type NettingCompleted struct {
	ObligationCount int   `json:"obligation_count"`
	GrossBefore     int64 `json:"gross_before"`
	GrossAfter      int64 `json:"gross_after"`
	CancelledValue  int64 `json:"cancelled_value"`
}

func (NettingCompleted) Kind() EventKind { return KindNettingCompleted }

func (e NettingCompleted) hash(h *contenthash.Hasher) {
	h.Uint64(uint64(e.ObligationCount)).
		Int64(e.GrossBefore).
		Int64(e.GrossAfter).
		Int64(e.CancelledValue)
}

// ObligationCleared records a transfer attempt. Reason is the error code
// when Success is false.
type ObligationCleared struct {
	Low     types.AccountID `json:"low_id"`
	High    types.AccountID `json:"high_id"`
	Amount  int64           `json:"amount"`
	Success bool            `json:"success"`
	Reason  string          `json:"reason,omitempty"`
}

func (ObligationCleared) Kind() EventKind { return KindObligationCleared }

func (e ObligationCleared) hash(h *contenthash.Hasher) {
	h.Uint64(uint64(e.Low)).
		Uint64(uint64(e.High)).
		Int64(e.Amount).
		Bool(e.Success).
		String(e.Reason)
}

type MarginComputed struct {
	AccountID types.AccountID `json:"account_id"`
	Initial   int64           `json:"initial"`
	Variation int64           `json:"variation"`
	Stress    int64           `json:"stress"`
	Total     int64           `json:"total"`
}

func (MarginComputed) Kind() EventKind { return KindMarginComputed }

func (e MarginComputed) hash(h *contenthash.Hasher) {
	h.Uint64(uint64(e.AccountID)).
		Int64(e.Initial).
		Int64(e.Variation).
		Int64(e.Stress).
		Int64(e.Total)
}

type LossAbsorbed struct {
	AccountID types.AccountID `json:"account_id"`
	Loss      int64           `json:"loss"`
	Absorbed  int64           `json:"absorbed"`
	Shortfall int64           `json:"shortfall"`
}

func (LossAbsorbed) Kind() EventKind { return KindLossAbsorbed }

func (e LossAbsorbed) hash(h *contenthash.Hasher) {
	h.Uint64(uint64(e.AccountID)).
		Int64(e.Loss).
		Int64(e.Absorbed).
		Int64(e.Shortfall)
}

// EventHash fingerprints an event's kind and payload. A nil event hashes
// as kind zero with no payload.
func EventHash(ev Event) uint64 {
	h := contenthash.New()
	writeEvent(h, ev)
	return h.Sum64()
}

func writeEvent(h *contenthash.Hasher, ev Event) {
	h.Byte(byte(kindOf(ev)))
	if ev != nil {
		ev.hash(h)
	}
}

func kindOf(ev Event) EventKind {
	if ev == nil {
		return 0
	}
	return ev.Kind()
}

func decodeEvent(kind EventKind, payload []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch kind {
	case KindTradeReceived:
		var e TradeReceived
		err = json.Unmarshal(payload, &e)
		ev = e
	case KindNettingCompleted:
		var e NettingCompleted
		err = json.Unmarshal(payload, &e)
		ev = e
	case KindObligationCleared:
		var e ObligationCleared
		err = json.Unmarshal(payload, &e)
		ev = e
	case KindMarginComputed:
		var e MarginComputed
		err = json.Unmarshal(payload, &e)
		ev = e
	case KindLossAbsorbed:
		var e LossAbsorbed
		err = json.Unmarshal(payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event kind %d", uint8(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return ev, nil
}
