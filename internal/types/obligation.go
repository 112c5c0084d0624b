package types

import "github.com/ksred/klear-settlement/pkg/ticks"

// Pair is an unordered counterparty pair stored as (Low, High).
type Pair struct {
	Low  AccountID `json:"low_id"`
	High AccountID `json:"high_id"`
}

// CanonicalPair returns the pair key for a and b. The result does not depend
// on argument order.
func CanonicalPair(a, b AccountID) Pair {
	if a <= b {
		return Pair{Low: a, High: b}
	}
	return Pair{Low: b, High: a}
}

// Less orders pairs by Low, then High.
func (p Pair) Less(o Pair) bool {
	if p.Low != o.Low {
		return p.Low < o.Low
	}
	return p.High < o.High
}

// Position is a signed per-symbol quantity seen from the pair's Low account:
// positive means Low is the net buyer.
type Position struct {
	Symbol   SymbolHash `json:"symbol_hash"`
	Quantity int64      `json:"quantity"`
}

// NetObligation is the net cash owed between the two members of a pair.
//
// Amount is signed from Low's perspective: positive means Low owes High,
// negative means High owes Low. Positions and TradeIDs are kept sorted.
type NetObligation struct {
	Pair      Pair       `json:"pair"`
	Amount    int64      `json:"amount"`
	Positions []Position `json:"positions,omitempty"`
	TradeIDs  []TradeID  `json:"trade_ids"`
}

// Debtor is the account that pays.
func (o NetObligation) Debtor() AccountID {
	if o.Amount >= 0 {
		return o.Pair.Low
	}
	return o.Pair.High
}

// Creditor is the account that receives.
func (o NetObligation) Creditor() AccountID {
	if o.Amount >= 0 {
		return o.Pair.High
	}
	return o.Pair.Low
}

// Magnitude is the unsigned transfer amount.
func (o NetObligation) Magnitude() int64 {
	return ticks.Abs(o.Amount)
}

// Involves reports whether id is a member of the pair.
func (o NetObligation) Involves(id AccountID) bool {
	return o.Pair.Low == id || o.Pair.High == id
}

// Perspective returns +1 when id is Low and -1 when id is High, so that
// Amount and position quantities can be read from id's side.
func (o NetObligation) Perspective(id AccountID) int64 {
	if id == o.Pair.Low {
		return 1
	}
	return -1
}

// Clone returns a deep copy.
func (o NetObligation) Clone() NetObligation {
	c := o
	c.Positions = append([]Position(nil), o.Positions...)
	c.TradeIDs = append([]TradeID(nil), o.TradeIDs...)
	return c
}
