package netting

import (
	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/ticks"
)

// accumulator holds the running net for one canonical pair. Amount and
// quantities are signed from the pair's Low account.
type accumulator struct {
	amount    int64
	positions map[types.SymbolHash]int64
	tradeIDs  []types.TradeID
}

// CancelledCycle is one closed loop removed by multilateral netting.
// Accounts lists the cycle in traversal order; Amount was subtracted from
// every edge on it.
type CancelledCycle struct {
	Accounts []types.AccountID `json:"accounts"`
	Amount   int64             `json:"amount"`
}

// Value is the gross exposure the cycle removed.
func (c CancelledCycle) Value() int64 {
	return ticks.Mul(c.Amount, int64(len(c.Accounts)))
}

// MultilateralResult is the outcome of cycle cancellation.
//
// GrossBefore == GrossAfter + CancelledValue holds for every result.
type MultilateralResult struct {
	Obligations    []types.NetObligation `json:"obligations"`
	Cycles         []CancelledCycle      `json:"cycles"`
	GrossBefore    int64                 `json:"gross_before"`
	GrossAfter     int64                 `json:"gross_after"`
	CancelledValue int64                 `json:"cancelled_value"`
}
