package settlement

import (
	"time"

	"github.com/ksred/klear-settlement/internal/clearing"
	"github.com/ksred/klear-settlement/internal/margin"
	"github.com/ksred/klear-settlement/internal/netting"
	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/internal/waterfall"
	"gorm.io/gorm"
)

// CycleReport is everything one settlement cycle produced.
type CycleReport struct {
	RunID       string                      `json:"run_id"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt time.Time                   `json:"completed_at"`
	Trades      []types.Trade               `json:"trades"`
	Netting     *netting.MultilateralResult `json:"netting"`
	Clearing    []clearing.ClearingResult   `json:"clearing"`
	Margins     []margin.MarginRequirement  `json:"margins"`
	Defaults    []Default                   `json:"defaults,omitempty"`
	Settled     int                         `json:"settled"`
	Failed      int                         `json:"failed"`
	LastSeq     uint64                      `json:"last_sequence"`
	JournalHash uint64                      `json:"journal_hash"`
}

// Default records an account whose margin requirement exceeded its balance
// by more than the configured tolerance.
type Default struct {
	AccountID   types.AccountID  `json:"account_id"`
	Requirement int64            `json:"requirement"`
	Balance     int64            `json:"balance"`
	Shortfall   int64            `json:"shortfall"`
	Waterfall   waterfall.Result `json:"waterfall"`
}

// CycleRecord is the persisted summary of a cycle.
type CycleRecord struct {
	gorm.Model     `json:"-"`
	RunID          string    `gorm:"uniqueIndex" json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	TradeCount     int       `json:"trade_count"`
	Settled        int       `json:"settled"`
	Failed         int       `json:"failed"`
	Obligations    int       `json:"obligations"`
	Defaults       int       `json:"defaults"`
	GrossBefore    int64     `json:"gross_before"`
	GrossAfter     int64     `json:"gross_after"`
	CancelledValue int64     `json:"cancelled_value"`
	LastSequence   uint64    `json:"last_sequence"`
	JournalHash    string    `gorm:"size:16" json:"journal_hash"` // hex
}

func (CycleRecord) TableName() string {
	return "settlement_cycles"
}
