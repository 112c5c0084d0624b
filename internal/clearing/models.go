package clearing

import (
	"fmt"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/response"
)

// ClearingAccount is a member's cash balance at the clearing house. The same
// struct is the row persisted by Database.
type ClearingAccount struct {
	AccountID types.AccountID `gorm:"primaryKey;autoIncrement:false" json:"account_id"`
	Balance   int64           `json:"balance"`
}

func (ClearingAccount) TableName() string {
	return "clearing_accounts"
}

// ClearingResult is the outcome of settling one net obligation. Err keeps the
// Go error for callers using errors.Is; Error is its serializable form.
type ClearingResult struct {
	Obligation types.NetObligation `json:"obligation"`
	Success    bool                `json:"success"`
	Err        error               `json:"-"`
	Error      *response.Error     `json:"error,omitempty"`
}

// TransferError describes a rejected transfer. It unwraps to one of the
// sentinel errors in the types package.
type TransferError struct {
	Account   types.AccountID
	Required  int64
	Available int64
	Err       error
}

func (e *TransferError) Error() string {
	if e.Err == types.ErrInsufficientFunds {
		return fmt.Sprintf("account %d: %v: required %d, available %d", e.Account, e.Err, e.Required, e.Available)
	}
	return fmt.Sprintf("account %d: %v", e.Account, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
