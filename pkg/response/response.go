// Package response turns engine errors into stable, serializable codes for
// result records such as clearing and replay outcomes.
package response

import (
	"errors"

	"github.com/ksred/klear-settlement/internal/types"
	"gorm.io/gorm"
)

// Error is the serializable form of a failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Common error codes
const (
	ErrCodeDuplicateAccount  = "DUPLICATE_ACCOUNT"
	ErrCodeUnknownAccount    = "UNKNOWN_ACCOUNT"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrCodeBalanceOverflow   = "BALANCE_OVERFLOW"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeInvalidTrade      = "INVALID_TRADE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidLoss       = "INVALID_LOSS"
	ErrCodeReplayMismatch    = "REPLAY_MISMATCH"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

var codes = []struct {
	target error
	code   string
}{
	{types.ErrDuplicateAccount, ErrCodeDuplicateAccount},
	{types.ErrUnknownAccount, ErrCodeUnknownAccount},
	{types.ErrInsufficientFunds, ErrCodeInsufficientFunds},
	{types.ErrBalanceOverflow, ErrCodeBalanceOverflow},
	{types.ErrInvalidConfig, ErrCodeInvalidConfig},
	{types.ErrInvalidTrade, ErrCodeInvalidTrade},
	{types.ErrInvalidTransition, ErrCodeInvalidTransition},
	{types.ErrInvalidLoss, ErrCodeInvalidLoss},
	{gorm.ErrRecordNotFound, ErrCodeNotFound},
}

// FromError maps err to its code. Unrecognized errors become INTERNAL_ERROR;
// nil maps to nil.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return &Error{Code: c.code, Message: err.Error()}
		}
	}
	return &Error{Code: ErrCodeInternalError, Message: err.Error()}
}

// New builds an Error with an explicit code.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
