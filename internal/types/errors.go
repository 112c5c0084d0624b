package types

import "errors"

var (
	ErrDuplicateAccount  = errors.New("duplicate account")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrInvalidTrade      = errors.New("invalid trade")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidLoss       = errors.New("invalid loss")
)
