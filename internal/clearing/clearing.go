// Package clearing holds member cash accounts and settles net obligations
// against them with atomic debit/credit transfers.
package clearing

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/response"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
)

// ClearingHouse owns every account balance. A transfer verifies and applies
// both legs under one write lock, so no reader ever sees a half-applied
// transfer.
type ClearingHouse struct {
	mu       sync.RWMutex
	accounts map[types.AccountID]*ClearingAccount
}

// NewClearingHouse creates a clearing house with no accounts.
func NewClearingHouse() *ClearingHouse {
	return &ClearingHouse{
		accounts: make(map[types.AccountID]*ClearingAccount),
	}
}

// RegisterAccount opens an account with an initial balance.
func (h *ClearingHouse) RegisterAccount(id types.AccountID, balance int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.accounts[id]; exists {
		return fmt.Errorf("register account %d: %w", id, types.ErrDuplicateAccount)
	}
	h.accounts[id] = &ClearingAccount{AccountID: id, Balance: balance}

	log.Debug().
		Str("service", "clearing").
		Uint64("account_id", uint64(id)).
		Int64("balance", balance).
		Msg("registered clearing account")
	return nil
}

// Restore registers every account from a snapshot, typically one returned
// by Database.LoadAccounts.
func (h *ClearingHouse) Restore(accounts []ClearingAccount) error {
	for _, acct := range accounts {
		if err := h.RegisterAccount(acct.AccountID, acct.Balance); err != nil {
			return err
		}
	}
	return nil
}

// GetAccount returns a copy of the account.
func (h *ClearingHouse) GetAccount(id types.AccountID) (ClearingAccount, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	acct, ok := h.accounts[id]
	if !ok {
		return ClearingAccount{}, fmt.Errorf("get account %d: %w", id, types.ErrUnknownAccount)
	}
	return *acct, nil
}

// Accounts returns a snapshot of every account ordered by id.
func (h *ClearingHouse) Accounts() []ClearingAccount {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ClearingAccount, 0, len(h.accounts))
	for _, acct := range h.accounts {
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// TotalBalance sums every balance. Successful transfers never change it.
func (h *ClearingHouse) TotalBalance() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total int64
	for _, acct := range h.accounts {
		total = ticks.Add(total, acct.Balance)
	}
	return total
}

// ClearAll settles obligations in the order given. A failed obligation is
// reported in its result and never stops the rest of the batch.
func (h *ClearingHouse) ClearAll(obligations []types.NetObligation) []ClearingResult {
	logger := log.With().
		Str("service", "clearing").
		Int("obligations", len(obligations)).
		Logger()

	results := make([]ClearingResult, 0, len(obligations))
	failed := 0
	for _, ob := range obligations {
		result := ClearingResult{Obligation: ob.Clone(), Success: true}
		if err := h.transfer(ob); err != nil {
			failed++
			result.Success = false
			result.Err = err
			result.Error = response.FromError(err)

			logger.Warn().
				Err(err).
				Uint64("debtor_id", uint64(ob.Debtor())).
				Uint64("creditor_id", uint64(ob.Creditor())).
				Int64("amount", ob.Magnitude()).
				Msg("obligation failed to clear")
		} else {
			logger.Debug().
				Uint64("debtor_id", uint64(ob.Debtor())).
				Uint64("creditor_id", uint64(ob.Creditor())).
				Int64("amount", ob.Magnitude()).
				Msg("obligation cleared")
		}
		results = append(results, result)
	}

	logger.Info().
		Int("cleared", len(obligations)-failed).
		Int("failed", failed).
		Msg("completed clearing batch")

	return results
}

// transfer moves the obligation magnitude from debtor to creditor. Nothing
// is mutated unless every check passes.
func (h *ClearingHouse) transfer(ob types.NetObligation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	debtor, ok := h.accounts[ob.Debtor()]
	if !ok {
		return &TransferError{Account: ob.Debtor(), Err: types.ErrUnknownAccount}
	}
	creditor, ok := h.accounts[ob.Creditor()]
	if !ok {
		return &TransferError{Account: ob.Creditor(), Err: types.ErrUnknownAccount}
	}

	amount := ob.Magnitude()
	if amount == 0 {
		return nil
	}
	if debtor.Balance < amount {
		return &TransferError{
			Account:   debtor.AccountID,
			Required:  amount,
			Available: debtor.Balance,
			Err:       types.ErrInsufficientFunds,
		}
	}
	if debtor == creditor {
		return nil
	}
	if creditor.Balance > math.MaxInt64-amount {
		return &TransferError{Account: creditor.AccountID, Err: types.ErrBalanceOverflow}
	}

	debtor.Balance -= amount
	creditor.Balance += amount
	return nil
}
