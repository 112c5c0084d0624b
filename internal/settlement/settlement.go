// Package settlement runs a full settlement cycle over a batch of confirmed
// trades: netting, clearing, margin, default handling and journaling.
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/klear-settlement/internal/clearing"
	"github.com/ksred/klear-settlement/internal/journal"
	"github.com/ksred/klear-settlement/internal/margin"
	"github.com/ksred/klear-settlement/internal/netting"
	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/internal/waterfall"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// JournalStore persists newly recorded journal entries.
type JournalStore interface {
	AppendEntries(entries []journal.Entry) error
}

// AccountStore persists a balance snapshot.
type AccountStore interface {
	SaveAccounts(accounts []clearing.ClearingAccount) error
}

// CycleStore persists cycle summaries.
type CycleStore interface {
	SaveCycle(record *CycleRecord) error
}

type Option func(*Service)

// WithClock overrides the source of journal timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMarginTolerance sets how far a margin requirement may exceed the
// account balance before the account defaults.
func WithMarginTolerance(tolerance int64) Option {
	return func(s *Service) { s.tolerance = tolerance }
}

func WithJournalStore(store JournalStore) Option {
	return func(s *Service) { s.journalStore = store }
}

func WithAccountStore(store AccountStore) Option {
	return func(s *Service) { s.accountStore = store }
}

func WithCycleStore(store CycleStore) Option {
	return func(s *Service) { s.cycleStore = store }
}

// Service owns the engines for a settlement venue. Cycles run one at a time.
type Service struct {
	mu        sync.Mutex
	house     *clearing.ClearingHouse
	margins   *margin.Engine
	waterfall *waterfall.DefaultWaterfall
	journal   *journal.Journal
	tolerance int64
	clock     func() time.Time

	journalStore JournalStore
	accountStore AccountStore
	cycleStore   CycleStore
	persisted    uint64 // last journal sequence handed to journalStore
}

func NewService(
	house *clearing.ClearingHouse,
	margins *margin.Engine,
	wf *waterfall.DefaultWaterfall,
	j *journal.Journal,
	opts ...Option,
) *Service {
	s := &Service{
		house:     house,
		margins:   margins,
		waterfall: wf,
		journal:   j,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if last, ok := j.LastEntry(); ok {
		s.persisted = last.Sequence
	}
	return s
}

func (s *Service) Journal() *journal.Journal {
	return s.journal
}

func (s *Service) ClearingHouse() *clearing.ClearingHouse {
	return s.house
}

// RunCycle settles trades. Every trade in the returned report is terminal:
// SETTLED, or FAILED when it was invalid, its obligation could not clear, or
// one of its counterparties defaulted on margin.
//
// A batch containing a trade that is not PENDING is rejected as a whole, and
// ctx is only consulted before the first journal entry. A persistence error
// is returned together with the completed report.
func (s *Service) RunCycle(ctx context.Context, trades []types.Trade) (*CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &CycleReport{
		RunID:     "RUN_" + uuid.New().String(),
		StartedAt: s.clock(),
		Trades:    make([]types.Trade, len(trades)),
	}
	copy(report.Trades, trades)

	logger := log.With().
		Str("run_id", report.RunID).
		Str("service", "settlement").
		Logger()

	logger.Info().Int("trades", len(trades)).Msg("starting settlement cycle")

	// Nothing is journaled until the whole batch is accepted. From the first
	// entry on, the cycle runs to completion.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range report.Trades {
		trade := &report.Trades[i]
		if !trade.Status.CanTransition(types.StatusNetted) {
			logger.Warn().
				Uint64("trade_id", uint64(trade.TradeID)).
				Str("status", string(trade.Status)).
				Msg("rejected settlement batch")
			return nil, fmt.Errorf("%w: trade %d %q -> %s", types.ErrInvalidTransition, trade.TradeID, trade.Status, types.StatusNetted)
		}
	}

	failed := make(map[types.TradeID]bool)
	engine := netting.NewEngine()
	for i := range report.Trades {
		trade := &report.Trades[i]
		s.journal.Record(s.clock(), journal.TradeReceivedFrom(trade))
		if err := engine.AddTrade(trade); err != nil {
			logger.Warn().Err(err).Uint64("trade_id", uint64(trade.TradeID)).Msg("rejected trade")
			failed[trade.TradeID] = true
			continue
		}
		if err := trade.Advance(types.StatusNetted); err != nil {
			return nil, err
		}
	}

	report.Netting = engine.ComputeMultilateral()
	obligations := report.Netting.Obligations
	s.journal.Record(s.clock(), journal.NettingCompleted{
		ObligationCount: len(obligations),
		GrossBefore:     report.Netting.GrossBefore,
		GrossAfter:      report.Netting.GrossAfter,
		CancelledValue:  report.Netting.CancelledValue,
	})

	// Margin is pure; clearing owns account state. Neither reads the other.
	var g errgroup.Group
	g.Go(func() error {
		report.Clearing = s.house.ClearAll(obligations)
		return nil
	})
	g.Go(func() error {
		report.Margins = s.margins.ComputePortfolioMargin(obligations)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("settlement cycle %s: %w", report.RunID, err)
	}

	for _, r := range report.Clearing {
		ev := journal.ObligationCleared{
			Low:     r.Obligation.Pair.Low,
			High:    r.Obligation.Pair.High,
			Amount:  r.Obligation.Amount,
			Success: r.Success,
		}
		if !r.Success {
			ev.Reason = r.Error.Code
			for _, id := range r.Obligation.TradeIDs {
				failed[id] = true
			}
		}
		s.journal.Record(s.clock(), ev)
	}

	for _, req := range report.Margins {
		s.journal.Record(s.clock(), journal.MarginComputed{
			AccountID: req.AccountID,
			Initial:   req.Initial,
			Variation: req.Variation,
			Stress:    req.Stress,
			Total:     req.Total,
		})
	}

	if err := s.handleDefaults(report, failed); err != nil {
		return nil, err
	}

	for i := range report.Trades {
		trade := &report.Trades[i]
		steps := []types.SettlementStatus{types.StatusCleared, types.StatusSettled}
		if failed[trade.TradeID] {
			steps = []types.SettlementStatus{types.StatusFailed}
		}
		for _, next := range steps {
			if err := trade.Advance(next); err != nil {
				return nil, err
			}
		}
		if trade.Status == types.StatusSettled {
			report.Settled++
		} else {
			report.Failed++
		}
	}

	report.CompletedAt = s.clock()
	if last, ok := s.journal.LastEntry(); ok {
		report.LastSeq = last.Sequence
	}
	report.JournalHash = s.journal.LastHash()

	// The cycle has settled in memory either way; entries not yet persisted
	// go out with the next cycle.
	if err := s.persist(report); err != nil {
		logger.Error().Err(err).Msg("failed to persist settlement cycle")
		return report, err
	}

	logger.Info().
		Int("obligations", len(obligations)).
		Int("settled", report.Settled).
		Int("failed", report.Failed).
		Int("defaults", len(report.Defaults)).
		Uint64("journal_hash", report.JournalHash).
		Msg("settlement cycle completed")

	return report, nil
}

// handleDefaults runs every account whose requirement exceeds its balance by
// more than the tolerance through the waterfall, and fails the trades behind
// its remaining obligations.
func (s *Service) handleDefaults(report *CycleReport, failed map[types.TradeID]bool) error {
	for _, req := range report.Margins {
		acct, err := s.house.GetAccount(req.AccountID)
		if err != nil {
			// unknown accounts already failed in clearing
			continue
		}
		shortfall := ticks.Sub(req.Total, acct.Balance)
		if shortfall <= 0 || shortfall <= s.tolerance {
			continue
		}

		result, err := s.waterfall.AbsorbLoss(shortfall)
		if err != nil {
			return fmt.Errorf("absorb default of account %d: %w", req.AccountID, err)
		}
		s.journal.Record(s.clock(), journal.LossAbsorbed{
			AccountID: req.AccountID,
			Loss:      shortfall,
			Absorbed:  result.TotalAbsorbed,
			Shortfall: result.Shortfall,
		})
		report.Defaults = append(report.Defaults, Default{
			AccountID:   req.AccountID,
			Requirement: req.Total,
			Balance:     acct.Balance,
			Shortfall:   shortfall,
			Waterfall:   result,
		})
		for _, ob := range report.Netting.Obligations {
			if ob.Involves(req.AccountID) {
				for _, id := range ob.TradeIDs {
					failed[id] = true
				}
			}
		}

		log.Warn().
			Str("run_id", report.RunID).
			Str("service", "settlement").
			Uint64("account_id", uint64(req.AccountID)).
			Int64("requirement", req.Total).
			Int64("balance", acct.Balance).
			Int64("shortfall", shortfall).
			Msg("account defaulted on margin")
	}
	return nil
}

func (s *Service) persist(report *CycleReport) error {
	if s.journalStore != nil {
		entries := s.journal.Since(s.persisted)
		if err := s.journalStore.AppendEntries(entries); err != nil {
			return fmt.Errorf("persist journal: %w", err)
		}
		s.persisted = report.LastSeq
	}
	if s.accountStore != nil {
		if err := s.accountStore.SaveAccounts(s.house.Accounts()); err != nil {
			return fmt.Errorf("persist accounts: %w", err)
		}
	}
	if s.cycleStore != nil {
		record := &CycleRecord{
			RunID:          report.RunID,
			StartedAt:      report.StartedAt,
			CompletedAt:    report.CompletedAt,
			TradeCount:     len(report.Trades),
			Settled:        report.Settled,
			Failed:         report.Failed,
			Obligations:    len(report.Netting.Obligations),
			Defaults:       len(report.Defaults),
			GrossBefore:    report.Netting.GrossBefore,
			GrossAfter:     report.Netting.GrossAfter,
			CancelledValue: report.Netting.CancelledValue,
			LastSequence:   report.LastSeq,
			JournalHash:    fmt.Sprintf("%016x", report.JournalHash),
		}
		if err := s.cycleStore.SaveCycle(record); err != nil {
			return fmt.Errorf("persist cycle: %w", err)
		}
	}
	return nil
}
