package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ksred/klear-settlement/internal/clearing"
	"github.com/ksred/klear-settlement/internal/config"
	"github.com/ksred/klear-settlement/internal/database"
	"github.com/ksred/klear-settlement/internal/exchange"
	"github.com/ksred/klear-settlement/internal/journal"
	"github.com/ksred/klear-settlement/internal/margin"
	"github.com/ksred/klear-settlement/internal/replay"
	"github.com/ksred/klear-settlement/internal/settlement"
	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/internal/waterfall"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// init configures pretty logging outside production. DEBUG=true forces
// debug level regardless of the configured one.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func setLogLevel(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main settles a seeded batch of trades end to end, persists the audit
// trail, then reloads it and verifies the journal replays identically.
func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	journalDB := journal.NewDatabase(db)
	accountDB := clearing.NewDatabase(db)
	cycleDB := settlement.NewDatabase(db)

	house, err := restoreAccounts(accountDB, cfg.Simulation)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize clearing accounts")
	}

	persisted, err := journalDB.LoadEntries()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load journal")
	}
	j, err := journal.Restore(persisted)
	if err != nil {
		log.Fatal().Err(err).Msg("Persisted journal failed verification")
	}
	log.Info().
		Int("entries", j.Len()).
		Uint64("journal_hash", j.LastHash()).
		Msg("Journal restored")

	margins, err := margin.NewEngine(cfg.Margin.EngineConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid margin configuration")
	}
	wf, err := waterfall.New(cfg.Waterfall)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid waterfall configuration")
	}

	service := settlement.NewService(house, margins, wf, j,
		settlement.WithMarginTolerance(cfg.Settlement.MarginTolerance),
		settlement.WithJournalStore(journalDB),
		settlement.WithAccountStore(accountDB),
		settlement.WithCycleStore(cycleDB),
	)
	processor := settlement.NewProcessor(service, cfg.Processor.Interval)

	// Trade ids continue after any trades already journaled.
	feed, err := exchange.NewFeed(cfg.Simulation.Seed+int64(j.Len()), cfg.Simulation.Symbols,
		cfg.Margin.ReferencePrices, cfg.Simulation.Accounts, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create trade feed")
	}
	trades, err := feed.Generate(cfg.Simulation.Trades)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate trades")
	}
	offsetTradeIDs(trades, j)

	startTime := time.Now()
	balanceBefore := house.TotalBalance()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		processor.Start(loopCtx)
		close(loopDone)
	}()

	// Start worker goroutines
	var wg sync.WaitGroup
	workers := cfg.Simulation.Workers
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			submitted := 0
			for i := workerID; i < len(trades); i += workers {
				processor.Submit(trades[i])
				submitted++
			}
			log.Debug().Int("worker", workerID).Int("submitted", submitted).Msg("Worker finished")
		}(w)
	}
	wg.Wait()

	stopLoop()
	<-loopDone

	// Settle whatever the ticker loop did not pick up.
	if _, err := processor.Flush(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run final settlement cycle")
	}

	if err := verify(journalDB, j); err != nil {
		log.Fatal().Err(err).Msg("Journal verification failed")
	}

	cycles, err := cycleDB.ListCycles()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list settlement cycles")
	}
	printSummary(cycles, house, balanceBefore, j, time.Since(startTime))
}

// restoreAccounts loads persisted balances, or opens accounts 1..n with the
// configured initial balance on first run.
func restoreAccounts(store *clearing.Database, sim config.SimulationConfig) (*clearing.ClearingHouse, error) {
	house := clearing.NewClearingHouse()
	accounts, err := store.LoadAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 {
		if err := house.Restore(accounts); err != nil {
			return nil, err
		}
		log.Info().Int("accounts", len(accounts)).Msg("Clearing accounts restored")
		return house, nil
	}

	for i := 1; i <= sim.Accounts; i++ {
		if err := house.RegisterAccount(types.AccountID(i), sim.InitialBalance); err != nil {
			return nil, err
		}
	}
	if err := store.SaveAccounts(house.Accounts()); err != nil {
		return nil, err
	}
	log.Info().
		Int("accounts", sim.Accounts).
		Int64("initial_balance", sim.InitialBalance).
		Msg("Clearing accounts registered")
	return house, nil
}

// offsetTradeIDs moves generated ids past the highest journaled trade id.
func offsetTradeIDs(trades []types.Trade, j *journal.Journal) {
	var maxID types.TradeID
	for _, e := range j.Entries() {
		if ev, ok := e.Event.(journal.TradeReceived); ok && ev.TradeID > maxID {
			maxID = ev.TradeID
		}
	}
	for i := range trades {
		trades[i].TradeID += maxID
	}
}

// verify reloads the audit export and replays it against the live journal.
func verify(store *journal.Database, j *journal.Journal) error {
	loaded, err := store.LoadEntries()
	if err != nil {
		return err
	}

	if result := replay.CheckChain(loaded); !result.Success {
		return fmt.Errorf("stored chain: %s", result.Mismatch)
	}
	result := replay.Verify(replay.BuildFromJournal(j), replay.BuildReplayLog(loaded))
	if !result.Success {
		return fmt.Errorf("replay: %s", result.Mismatch)
	}

	log.Info().
		Int("steps_verified", result.StepsVerified).
		Uint64("journal_hash", replay.ComputeJournalHash(j)).
		Uint64("result_hash", result.ContentHash).
		Msg("Journal replay verified")
	return nil
}

func printSummary(cycles []settlement.CycleRecord, house *clearing.ClearingHouse, balanceBefore int64, j *journal.Journal, duration time.Duration) {
	var trades, settled, failed, defaults int
	var grossBefore, grossAfter, cancelled int64
	for _, c := range cycles {
		trades += c.TradeCount
		settled += c.Settled
		failed += c.Failed
		defaults += c.Defaults
		grossBefore += c.GrossBefore
		grossAfter += c.GrossAfter
		cancelled += c.CancelledValue
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SETTLEMENT SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Cycles:           %d
Trades:           %d
Settled:          %d
Failed:           %d
Defaults:         %d
Gross before:     %d
Gross after:      %d
Cancelled value:  %d
Journal entries:  %d
Journal hash:     %016x
Duration:         %v

`, len(cycles), trades, settled, failed, defaults, grossBefore, grossAfter, cancelled,
		j.Len(), j.LastHash(), duration.Round(time.Millisecond))

	fmt.Printf("%-10s %20s\n", "Account", "Balance")
	fmt.Println(strings.Repeat("-", 31))
	for _, acct := range house.Accounts() {
		fmt.Printf("%-10d %20d\n", acct.AccountID, acct.Balance)
	}
	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("cycles", len(cycles)).
		Int("settled", settled).
		Int("failed", failed).
		Int64("balance_before", balanceBefore).
		Int64("balance_after", house.TotalBalance()).
		Dur("duration", duration).
		Msg("Simulation completed")
}
