package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/execution"
	"github.com/thirayume/thai-asset-zen-sub000/feeds"
	"github.com/thirayume/thai-asset-zen-sub000/monitor"
	"github.com/thirayume/thai-asset-zen-sub000/risk"
	"github.com/thirayume/thai-asset-zen-sub000/storage"
	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Signals → Safety gate → Executor → Positions → Monitor → Exits
//
// The sweep loop walks every enabled bot on an interval. One user's failure
// never touches another user's processing; the failing bot is logged and the
// sweep moves on.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Engine struct {
	mu sync.RWMutex

	// Components
	db       *storage.Database
	gate     *risk.Gate
	executor *execution.Executor
	monitor  *monitor.Monitor
	quotes   *feeds.QuoteFeed
	router   *Router

	sweepInterval   time.Duration
	monitorInterval time.Duration

	// State
	running bool
	paused  bool
	cancel  context.CancelFunc

	// Stats
	sweeps         int
	tradesExecuted int
	lastSweep      time.Time
}

// NewEngine creates a trading engine and wires the component callbacks into
// the event router.
func NewEngine(
	db *storage.Database,
	gate *risk.Gate,
	executor *execution.Executor,
	mon *monitor.Monitor,
	quotes *feeds.QuoteFeed,
	sweepInterval, monitorInterval time.Duration,
) *Engine {
	e := &Engine{
		db:              db,
		gate:            gate,
		executor:        executor,
		monitor:         mon,
		quotes:          quotes,
		router:          NewRouter(),
		sweepInterval:   sweepInterval,
		monitorInterval: monitorInterval,
	}

	executor.OnExecuted(func(exec *storage.TradeExecution, pos *storage.Position) {
		e.mu.Lock()
		e.tradesExecuted++
		e.mu.Unlock()

		e.quotes.Watch(pos.Symbol)
		e.router.Publish(Event{
			Type:   EventTradeExecuted,
			UserID: pos.UserID,
			Symbol: pos.Symbol,
			Shares: pos.Shares,
			Price:  pos.EntryPrice,
		})
	})

	mon.OnExited(func(pos *storage.MonitoredPosition, exitPrice decimal.Decimal, reason types.ExitReason) {
		e.router.Publish(Event{
			Type:   EventPositionExited,
			UserID: pos.UserID,
			Symbol: pos.Symbol,
			Shares: pos.Shares,
			Price:  exitPrice,
			Reason: reason,
		})
	})

	return e
}

// Router exposes the event router for subscribers.
func (e *Engine) Router() *Router {
	return e.router
}

// Start begins the sweep and monitor loops.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.quotes.Start()
	e.refreshWatchlist(ctx)

	go e.sweepLoop(ctx)
	go e.monitor.Run(ctx, e.monitorInterval)

	log.Info().
		Dur("sweep", e.sweepInterval).
		Dur("monitor", e.monitorInterval).
		Msg("⚡ Engine started")
}

// Stop stops the engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	e.cancel()
	e.quotes.Stop()

	log.Info().Msg("Engine stopped")
}

// Pause suspends signal processing. The monitor keeps protecting open
// positions while paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	log.Info().Msg("⏸️ Signal processing paused")
}

// Resume re-enables signal processing.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	log.Info().Msg("▶️ Signal processing resumed")
}

// Status returns a one-line human-readable state summary.
func (e *Engine) Status() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state := "🟢 RUNNING"
	if e.paused {
		state = "⏸️ PAUSED"
	}
	last := "never"
	if !e.lastSweep.IsZero() {
		last = e.lastSweep.Format("15:04:05")
	}
	return fmt.Sprintf("%s\n🔁 Sweeps: %d (last %s)\n✅ Trades executed: %d",
		state, e.sweeps, last, e.tradesExecuted)
}

// sweepLoop runs one sweep per interval until the context is cancelled.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.RLock()
			paused := e.paused
			e.mu.RUnlock()
			if paused {
				continue
			}
			if err := e.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Sweep failed")
			}
		}
	}
}

// Sweep processes all pending signals for every enabled bot once.
func (e *Engine) Sweep(ctx context.Context) error {
	bots, err := e.db.ListEnabledBots(ctx)
	if err != nil {
		return err
	}

	signals, err := e.db.PendingSignals(ctx, 0, time.Now())
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sweeps++
	e.lastSweep = time.Now()
	e.mu.Unlock()

	if len(bots) == 0 || len(signals) == 0 {
		return nil
	}

	log.Debug().Int("bots", len(bots)).Int("signals", len(signals)).Msg("Sweep")

	for i := range bots {
		cfg := bots[i].Config()
		if err := e.processUser(ctx, cfg, signals); err != nil {
			log.Error().Err(err).Str("user", cfg.UserID).Msg("User sweep failed")
		}
	}
	return nil
}

// processUser runs the user's eligible signals through the gate and executor.
// The gate's remaining-trades count budgets the batch: once the daily cap is
// spent the rest of the signals wait for the next day instead of running the
// gate into a denial.
func (e *Engine) processUser(ctx context.Context, cfg types.BotConfig, signals []storage.Signal) error {
	now := time.Now()
	remaining := -1

	for i := range signals {
		if remaining == 0 {
			log.Debug().Str("user", cfg.UserID).Msg("Daily trade budget spent, deferring remaining signals")
			return nil
		}

		sig := signals[i].Domain()

		if sig.Expired(now) || !cfg.Allows(sig.Type) || sig.ConfidenceScore < cfg.MinConfidenceScore {
			continue
		}

		decision, err := e.gate.CanTrade(ctx, cfg)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			e.router.Publish(Event{
				Type:   EventBotDisabled,
				UserID: cfg.UserID,
				Symbol: sig.Symbol,
			})
			log.Info().Str("user", cfg.UserID).Str("reason", decision.Reason).Msg("🛑 Bot disabled by safety gate")
			return nil
		}
		remaining = decision.RemainingTrades

		exec, err := e.executor.Execute(ctx, cfg, sig)
		if err != nil {
			// Already recorded and alerted; keep going with the next signal.
			log.Warn().Err(err).Str("user", cfg.UserID).Str("signal", sig.ID).Msg("Execution failed")
		}
		if exec != nil {
			remaining--
		}
	}
	return nil
}

// refreshWatchlist seeds the quote feed with every symbol the engine cares
// about right now.
func (e *Engine) refreshWatchlist(ctx context.Context) {
	symbols, err := Watchlist(ctx, e.db)
	if err != nil {
		log.Error().Err(err).Msg("Watchlist load failed")
		return
	}
	e.quotes.Watch(symbols...)
}
