package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/broker"
	"github.com/thirayume/thai-asset-zen-sub000/storage"
	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE EXECUTOR - Signal to position
// ═══════════════════════════════════════════════════════════════════════════════
//
// Converts an accepted BUY signal into exactly one TradeExecution record and,
// on success, one Position with its MonitoredPosition.
//
// Flow:
//   Signal → idempotency check → broker (paper|mt5) → size → place → poll
//                                        ↓
//                         executed | pending | rejected | failed
//
// Paper fills are synchronous and deterministic at the signal price. Live
// orders are LIMIT/DAY against the MT5 bridge, polled up to ~30s. Every
// failure is recorded and alerted; nothing propagates past the per-user
// processing boundary.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Alerter delivers user-facing notifications, fire-and-forget.
type Alerter interface {
	RaiseAlert(ctx context.Context, userID, kind, message string, fields map[string]string)
}

// BrokerFactory builds broker clients per user credentials.
type BrokerFactory interface {
	New(kind broker.Kind, creds types.BrokerCredentials) (broker.Client, error)
}

// Config holds executor settings.
type Config struct {
	PollAttempts int           // status polls before giving up (default 6)
	PollInterval time.Duration // wait between polls (default 5s)
}

// DefaultConfig returns the ~30s fill window the live path is designed for.
func DefaultConfig() Config {
	return Config{
		PollAttempts: 6,
		PollInterval: 5 * time.Second,
	}
}

// Executor turns accepted signals into positions.
type Executor struct {
	db      *storage.Database
	brokers BrokerFactory
	alerter Alerter
	config  Config

	onExecuted func(exec *storage.TradeExecution, pos *storage.Position)
}

// New creates an executor.
func New(db *storage.Database, brokers BrokerFactory, alerter Alerter, config Config) *Executor {
	if config.PollAttempts <= 0 {
		config = DefaultConfig()
	}
	return &Executor{
		db:      db,
		brokers: brokers,
		alerter: alerter,
		config:  config,
	}
}

// OnExecuted registers a callback fired after a position opens.
func (e *Executor) OnExecuted(fn func(exec *storage.TradeExecution, pos *storage.Position)) {
	e.onExecuted = fn
}

// Execute processes one signal for one user. A signal already in the user's
// execution history is skipped silently (nil, nil). The returned error is for
// the caller's log only; the failure itself is already recorded and alerted.
func (e *Executor) Execute(ctx context.Context, cfg types.BotConfig, sig types.Signal) (*storage.TradeExecution, error) {
	if sig.Type != types.SignalBuy {
		return nil, nil
	}

	done, err := e.db.HasExecution(ctx, cfg.UserID, sig.ID, string(types.SignalBuy))
	if err != nil {
		return nil, err
	}
	if done {
		log.Debug().Str("user", cfg.UserID).Str("signal", sig.ID).Msg("Signal already traded, skipping")
		return nil, nil
	}

	client, err := e.brokers.New(kindFor(cfg.Mode), cfg.Broker)
	if err != nil {
		return e.recordFailure(ctx, cfg, sig, 0, fmt.Sprintf("broker unavailable: %v", err))
	}

	if err := client.Authenticate(ctx); err != nil {
		return e.recordFailure(ctx, cfg, sig, 0, fmt.Sprintf("broker authentication failed: %v", err))
	}

	balance, err := client.GetAccountBalance(ctx)
	if err != nil {
		return e.recordFailure(ctx, cfg, sig, 0, fmt.Sprintf("balance check failed: %v", err))
	}

	shares, cost, reason, err := e.size(ctx, cfg, sig, balance.Cash)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return e.recordRejection(ctx, cfg, sig, shares, reason)
	}

	// The pending row is the idempotency barrier: a concurrent sweep loses
	// the unique-constraint race here, before any order reaches the broker.
	exec := &storage.TradeExecution{
		ID:         uuid.NewString(),
		UserID:     cfg.UserID,
		SignalID:   sig.ID,
		Action:     string(types.SignalBuy),
		Symbol:     sig.Symbol,
		Shares:     shares,
		Price:      sig.CurrentPrice,
		TotalValue: cost,
		Status:     string(types.ExecPending),
		CreatedAt:  time.Now(),
	}
	if err := e.db.CreateExecution(ctx, exec); err != nil {
		if errors.Is(err, storage.ErrDuplicateExecution) {
			log.Debug().Str("user", cfg.UserID).Str("signal", sig.ID).Msg("Concurrent execution won the race, skipping")
			return nil, nil
		}
		return nil, err
	}

	result, err := client.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       types.SignalBuy,
		Shares:     shares,
		LimitPrice: sig.CurrentPrice,
	})
	if err != nil {
		return e.failExecution(ctx, cfg, sig, exec, fmt.Sprintf("order placement failed: %v", err))
	}
	exec.BrokerOrderID = result.OrderID

	result, err = e.awaitFill(ctx, client, result)
	if err != nil {
		return e.failExecution(ctx, cfg, sig, exec, err.Error())
	}

	switch result.Status {
	case broker.OrderFilled:
		return e.finalize(ctx, cfg, sig, exec, result.FilledPrice)

	case broker.OrderRejected:
		return e.failExecution(ctx, cfg, sig, exec, "order rejected by broker")

	default:
		// Still pending after the poll window: leave the record for manual
		// follow-up, open nothing.
		if err := e.db.UpdateExecution(ctx, exec); err != nil {
			return exec, err
		}
		log.Warn().
			Str("user", cfg.UserID).
			Str("symbol", sig.Symbol).
			Str("order", exec.BrokerOrderID).
			Msg("⏳ Order not filled within poll window")
		e.alert(ctx, cfg.UserID, "order_pending",
			fmt.Sprintf("Order for %d %s is still pending at the broker", shares, sig.Symbol), sig)
		return exec, nil
	}
}

// size works out the share count under the config limits. A non-empty reason
// means the signal cannot be traded at this size.
func (e *Executor) size(ctx context.Context, cfg types.BotConfig, sig types.Signal, cash decimal.Decimal) (int64, decimal.Decimal, string, error) {
	if !sig.CurrentPrice.IsPositive() {
		return 0, decimal.Zero, "signal has no usable price", nil
	}

	size := decimal.Min(cfg.MaxPositionSize, cash)
	shares := size.Div(sig.CurrentPrice).IntPart()
	if shares <= 0 {
		return 0, decimal.Zero, "position size too small for one share", nil
	}
	cost := sig.CurrentPrice.Mul(decimal.NewFromInt(shares))

	exposure, err := e.db.ActiveExposure(ctx, cfg.UserID)
	if err != nil {
		return 0, decimal.Zero, "", err
	}
	if exposure.Add(cost).GreaterThan(cfg.MaxTotalExposure) {
		return shares, cost, "trade would exceed the exposure limit", nil
	}

	return shares, cost, "", nil
}

// awaitFill polls the order status until filled, rejected, or out of attempts.
func (e *Executor) awaitFill(ctx context.Context, client broker.Client, result broker.OrderResult) (broker.OrderResult, error) {
	for attempt := 0; attempt < e.config.PollAttempts; attempt++ {
		if result.Status != broker.OrderPending {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(e.config.PollInterval):
		}

		polled, err := client.GetOrderStatus(ctx, result.OrderID)
		if err != nil {
			return result, fmt.Errorf("order status poll failed: %w", err)
		}
		result = polled
	}
	return result, nil
}

// finalize records the fill and opens the position pair.
func (e *Executor) finalize(ctx context.Context, cfg types.BotConfig, sig types.Signal, exec *storage.TradeExecution, fillPrice decimal.Decimal) (*storage.TradeExecution, error) {
	now := time.Now()
	exec.Status = string(types.ExecExecuted)
	exec.Price = fillPrice
	exec.TotalValue = fillPrice.Mul(decimal.NewFromInt(exec.Shares))
	exec.ExecutedAt = &now
	if err := e.db.UpdateExecution(ctx, exec); err != nil {
		return exec, err
	}

	pos := &storage.Position{
		ID:         uuid.NewString(),
		UserID:     cfg.UserID,
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Name:       sig.Name,
		Shares:     exec.Shares,
		EntryPrice: fillPrice,
		EntryDate:  now,
		Status:     storage.PositionActive,
	}
	if cfg.AutoStopLoss && sig.StopLoss.IsPositive() {
		pos.StopLossPrice = decimal.NewNullDecimal(sig.StopLoss)
	}
	if cfg.AutoTakeProfit && sig.TargetPrice.IsPositive() {
		pos.TakeProfitPrice = decimal.NewNullDecimal(sig.TargetPrice)
	}
	if err := e.db.CreatePosition(ctx, pos); err != nil {
		return exec, err
	}

	monitored := &storage.MonitoredPosition{
		ID:                  uuid.NewString(),
		PositionID:          pos.ID,
		UserID:              cfg.UserID,
		SignalID:            sig.ID,
		Symbol:              sig.Symbol,
		Shares:              pos.Shares,
		EntryPrice:          fillPrice,
		CurrentPrice:        fillPrice,
		StopLossPrice:       pos.StopLossPrice,
		TakeProfitPrice:     pos.TakeProfitPrice,
		TrailingStopEnabled: cfg.TrailingEnabled(),
		TrailingStopPercent: cfg.TrailingStopPercent,
		HighestPriceSeen:    fillPrice,
		Active:              true,
	}
	if err := e.db.CreateMonitored(ctx, monitored); err != nil {
		return exec, err
	}

	log.Info().
		Str("user", cfg.UserID).
		Str("symbol", sig.Symbol).
		Int64("shares", exec.Shares).
		Str("price", fillPrice.StringFixed(2)).
		Str("mode", string(cfg.Mode)).
		Msg("✅ Position opened")

	e.alert(ctx, cfg.UserID, "trade_executed",
		fmt.Sprintf("Bought %d %s @ ฿%s", exec.Shares, sig.Symbol, fillPrice.StringFixed(2)), sig)

	if e.onExecuted != nil {
		e.onExecuted(exec, pos)
	}
	return exec, nil
}

// recordRejection writes a rejected attempt. The row still consumes the
// signal for this user.
func (e *Executor) recordRejection(ctx context.Context, cfg types.BotConfig, sig types.Signal, shares int64, reason string) (*storage.TradeExecution, error) {
	exec := &storage.TradeExecution{
		ID:            uuid.NewString(),
		UserID:        cfg.UserID,
		SignalID:      sig.ID,
		Action:        string(types.SignalBuy),
		Symbol:        sig.Symbol,
		Shares:        shares,
		Price:         sig.CurrentPrice,
		Status:        string(types.ExecRejected),
		FailureReason: reason,
		CreatedAt:     time.Now(),
	}
	if err := e.db.CreateExecution(ctx, exec); err != nil {
		if errors.Is(err, storage.ErrDuplicateExecution) {
			return nil, nil
		}
		return nil, err
	}

	log.Info().Str("user", cfg.UserID).Str("symbol", sig.Symbol).Str("reason", reason).Msg("Trade rejected")
	e.alert(ctx, cfg.UserID, "trade_rejected",
		fmt.Sprintf("Skipped %s: %s", sig.Symbol, reason), sig)

	return exec, nil
}

// recordFailure writes a fresh failed attempt and alerts the user.
func (e *Executor) recordFailure(ctx context.Context, cfg types.BotConfig, sig types.Signal, shares int64, reason string) (*storage.TradeExecution, error) {
	exec := &storage.TradeExecution{
		ID:            uuid.NewString(),
		UserID:        cfg.UserID,
		SignalID:      sig.ID,
		Action:        string(types.SignalBuy),
		Symbol:        sig.Symbol,
		Shares:        shares,
		Price:         sig.CurrentPrice,
		Status:        string(types.ExecFailed),
		FailureReason: reason,
		CreatedAt:     time.Now(),
	}
	if err := e.db.CreateExecution(ctx, exec); err != nil {
		if errors.Is(err, storage.ErrDuplicateExecution) {
			return nil, nil
		}
		return nil, err
	}

	log.Error().Str("user", cfg.UserID).Str("symbol", sig.Symbol).Str("reason", reason).Msg("❌ Trade failed")
	e.alert(ctx, cfg.UserID, "trade_failed",
		fmt.Sprintf("Could not trade %s: %s", sig.Symbol, reason), sig)

	return exec, fmt.Errorf("trade %s for %s failed: %s", sig.ID, cfg.UserID, reason)
}

// failExecution flips an already-created pending row to failed.
func (e *Executor) failExecution(ctx context.Context, cfg types.BotConfig, sig types.Signal, exec *storage.TradeExecution, reason string) (*storage.TradeExecution, error) {
	exec.Status = string(types.ExecFailed)
	exec.FailureReason = reason
	if err := e.db.UpdateExecution(ctx, exec); err != nil {
		log.Error().Err(err).Str("execution", exec.ID).Msg("Failed to persist execution failure")
	}

	log.Error().Str("user", cfg.UserID).Str("symbol", sig.Symbol).Str("reason", reason).Msg("❌ Trade failed")
	e.alert(ctx, cfg.UserID, "trade_failed",
		fmt.Sprintf("Could not trade %s: %s", sig.Symbol, reason), sig)

	return exec, fmt.Errorf("trade %s for %s failed: %s", sig.ID, cfg.UserID, reason)
}

func (e *Executor) alert(ctx context.Context, userID, kind, message string, sig types.Signal) {
	if e.alerter == nil {
		return
	}
	e.alerter.RaiseAlert(ctx, userID, kind, message, map[string]string{
		"signal": sig.ID,
		"symbol": sig.Symbol,
	})
}

func kindFor(mode types.TradeMode) broker.Kind {
	if mode == types.ModeLive {
		return broker.KindMT5
	}
	return broker.KindPaper
}
