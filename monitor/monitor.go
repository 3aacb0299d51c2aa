package monitor

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
// POSITION MONITOR - Exit management for open positions
// ═══════════════════════════════════════════════════════════════════════════════
//
// Sweeps every active monitored position against the live quote and applies
// the exit rules in a fixed order:
//
//   1. Stop-loss     price <= stop            → close
//   2. Take-profit   price >= target          → close
//   3. Trailing      on a new high, ratchet the stop up to high*(1-pct)
//
// The trailing stop is stored in the same stop-loss column; once trailing is
// on, a stop hit closes with reason "trailing_stop". Positions whose symbol
// has no fresh quote are skipped, not closed.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PriceSource supplies current quotes. Stale or unknown symbols report ok=false.
type PriceSource interface {
	CurrentPrice(symbol string) (decimal.Decimal, bool)
}

// Alerter delivers user-facing notifications, fire-and-forget.
type Alerter interface {
	RaiseAlert(ctx context.Context, userID, kind, message string, fields map[string]string)
}

// BrokerFactory builds broker clients per user credentials.
type BrokerFactory interface {
	New(kind broker.Kind, creds types.BrokerCredentials) (broker.Client, error)
}

// Monitor watches open positions and closes them when an exit rule fires.
type Monitor struct {
	db      *storage.Database
	prices  PriceSource
	brokers BrokerFactory
	alerter Alerter

	pollAttempts int
	pollInterval time.Duration

	onExited func(m *storage.MonitoredPosition, exitPrice decimal.Decimal, reason types.ExitReason)
}

// New creates a monitor.
func New(db *storage.Database, prices PriceSource, brokers BrokerFactory, alerter Alerter) *Monitor {
	return &Monitor{
		db:           db,
		prices:       prices,
		brokers:      brokers,
		alerter:      alerter,
		pollAttempts: 6,
		pollInterval: 5 * time.Second,
	}
}

// OnExited registers a callback fired after a position closes.
func (m *Monitor) OnExited(fn func(pos *storage.MonitoredPosition, exitPrice decimal.Decimal, reason types.ExitReason)) {
	m.onExited = fn
}

// Run sweeps on the given interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("👀 Position monitor started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Position monitor stopped")
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Monitor sweep failed")
			}
		}
	}
}

// Sweep checks every active monitored position once. A failure on one
// position is logged and does not stop the rest of the sweep.
func (m *Monitor) Sweep(ctx context.Context) error {
	positions, err := m.db.ActiveMonitored(ctx)
	if err != nil {
		return err
	}

	configs := make(map[string]types.BotConfig)
	for i := range positions {
		pos := &positions[i]

		cfg, ok := configs[pos.UserID]
		if !ok {
			bot, err := m.db.GetBot(ctx, pos.UserID)
			if err != nil {
				log.Error().Err(err).Str("user", pos.UserID).Msg("Monitor could not load bot config")
				continue
			}
			cfg = bot.Config()
			configs[pos.UserID] = cfg
		}

		if err := m.check(ctx, cfg, pos); err != nil {
			log.Error().Err(err).
				Str("user", pos.UserID).
				Str("symbol", pos.Symbol).
				Msg("Position check failed")
		}
	}
	return nil
}

// check applies the exit rules to one position.
func (m *Monitor) check(ctx context.Context, cfg types.BotConfig, pos *storage.MonitoredPosition) error {
	price, ok := m.prices.CurrentPrice(pos.Symbol)
	if !ok {
		log.Debug().Str("symbol", pos.Symbol).Msg("No fresh quote, skipping position")
		return nil
	}

	now := time.Now()
	pos.CurrentPrice = price
	pos.LastCheckedAt = &now

	// 1. Stop-loss (or ratcheted trailing stop)
	if pos.StopLossPrice.Valid && price.LessThanOrEqual(pos.StopLossPrice.Decimal) {
		reason := types.ExitStopLoss
		if pos.TrailingStopEnabled {
			reason = types.ExitTrailingStop
		}
		return m.exit(ctx, cfg, pos, price, reason)
	}

	// 2. Take-profit
	if pos.TakeProfitPrice.Valid && price.GreaterThanOrEqual(pos.TakeProfitPrice.Decimal) {
		return m.exit(ctx, cfg, pos, price, types.ExitTakeProfit)
	}

	// 3. Trailing ratchet. The candidate trails the high-water mark, so a
	// tick below the high leaves the existing stop alone.
	if pos.TrailingStopEnabled && price.GreaterThan(pos.HighestPriceSeen) {
		pos.HighestPriceSeen = price
		pct := pos.TrailingStopPercent.Div(decimal.NewFromInt(100))
		candidate := pos.HighestPriceSeen.Mul(decimal.NewFromInt(1).Sub(pct))
		if !pos.StopLossPrice.Valid || candidate.GreaterThan(pos.StopLossPrice.Decimal) {
			pos.StopLossPrice = decimal.NewNullDecimal(candidate)
			log.Debug().
				Str("symbol", pos.Symbol).
				Str("stop", candidate.StringFixed(2)).
				Msg("Trailing stop raised")
		}
	}

	return m.db.UpdateMonitored(ctx, pos)
}

// exit closes the position at the given price for the given reason.
func (m *Monitor) exit(ctx context.Context, cfg types.BotConfig, pos *storage.MonitoredPosition, price decimal.Decimal, reason types.ExitReason) error {
	exitPrice, orderID, err := m.sell(ctx, cfg, pos, price)
	if err != nil {
		m.alert(ctx, pos.UserID, "exit_failed",
			fmt.Sprintf("Could not close %s: %v", pos.Symbol, err), pos)
		return err
	}

	now := time.Now()
	cost := pos.EntryPrice.Mul(decimal.NewFromInt(pos.Shares))
	proceeds := exitPrice.Mul(decimal.NewFromInt(pos.Shares))
	pnl := proceeds.Sub(cost)

	// TotalValue on the SELL leg carries the cost basis so the day's P/L can
	// be read straight off the execution log.
	exec := &storage.TradeExecution{
		ID:            uuid.NewString(),
		UserID:        pos.UserID,
		SignalID:      pos.SignalID,
		Action:        string(types.SignalSell),
		Symbol:        pos.Symbol,
		Shares:        pos.Shares,
		Price:         exitPrice,
		TotalValue:    cost,
		Status:        string(types.ExecExecuted),
		BrokerOrderID: orderID,
		ExecutedAt:    &now,
		CreatedAt:     now,
	}
	if err := m.db.CreateExecution(ctx, exec); err != nil && !errors.Is(err, storage.ErrDuplicateExecution) {
		return err
	}

	parent, err := m.db.GetPosition(ctx, pos.PositionID)
	if err != nil {
		return err
	}
	parent.Status = storage.PositionSold
	parent.SoldPrice = decimal.NewNullDecimal(exitPrice)
	parent.SoldAt = &now
	parent.ExitReason = string(reason)
	if err := m.db.UpdatePosition(ctx, parent); err != nil {
		return err
	}

	pos.Active = false
	pos.ExitReason = string(reason)
	pos.CurrentPrice = exitPrice
	if err := m.db.UpdateMonitored(ctx, pos); err != nil {
		return err
	}

	log.Info().
		Str("user", pos.UserID).
		Str("symbol", pos.Symbol).
		Str("reason", string(reason)).
		Str("exit", exitPrice.StringFixed(2)).
		Str("pnl", pnl.StringFixed(2)).
		Msg("🔔 Position closed")

	m.alert(ctx, pos.UserID, "position_exited",
		fmt.Sprintf("Sold %d %s @ ฿%s (%s, P/L ฿%s)",
			pos.Shares, pos.Symbol, exitPrice.StringFixed(2), reason, pnl.StringFixed(2)), pos)

	if m.onExited != nil {
		m.onExited(pos, exitPrice, reason)
	}
	return nil
}

// sell routes the closing order. Paper closes synchronously at the trigger
// price; live places a limit order on the bridge and waits for the fill.
func (m *Monitor) sell(ctx context.Context, cfg types.BotConfig, pos *storage.MonitoredPosition, price decimal.Decimal) (decimal.Decimal, string, error) {
	kind := broker.KindPaper
	if cfg.Mode == types.ModeLive {
		kind = broker.KindMT5
	}
	client, err := m.brokers.New(kind, cfg.Broker)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := client.Authenticate(ctx); err != nil {
		return decimal.Zero, "", err
	}

	result, err := client.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       types.SignalSell,
		Shares:     pos.Shares,
		LimitPrice: price,
	})
	if err != nil {
		return decimal.Zero, "", err
	}

	for attempt := 0; result.Status == broker.OrderPending && attempt < m.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return decimal.Zero, result.OrderID, ctx.Err()
		case <-time.After(m.pollInterval):
		}
		result, err = client.GetOrderStatus(ctx, result.OrderID)
		if err != nil {
			return decimal.Zero, result.OrderID, err
		}
	}

	switch result.Status {
	case broker.OrderFilled:
		return result.FilledPrice, result.OrderID, nil
	case broker.OrderRejected:
		return decimal.Zero, result.OrderID, fmt.Errorf("closing order rejected by broker")
	default:
		return decimal.Zero, result.OrderID, fmt.Errorf("closing order not filled within poll window")
	}
}

func (m *Monitor) alert(ctx context.Context, userID, kind, message string, pos *storage.MonitoredPosition) {
	if m.alerter == nil {
		return
	}
	m.alerter.RaiseAlert(ctx, userID, kind, message, map[string]string{
		"position": pos.PositionID,
		"symbol":   pos.Symbol,
	})
}
