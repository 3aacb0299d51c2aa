package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/storage"
	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SAFETY GATE - Per-user trade permission
// ═══════════════════════════════════════════════════════════════════════════════
//
// Evaluated before each execution pass. Checks run in order and short-circuit
// on the first failure:
//
//   1. Daily trade cap
//   2. Daily loss limit
//   3. Total exposure cap
//
// A denial is fatal for the cycle, not an error: the bot is disabled, the
// user is alerted, and the sweep moves on to the next user.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Denial reasons, surfaced verbatim to the user.
const (
	ReasonDailyTradeLimit = "Daily trade limit reached"
	ReasonDailyLossLimit  = "Daily loss limit exceeded"
	ReasonExposureLimit   = "Maximum exposure limit reached"
)

// Alerter delivers a user-facing notification. Failures are the sink's
// problem; the gate never fails on an alert.
type Alerter interface {
	RaiseAlert(ctx context.Context, userID, kind, message string, fields map[string]string)
}

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Allowed bool
	Reason  string

	// RemainingTrades is how many more executions fit under the daily cap.
	RemainingTrades int
}

// Gate enforces the per-user safety limits.
type Gate struct {
	db       *storage.Database
	alerter  Alerter
	throttle *TTLCache
	loc      *time.Location
}

// NewGate creates a safety gate. loc fixes the trading-day boundary
// (nil means Asia/Bangkok).
func NewGate(db *storage.Database, alerter Alerter, loc *time.Location) *Gate {
	if loc == nil {
		loc = bangkok()
	}
	return &Gate{
		db:       db,
		alerter:  alerter,
		throttle: NewTTLCache(1 * time.Hour),
		loc:      loc,
	}
}

// CanTrade decides whether the user's bot may trade right now. On denial the
// bot is disabled and the user alerted; the returned Decision carries the
// human-readable reason.
//
// The daily P/L check infers per-leg P/L from execution records (BUY legs as
// -totalValue, SELL legs as proceeds - totalValue) rather than matched round
// trips, so it can misstate P/L when several lots of one symbol are open.
func (g *Gate) CanTrade(ctx context.Context, cfg types.BotConfig) (Decision, error) {
	dayStart := startOfDay(time.Now().In(g.loc))

	// 1. Daily trade cap
	count, err := g.db.CountExecutionsSince(ctx, cfg.UserID, dayStart)
	if err != nil {
		return Decision{}, err
	}
	if count >= int64(cfg.MaxDailyTrades) {
		return g.deny(ctx, cfg, ReasonDailyTradeLimit), nil
	}

	// 2. Daily loss limit
	execs, err := g.db.ExecutionsSince(ctx, cfg.UserID, dayStart)
	if err != nil {
		return Decision{}, err
	}
	dayPnL := dailyPnL(execs)
	if dayPnL.LessThan(cfg.DailyLossLimit.Abs().Neg()) {
		return g.deny(ctx, cfg, ReasonDailyLossLimit), nil
	}

	// 3. Exposure cap
	exposure, err := g.db.ActiveExposure(ctx, cfg.UserID)
	if err != nil {
		return Decision{}, err
	}
	if exposure.GreaterThanOrEqual(cfg.MaxTotalExposure) {
		return g.deny(ctx, cfg, ReasonExposureLimit), nil
	}

	return Decision{
		Allowed:         true,
		RemainingTrades: cfg.MaxDailyTrades - int(count),
	}, nil
}

// dailyPnL sums realized and inferred-unrealized P/L over the day's executed
// legs: a BUY counts as -totalValue, a SELL as proceeds - totalValue.
func dailyPnL(execs []storage.TradeExecution) decimal.Decimal {
	pnl := decimal.Zero
	for i := range execs {
		e := &execs[i]
		if e.Status != string(types.ExecExecuted) {
			continue
		}
		switch e.Action {
		case string(types.SignalBuy):
			pnl = pnl.Sub(e.TotalValue)
		case string(types.SignalSell):
			proceeds := e.Price.Mul(decimal.NewFromInt(e.Shares))
			pnl = pnl.Add(proceeds.Sub(e.TotalValue))
		}
	}
	return pnl
}

// deny disables the bot and raises a (throttled) alert.
func (g *Gate) deny(ctx context.Context, cfg types.BotConfig, reason string) Decision {
	if err := g.db.DisableBot(ctx, cfg.UserID); err != nil {
		log.Error().Err(err).Str("user", cfg.UserID).Msg("Failed to disable bot after denial")
	}

	log.Warn().
		Str("user", cfg.UserID).
		Str("reason", reason).
		Msg("🚫 Trading denied, bot disabled")

	if g.alerter != nil && !g.throttle.Hit("disabled:"+cfg.UserID) {
		g.alerter.RaiseAlert(ctx, cfg.UserID, "bot_disabled", reason, map[string]string{
			"mode": string(cfg.Mode),
		})
	}

	return Decision{Allowed: false, Reason: reason}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func bangkok() *time.Location {
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}
