package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// SignalType is the direction of a trading signal
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// TradeMode selects the execution path
type TradeMode string

const (
	ModePaper TradeMode = "paper"
	ModeLive  TradeMode = "live"
)

// ExecStatus is the lifecycle state of a trade execution attempt
type ExecStatus string

const (
	ExecPending  ExecStatus = "pending"
	ExecExecuted ExecStatus = "executed"
	ExecRejected ExecStatus = "rejected"
	ExecFailed   ExecStatus = "failed"
)

// ExitReason records why a position was closed
type ExitReason string

const (
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitTrailingStop  ExitReason = "trailing_stop"
	ExitEndOfBacktest ExitReason = "end_of_backtest"
)

// Signal is a dated trading recommendation. Immutable once created;
// consumed at most once per user.
type Signal struct {
	ID              string
	Symbol          string
	Name            string
	Type            SignalType
	ConfidenceScore int             // 0-100
	CurrentPrice    decimal.Decimal // price at signal time
	TargetPrice     decimal.Decimal
	StopLoss        decimal.Decimal
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the signal is past its expiry at the given time.
func (s Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// BrokerCredentials are the opaque login details for the live path.
type BrokerCredentials struct {
	Login    string
	Password string
	Server   string
}

// BotConfig is the per-user trading bot configuration. Mutated only through
// the settings screens; read-only to the trading engine.
type BotConfig struct {
	UserID               string
	Enabled              bool
	Mode                 TradeMode
	MaxPositionSize      decimal.Decimal // max baht per position
	MaxDailyTrades       int
	MaxTotalExposure     decimal.Decimal // max baht committed across open positions
	MinConfidenceScore   int             // 0-100
	AllowedSignalTypes   []SignalType
	AutoStopLoss         bool
	AutoTakeProfit       bool
	TrailingStopPercent  decimal.Decimal // 0-100; 0 disables trailing
	DailyLossLimit       decimal.Decimal // baht
	MaxPortfolioDrawdown decimal.Decimal // percent
	Broker               BrokerCredentials
}

// Allows reports whether the config permits signals of the given type.
func (c BotConfig) Allows(t SignalType) bool {
	for _, a := range c.AllowedSignalTypes {
		if a == t {
			return true
		}
	}
	return false
}

// TrailingEnabled reports whether a trailing stop should be tracked.
func (c BotConfig) TrailingEnabled() bool {
	return c.TrailingStopPercent.IsPositive()
}
