package storage

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MODELS - Persisted entities, all scoped to a single user
// ═══════════════════════════════════════════════════════════════════════════════

// UserBot is the per-user trading bot configuration row.
type UserBot struct {
	UserID               string `gorm:"primaryKey"`
	Enabled              bool
	Mode                 string          // "paper" or "live"
	MaxPositionSize      decimal.Decimal `gorm:"type:decimal(18,4)"`
	MaxDailyTrades       int
	MaxTotalExposure     decimal.Decimal `gorm:"type:decimal(18,4)"`
	MinConfidenceScore   int
	AllowedSignalTypes   string // CSV, e.g. "BUY,SELL"
	AutoStopLoss         bool
	AutoTakeProfit       bool
	TrailingStopPercent  decimal.Decimal `gorm:"type:decimal(8,4)"`
	DailyLossLimit       decimal.Decimal `gorm:"type:decimal(18,4)"`
	MaxPortfolioDrawdown decimal.Decimal `gorm:"type:decimal(8,4)"`
	MT5Login             string
	MT5Password          string
	MT5Server            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Config converts the row into the engine-facing read-only config.
func (b *UserBot) Config() types.BotConfig {
	var allowed []types.SignalType
	for _, t := range strings.Split(b.AllowedSignalTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			allowed = append(allowed, types.SignalType(t))
		}
	}

	return types.BotConfig{
		UserID:               b.UserID,
		Enabled:              b.Enabled,
		Mode:                 types.TradeMode(b.Mode),
		MaxPositionSize:      b.MaxPositionSize,
		MaxDailyTrades:       b.MaxDailyTrades,
		MaxTotalExposure:     b.MaxTotalExposure,
		MinConfidenceScore:   b.MinConfidenceScore,
		AllowedSignalTypes:   allowed,
		AutoStopLoss:         b.AutoStopLoss,
		AutoTakeProfit:       b.AutoTakeProfit,
		TrailingStopPercent:  b.TrailingStopPercent,
		DailyLossLimit:       b.DailyLossLimit,
		MaxPortfolioDrawdown: b.MaxPortfolioDrawdown,
		Broker: types.BrokerCredentials{
			Login:    b.MT5Login,
			Password: b.MT5Password,
			Server:   b.MT5Server,
		},
	}
}

// Signal is a stored trading recommendation, written by the suggestion
// pipeline and consumed here. Immutable once created.
type Signal struct {
	ID              string `gorm:"primaryKey"`
	Symbol          string `gorm:"index"`
	Name            string
	Type            string // "BUY" or "SELL"
	ConfidenceScore int
	CurrentPrice    decimal.Decimal `gorm:"type:decimal(18,4)"`
	TargetPrice     decimal.Decimal `gorm:"type:decimal(18,4)"`
	StopLoss        decimal.Decimal `gorm:"type:decimal(18,4)"`
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Domain converts the row into the shared signal type.
func (s *Signal) Domain() types.Signal {
	return types.Signal{
		ID:              s.ID,
		Symbol:          s.Symbol,
		Name:            s.Name,
		Type:            types.SignalType(s.Type),
		ConfidenceScore: s.ConfidenceScore,
		CurrentPrice:    s.CurrentPrice,
		TargetPrice:     s.TargetPrice,
		StopLoss:        s.StopLoss,
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
	}
}

// Position statuses
const (
	PositionActive = "active"
	PositionSold   = "sold"
)

// Position is an open or closed holding.
type Position struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	SignalID        string
	Symbol          string `gorm:"index"`
	Name            string
	Shares          int64
	EntryPrice      decimal.Decimal `gorm:"type:decimal(18,4)"`
	EntryDate       time.Time
	StopLossPrice   decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TakeProfitPrice decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Status          string              `gorm:"index;default:active"`
	SoldPrice       decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	SoldAt          *time.Time
	ExitReason      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Cost returns shares x entry price, the capital committed to the position.
func (p *Position) Cost() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Shares))
}

// MonitoredPosition layers exit-monitoring state on top of a Position.
// HighestPriceSeen never decreases while active; under a trailing stop
// StopLossPrice only ever moves up.
type MonitoredPosition struct {
	ID                  string `gorm:"primaryKey"`
	PositionID          string `gorm:"uniqueIndex"`
	UserID              string `gorm:"index"`
	SignalID            string
	Symbol              string `gorm:"index"`
	Shares              int64
	EntryPrice          decimal.Decimal     `gorm:"type:decimal(18,4)"`
	CurrentPrice        decimal.Decimal     `gorm:"type:decimal(18,4)"`
	StopLossPrice       decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TakeProfitPrice     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TrailingStopEnabled bool
	TrailingStopPercent decimal.Decimal `gorm:"type:decimal(8,4)"`
	HighestPriceSeen    decimal.Decimal `gorm:"type:decimal(18,4)"`
	Active              bool            `gorm:"index;default:true"`
	ExitReason          string
	LastCheckedAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TradeExecution is an immutable audit record of an order attempt. The unique
// index on (user, signal, action) is the idempotency barrier: one BUY per
// signal per user, with the closing SELL leg recorded under the same signal.
type TradeExecution struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"index;uniqueIndex:idx_exec_user_signal_action"`
	SignalID      string `gorm:"uniqueIndex:idx_exec_user_signal_action"`
	Action        string `gorm:"uniqueIndex:idx_exec_user_signal_action"` // "BUY" or "SELL"
	Symbol        string
	Shares        int64
	Price         decimal.Decimal `gorm:"type:decimal(18,4)"`
	TotalValue    decimal.Decimal `gorm:"type:decimal(18,4)"`
	Status        string          `gorm:"index"` // pending, executed, rejected, failed
	BrokerOrderID string
	FailureReason string
	ExecutedAt    *time.Time
	CreatedAt     time.Time `gorm:"index"`
}

// Alert is a persisted user-facing notification. Every denial or failure in
// the trading pipeline lands here as a human-readable message.
type Alert struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index"`
	Kind      string // e.g. "bot_disabled", "trade_executed", "position_exited"
	Message   string
	Context   string // JSON blob
	CreatedAt time.Time
}
