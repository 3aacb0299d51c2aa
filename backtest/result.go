package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BACKTEST RESULT - Output of one simulation run
// ═══════════════════════════════════════════════════════════════════════════════

// Trade is one executed order inside a simulation. SELL trades are completed
// round trips and carry a realized P/L.
type Trade struct {
	Date     time.Time        `json:"date"`
	SignalID string           `json:"signalId,omitempty"`
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name,omitempty"`
	Action   types.SignalType `json:"action"`
	Shares   int64            `json:"shares"`
	Price    decimal.Decimal  `json:"price"`
	Total    decimal.Decimal  `json:"total"`
	PnL      decimal.Decimal  `json:"pnl"`
	Reason   types.ExitReason `json:"reason,omitempty"`
}

// Completed reports whether the trade closed a position with a realized P/L.
func (t Trade) Completed() bool {
	return t.Action == types.SignalSell
}

// EquityPoint is one day's portfolio value
type EquityPoint struct {
	Date  string          `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Result is the full output of a simulation run. Produced, returned and
// discarded; never persisted.
type Result struct {
	InitialCapital  decimal.Decimal `json:"initialCapital"`
	FinalValue      decimal.Decimal `json:"finalValue"`
	TotalReturn     float64         `json:"totalReturn"`
	TotalTrades     int             `json:"totalTrades"`
	CompletedTrades int             `json:"completedTrades"`
	WinRate         float64         `json:"winRate"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	ProfitFactor    float64         `json:"profitFactor"`
	MaxDrawdown     float64         `json:"maxDrawdown"`
	SharpeRatio     float64         `json:"sharpeRatio"`
	BestTrade       *Trade          `json:"bestTrade"`
	WorstTrade      *Trade          `json:"worstTrade"`
	EquityCurve     []EquityPoint   `json:"equityCurve"`
	Trades          []Trade         `json:"trades"`
	Benchmark       float64         `json:"benchmark"`
}

// Profit factor is the total-sum ratio: sum of winning P/L over the absolute
// sum of losing P/L. Capped at this sentinel when there are profits and no
// losses, so serializers never see +Inf.
const profitFactorCap = 999

// computeMetrics fills the derived fields from the trades and equity curve.
func (r *Result) computeMetrics() {
	r.TotalTrades = len(r.Trades)

	totalProfit := decimal.Zero
	totalLoss := decimal.Zero

	for i := range r.Trades {
		t := &r.Trades[i]
		if !t.Completed() {
			continue
		}

		r.CompletedTrades++
		if t.PnL.IsPositive() {
			r.Wins++
			totalProfit = totalProfit.Add(t.PnL)
		} else {
			r.Losses++
			totalLoss = totalLoss.Add(t.PnL.Abs())
		}

		if r.BestTrade == nil || t.PnL.GreaterThan(r.BestTrade.PnL) {
			best := *t
			r.BestTrade = &best
		}
		if r.WorstTrade == nil || t.PnL.LessThan(r.WorstTrade.PnL) {
			worst := *t
			r.WorstTrade = &worst
		}
	}

	if r.CompletedTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.CompletedTrades) * 100
	}

	if totalLoss.IsPositive() {
		r.ProfitFactor, _ = totalProfit.Div(totalLoss).Float64()
		if r.ProfitFactor > profitFactorCap {
			r.ProfitFactor = profitFactorCap
		}
	} else if totalProfit.IsPositive() {
		r.ProfitFactor = profitFactorCap
	}

	if r.InitialCapital.IsPositive() {
		r.TotalReturn, _ = r.FinalValue.Sub(r.InitialCapital).
			Div(r.InitialCapital).
			Mul(decimal.NewFromInt(100)).
			Float64()
	}

	r.MaxDrawdown = maxDrawdown(r.EquityCurve)
	r.SharpeRatio = sharpeRatio(r.EquityCurve)
}

// maxDrawdown is the greatest percentage drop from any running peak to a
// subsequent trough, in one pass over the curve.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	peak := curve[0].Value
	worst := 0.0

	for _, point := range curve[1:] {
		if point.Value.GreaterThan(peak) {
			peak = point.Value
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd, _ := peak.Sub(point.Value).Div(peak).Mul(decimal.NewFromInt(100)).Float64()
		if dd > worst {
			worst = dd
		}
	}

	return worst
}

// sharpeRatio is the mean day-over-day percentage return divided by its
// population standard deviation; 0 when the curve never moves.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if !prev.IsPositive() {
			continue
		}
		r, _ := curve[i].Value.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}
