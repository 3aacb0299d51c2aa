package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BACKTEST ENGINE - Day-by-day signal replay
// ═══════════════════════════════════════════════════════════════════════════════
//
// Replays historical BUY signals against historical daily closes under the
// user's bot configuration. Pure function of its inputs: no clock, no
// randomness, no hidden state. The same inputs always produce the same Result.
//
// ═══════════════════════════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// The smallest viable ticket. Sized orders below this are skipped.
var minTicket = decimal.NewFromInt(1000)

// Input is everything one simulation run consumes.
type Input struct {
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital decimal.Decimal
	Config         types.BotConfig

	// Signals at or above the config's confidence floor, in received order.
	Signals []types.Signal

	// Prices maps symbol -> "2006-01-02" -> daily close.
	Prices map[string]map[string]decimal.Decimal

	// BenchmarkSymbol is the buy-and-hold reference instrument.
	BenchmarkSymbol string
}

// openPosition is a holding inside the simulation.
type openPosition struct {
	signalID   string
	symbol     string
	name       string
	shares     int64
	entryPrice decimal.Decimal
	stopLoss   decimal.NullDecimal
	takeProfit decimal.NullDecimal
	lastKnown  decimal.Decimal // latest close seen; falls back to entry price
}

func (p *openPosition) cost() decimal.Decimal {
	return p.entryPrice.Mul(decimal.NewFromInt(p.shares))
}

// Run executes one simulation and returns its Result.
func Run(in Input) (*Result, error) {
	if in.EndDate.Before(in.StartDate) {
		return nil, fmt.Errorf("end date %s before start date %s",
			in.EndDate.Format(dateLayout), in.StartDate.Format(dateLayout))
	}
	if !in.InitialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive")
	}

	byDate := groupSignalsByDate(in.Signals)

	result := &Result{InitialCapital: in.InitialCapital}
	cash := in.InitialCapital
	var open []*openPosition

	start := dateOnly(in.StartDate)
	end := dateOnly(in.EndDate)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		tradesToday := 0

		// Entries: process today's signals in received order.
		for _, sig := range byDate[key] {
			if tradesToday >= in.Config.MaxDailyTrades {
				break
			}
			if sig.Type != types.SignalBuy || !in.Config.Allows(sig.Type) {
				continue
			}
			if sig.ConfidenceScore < in.Config.MinConfidenceScore {
				continue
			}
			// No quote for the signal's day means no trade; never retried.
			if _, ok := closeFor(in.Prices, sig.Symbol, key); !ok {
				continue
			}
			if !sig.CurrentPrice.IsPositive() {
				continue
			}

			size := decimal.Min(in.Config.MaxPositionSize, cash)
			if size.LessThan(minTicket) {
				continue
			}
			shares := size.Div(sig.CurrentPrice).IntPart()
			if shares == 0 {
				continue
			}
			cost := sig.CurrentPrice.Mul(decimal.NewFromInt(shares))

			if openExposure(open).Add(cost).GreaterThan(in.Config.MaxTotalExposure) {
				continue
			}

			pos := &openPosition{
				signalID:   sig.ID,
				symbol:     sig.Symbol,
				name:       sig.Name,
				shares:     shares,
				entryPrice: sig.CurrentPrice,
				lastKnown:  sig.CurrentPrice,
			}
			if in.Config.AutoStopLoss && sig.StopLoss.IsPositive() {
				pos.stopLoss = decimal.NewNullDecimal(sig.StopLoss)
			}
			if in.Config.AutoTakeProfit && sig.TargetPrice.IsPositive() {
				pos.takeProfit = decimal.NewNullDecimal(sig.TargetPrice)
			}

			cash = cash.Sub(cost)
			open = append(open, pos)
			tradesToday++

			result.Trades = append(result.Trades, Trade{
				Date:     day,
				SignalID: sig.ID,
				Symbol:   sig.Symbol,
				Name:     sig.Name,
				Action:   types.SignalBuy,
				Shares:   shares,
				Price:    sig.CurrentPrice,
				Total:    cost,
			})
		}

		// Exits: mark every open position to today's close and test
		// stop-loss before take-profit.
		var still []*openPosition
		for _, pos := range open {
			price, ok := closeFor(in.Prices, pos.symbol, key)
			if !ok {
				still = append(still, pos)
				continue
			}
			pos.lastKnown = price

			var reason types.ExitReason
			switch {
			case pos.stopLoss.Valid && price.LessThanOrEqual(pos.stopLoss.Decimal):
				reason = types.ExitStopLoss
			case pos.takeProfit.Valid && price.GreaterThanOrEqual(pos.takeProfit.Decimal):
				reason = types.ExitTakeProfit
			default:
				still = append(still, pos)
				continue
			}

			cash = cash.Add(closeTrade(result, day, pos, price, reason))
		}
		open = still

		// Mark-to-market equity for the day.
		equity := cash
		for _, pos := range open {
			equity = equity.Add(pos.lastKnown.Mul(decimal.NewFromInt(pos.shares)))
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Date: key, Value: equity})
	}

	// Force-close whatever is still open at the last known price.
	for _, pos := range open {
		cash = cash.Add(closeTrade(result, end, pos, pos.lastKnown, types.ExitEndOfBacktest))
	}

	result.FinalValue = cash
	result.Benchmark = benchmarkReturn(in.Prices[in.BenchmarkSymbol], start, end)
	result.computeMetrics()

	log.Debug().
		Str("final", result.FinalValue.StringFixed(2)).
		Int("trades", result.TotalTrades).
		Float64("return_pct", result.TotalReturn).
		Msg("Backtest complete")

	return result, nil
}

// closeTrade records the SELL leg and returns the sale proceeds.
func closeTrade(result *Result, day time.Time, pos *openPosition, price decimal.Decimal, reason types.ExitReason) decimal.Decimal {
	shares := decimal.NewFromInt(pos.shares)
	proceeds := price.Mul(shares)
	pnl := price.Sub(pos.entryPrice).Mul(shares)

	result.Trades = append(result.Trades, Trade{
		Date:     day,
		SignalID: pos.signalID,
		Symbol:   pos.symbol,
		Name:     pos.name,
		Action:   types.SignalSell,
		Shares:   pos.shares,
		Price:    price,
		Total:    proceeds,
		PnL:      pnl,
		Reason:   reason,
	})

	return proceeds
}

// benchmarkReturn is the percentage move of the reference instrument between
// its first and last available close inside the range.
func benchmarkReturn(series map[string]decimal.Decimal, start, end time.Time) float64 {
	if len(series) == 0 {
		return 0
	}

	startKey := start.Format(dateLayout)
	endKey := end.Format(dateLayout)

	dates := make([]string, 0, len(series))
	for date := range series {
		if date >= startKey && date <= endKey {
			dates = append(dates, date)
		}
	}
	if len(dates) < 2 {
		return 0
	}
	sort.Strings(dates)

	first := series[dates[0]]
	last := series[dates[len(dates)-1]]
	if !first.IsPositive() {
		return 0
	}

	pct, _ := last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

func groupSignalsByDate(signals []types.Signal) map[string][]types.Signal {
	byDate := make(map[string][]types.Signal)
	for _, sig := range signals {
		key := sig.CreatedAt.Format(dateLayout)
		byDate[key] = append(byDate[key], sig)
	}
	return byDate
}

func closeFor(prices map[string]map[string]decimal.Decimal, symbol, date string) (decimal.Decimal, bool) {
	series, ok := prices[symbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	price, ok := series[date]
	return price, ok
}

func openExposure(open []*openPosition) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range open {
		total = total.Add(pos.cost())
	}
	return total
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
