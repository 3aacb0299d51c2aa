package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sellTrade(pnl int64) Trade {
	return Trade{Action: types.SignalSell, PnL: dec(pnl)}
}

func TestProfitFactorTotalSumRatio(t *testing.T) {
	r := &Result{
		InitialCapital: dec(10_000),
		FinalValue:     dec(10_100),
		Trades:         []Trade{sellTrade(300), sellTrade(-100), sellTrade(-100)},
	}
	r.computeMetrics()

	assert.InDelta(t, 1.5, r.ProfitFactor, 1e-9)
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 2, r.Losses)
	assert.InDelta(t, 100.0/3.0, r.WinRate, 1e-9)
}

func TestProfitFactorCappedWithoutLosses(t *testing.T) {
	r := &Result{
		InitialCapital: dec(10_000),
		FinalValue:     dec(10_500),
		Trades:         []Trade{sellTrade(250), sellTrade(250)},
	}
	r.computeMetrics()

	assert.Equal(t, float64(999), r.ProfitFactor)
}

func TestProfitFactorZeroWithoutTrades(t *testing.T) {
	r := &Result{InitialCapital: dec(10_000), FinalValue: dec(10_000)}
	r.computeMetrics()

	assert.Zero(t, r.ProfitFactor)
	assert.Zero(t, r.WinRate)
}

func TestBestAndWorstTrade(t *testing.T) {
	r := &Result{
		InitialCapital: dec(10_000),
		FinalValue:     dec(10_000),
		Trades:         []Trade{sellTrade(50), sellTrade(-200), sellTrade(300)},
	}
	r.computeMetrics()

	assert.True(t, r.BestTrade.PnL.Equal(dec(300)))
	assert.True(t, r.WorstTrade.PnL.Equal(dec(-200)))
}

func TestMaxDrawdownPeakToTrough(t *testing.T) {
	curve := []EquityPoint{
		{Date: "2026-01-01", Value: dec(100)},
		{Date: "2026-01-02", Value: dec(120)},
		{Date: "2026-01-03", Value: dec(90)},
		{Date: "2026-01-04", Value: dec(110)},
	}

	assert.InDelta(t, 25.0, maxDrawdown(curve), 1e-9)
}

func TestMaxDrawdownFlatCurve(t *testing.T) {
	curve := []EquityPoint{
		{Date: "2026-01-01", Value: dec(100)},
		{Date: "2026-01-02", Value: dec(100)},
	}
	assert.Zero(t, maxDrawdown(curve))
}

func TestSharpeZeroWhenFlat(t *testing.T) {
	curve := []EquityPoint{
		{Date: "2026-01-01", Value: dec(100)},
		{Date: "2026-01-02", Value: dec(100)},
		{Date: "2026-01-03", Value: dec(100)},
	}
	assert.Zero(t, sharpeRatio(curve))
}

func TestSharpePositiveOnSteadyGains(t *testing.T) {
	curve := []EquityPoint{
		{Date: "2026-01-01", Value: dec(100)},
		{Date: "2026-01-02", Value: dec(102)},
		{Date: "2026-01-03", Value: dec(103)},
	}
	assert.Greater(t, sharpeRatio(curve), 0.0)
}
