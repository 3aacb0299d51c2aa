package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func testConfig() types.BotConfig {
	return types.BotConfig{
		UserID:             "u-1",
		Enabled:            true,
		Mode:               types.ModePaper,
		MaxPositionSize:    decimal.NewFromInt(1000),
		MaxDailyTrades:     5,
		MaxTotalExposure:   decimal.NewFromInt(100_000),
		MinConfidenceScore: 75,
		AllowedSignalTypes: []types.SignalType{types.SignalBuy},
		AutoStopLoss:       true,
		AutoTakeProfit:     true,
	}
}

func buySignal(id, symbol string, d int, price, target, stop int64) types.Signal {
	return types.Signal{
		ID:              id,
		Symbol:          symbol,
		Type:            types.SignalBuy,
		ConfidenceScore: 80,
		CurrentPrice:    decimal.NewFromInt(price),
		TargetPrice:     decimal.NewFromInt(target),
		StopLoss:        decimal.NewFromInt(stop),
		CreatedAt:       day(d),
	}
}

func TestTakeProfitExit(t *testing.T) {
	in := Input{
		StartDate:      day(1),
		EndDate:        day(3),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         testConfig(),
		Signals:        []types.Signal{buySignal("s1", "XYZ", 1, 50, 55, 40)},
		Prices: map[string]map[string]decimal.Decimal{
			"XYZ": {
				"2026-01-01": decimal.NewFromInt(50),
				"2026-01-02": decimal.NewFromInt(56),
				"2026-01-03": decimal.NewFromInt(56),
			},
		},
	}

	result, err := Run(in)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)

	buy := result.Trades[0]
	assert.Equal(t, types.SignalBuy, buy.Action)
	assert.Equal(t, int64(20), buy.Shares)
	assert.True(t, buy.Total.Equal(decimal.NewFromInt(1000)), "cost %s", buy.Total)

	sell := result.Trades[1]
	assert.Equal(t, types.SignalSell, sell.Action)
	assert.Equal(t, types.ExitTakeProfit, sell.Reason)
	assert.True(t, sell.Price.Equal(decimal.NewFromInt(56)))
	assert.True(t, sell.PnL.Equal(decimal.NewFromInt(120)), "pnl %s", sell.PnL)

	assert.True(t, result.FinalValue.Equal(decimal.NewFromInt(10_120)))
	assert.Equal(t, 1, result.CompletedTrades)
	assert.Equal(t, 1, result.Wins)

	// Day 3 equity is cash only, the position already closed.
	require.Len(t, result.EquityCurve, 3)
	assert.True(t, result.EquityCurve[2].Value.Equal(decimal.NewFromInt(10_120)))
}

func TestStopLossCheckedBeforeTakeProfit(t *testing.T) {
	// At a close of 98 both the stop (100) and the target (95) are satisfied.
	// The stop must win.
	in := Input{
		StartDate:      day(1),
		EndDate:        day(2),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         testConfig(),
		Signals:        []types.Signal{buySignal("s1", "XYZ", 1, 100, 95, 100)},
		Prices: map[string]map[string]decimal.Decimal{
			"XYZ": {
				"2026-01-01": decimal.NewFromInt(100),
				"2026-01-02": decimal.NewFromInt(98),
			},
		},
	}

	result, err := Run(in)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, types.ExitStopLoss, result.Trades[1].Reason)
}

func TestStopLossScenario(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionSize = decimal.NewFromInt(10_000)

	in := Input{
		StartDate:      day(1),
		EndDate:        day(2),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         cfg,
		Signals:        []types.Signal{buySignal("s1", "XYZ", 1, 100, 120, 90)},
		Prices: map[string]map[string]decimal.Decimal{
			"XYZ": {
				"2026-01-01": decimal.NewFromInt(100),
				"2026-01-02": decimal.NewFromInt(89),
			},
		},
	}

	result, err := Run(in)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, int64(100), result.Trades[0].Shares)
	assert.Equal(t, types.ExitStopLoss, result.Trades[1].Reason)
	assert.True(t, result.Trades[1].PnL.Equal(decimal.NewFromInt(-1100)), "pnl %s", result.Trades[1].PnL)
}

func TestDailyTradeCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDailyTrades = 2

	prices := map[string]map[string]decimal.Decimal{}
	var signals []types.Signal
	for i, sym := range []string{"AAA", "BBB", "CCC"} {
		signals = append(signals, buySignal(sym, sym, 1, 50, 0, 0))
		prices[sym] = map[string]decimal.Decimal{"2026-01-01": decimal.NewFromInt(50)}
		_ = i
	}

	result, err := Run(Input{
		StartDate:      day(1),
		EndDate:        day(1),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         cfg,
		Signals:        signals,
		Prices:         prices,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, countBuys(result))
}

func TestExposureCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalExposure = decimal.NewFromInt(1500)

	prices := map[string]map[string]decimal.Decimal{
		"AAA": {"2026-01-01": decimal.NewFromInt(50)},
		"BBB": {"2026-01-01": decimal.NewFromInt(50)},
	}

	result, err := Run(Input{
		StartDate:      day(1),
		EndDate:        day(1),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         cfg,
		Signals: []types.Signal{
			buySignal("s1", "AAA", 1, 50, 0, 0),
			buySignal("s2", "BBB", 1, 50, 0, 0),
		},
		Prices: prices,
	})
	require.NoError(t, err)

	// Each ticket costs 1000; the second would push exposure to 2000.
	assert.Equal(t, 1, countBuys(result))
}

func TestMinTicketSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionSize = decimal.NewFromInt(500)

	result, err := Run(Input{
		StartDate:      day(1),
		EndDate:        day(1),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         cfg,
		Signals:        []types.Signal{buySignal("s1", "XYZ", 1, 50, 0, 0)},
		Prices: map[string]map[string]decimal.Decimal{
			"XYZ": {"2026-01-01": decimal.NewFromInt(50)},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestMissingPriceMeansNoTrade(t *testing.T) {
	result, err := Run(Input{
		StartDate:      day(1),
		EndDate:        day(2),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         testConfig(),
		Signals:        []types.Signal{buySignal("s1", "XYZ", 1, 50, 0, 0)},
		Prices:         map[string]map[string]decimal.Decimal{},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.True(t, result.FinalValue.Equal(decimal.NewFromInt(10_000)))
}

func TestForceCloseAtEndOfRun(t *testing.T) {
	cfg := testConfig()
	cfg.AutoStopLoss = false
	cfg.AutoTakeProfit = false

	result, err := Run(Input{
		StartDate:      day(1),
		EndDate:        day(3),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         cfg,
		Signals:        []types.Signal{buySignal("s1", "XYZ", 1, 50, 55, 40)},
		Prices: map[string]map[string]decimal.Decimal{
			"XYZ": {
				"2026-01-01": decimal.NewFromInt(50),
				"2026-01-02": decimal.NewFromInt(60),
				"2026-01-03": decimal.NewFromInt(58),
			},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	sell := result.Trades[1]
	assert.Equal(t, types.ExitEndOfBacktest, sell.Reason)
	assert.True(t, sell.Price.Equal(decimal.NewFromInt(58)), "exit at last known close, got %s", sell.Price)
	assert.True(t, result.FinalValue.Equal(decimal.NewFromInt(10_160)))
}

func TestBenchmarkFirstToLastClose(t *testing.T) {
	result, err := Run(Input{
		StartDate:       day(1),
		EndDate:         day(3),
		InitialCapital:  decimal.NewFromInt(10_000),
		Config:          testConfig(),
		BenchmarkSymbol: "SET50",
		Prices: map[string]map[string]decimal.Decimal{
			"SET50": {
				"2026-01-01": decimal.NewFromInt(100),
				"2026-01-03": decimal.NewFromInt(110),
			},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, result.Benchmark, 1e-9)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	in := Input{
		StartDate:      day(1),
		EndDate:        day(5),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         testConfig(),
		Signals: []types.Signal{
			buySignal("s1", "AAA", 1, 50, 55, 45),
			buySignal("s2", "BBB", 2, 100, 110, 90),
		},
		Prices: map[string]map[string]decimal.Decimal{
			"AAA": {
				"2026-01-01": decimal.NewFromInt(50),
				"2026-01-02": decimal.NewFromInt(52),
				"2026-01-03": decimal.NewFromInt(56),
			},
			"BBB": {
				"2026-01-02": decimal.NewFromInt(100),
				"2026-01-04": decimal.NewFromInt(89),
			},
		},
	}

	first, err := Run(in)
	require.NoError(t, err)
	second, err := Run(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Capital is conserved: final value is the starting capital plus the
	// realized P/L of every completed trade.
	total := in.InitialCapital
	for _, trade := range first.Trades {
		if trade.Completed() {
			total = total.Add(trade.PnL)
		}
	}
	assert.True(t, first.FinalValue.Equal(total), "final %s want %s", first.FinalValue, total)
}

func TestRejectsBadInput(t *testing.T) {
	_, err := Run(Input{
		StartDate:      day(2),
		EndDate:        day(1),
		InitialCapital: decimal.NewFromInt(10_000),
		Config:         testConfig(),
	})
	assert.Error(t, err)

	_, err = Run(Input{
		StartDate: day(1),
		EndDate:   day(2),
		Config:    testConfig(),
	})
	assert.Error(t, err)
}

func countBuys(r *Result) int {
	n := 0
	for _, trade := range r.Trades {
		if trade.Action == types.SignalBuy {
			n++
		}
	}
	return n
}
