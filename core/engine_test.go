package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirayume/thai-asset-zen-sub000/broker"
	"github.com/thirayume/thai-asset-zen-sub000/execution"
	"github.com/thirayume/thai-asset-zen-sub000/feeds"
	"github.com/thirayume/thai-asset-zen-sub000/monitor"
	"github.com/thirayume/thai-asset-zen-sub000/risk"
	"github.com/thirayume/thai-asset-zen-sub000/storage"
	"github.com/thirayume/thai-asset-zen-sub000/types"
)

type nullAlerter struct{}

func (nullAlerter) RaiseAlert(ctx context.Context, userID, kind, message string, fields map[string]string) {
}

type harness struct {
	db     *storage.Database
	quotes *feeds.QuoteFeed
	engine *Engine

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	quotes := feeds.NewQuoteFeed("ws://unused", nil)
	brokers := broker.NewFactory("")
	alerter := nullAlerter{}

	gate := risk.NewGate(db, alerter, time.UTC)
	executor := execution.New(db, brokers, alerter, execution.Config{
		PollAttempts: 1,
		PollInterval: time.Millisecond,
	})
	mon := monitor.New(db, quotes, brokers, alerter)

	h := &harness{
		db:     db,
		quotes: quotes,
		engine: NewEngine(db, gate, executor, mon, quotes, time.Minute, time.Minute),
	}
	h.engine.Router().SubscribeAll(func(e Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
	})
	return h
}

func (h *harness) eventTypes() []EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]EventType, len(h.events))
	for i, e := range h.events {
		kinds[i] = e.Type
	}
	return kinds
}

func (h *harness) seedBot(t *testing.T, maxDailyTrades int) {
	t.Helper()
	require.NoError(t, h.db.SaveBot(context.Background(), &storage.UserBot{
		UserID:             "u-1",
		Enabled:            true,
		Mode:               string(types.ModePaper),
		MaxPositionSize:    decimal.NewFromInt(10_000),
		MaxDailyTrades:     maxDailyTrades,
		MaxTotalExposure:   decimal.NewFromInt(100_000),
		MinConfidenceScore: 75,
		DailyLossLimit:     decimal.NewFromInt(50_000),
		AllowedSignalTypes: "BUY",
		AutoStopLoss:       true,
		AutoTakeProfit:     true,
	}))
}

func (h *harness) seedSignal(t *testing.T, id string, confidence int) {
	t.Helper()
	require.NoError(t, h.db.SaveSignal(context.Background(), &storage.Signal{
		ID:              id,
		Symbol:          "XYZ",
		Type:            string(types.SignalBuy),
		ConfidenceScore: confidence,
		CurrentPrice:    decimal.NewFromInt(100),
		TargetPrice:     decimal.NewFromInt(120),
		StopLoss:        decimal.NewFromInt(90),
		CreatedAt:       time.Now(),
		ExpiresAt:       time.Now().Add(time.Hour),
	}))
}

func TestSweepExecutesEligibleSignal(t *testing.T) {
	h := newHarness(t)
	h.seedBot(t, 5)
	h.seedSignal(t, "s-1", 80)

	ctx := context.Background()
	require.NoError(t, h.engine.Sweep(ctx))

	positions, err := h.db.ActivePositions(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(100), positions[0].Shares)

	assert.Equal(t, []EventType{EventTradeExecuted}, h.eventTypes())

	// Repeat sweeps are idempotent for the same signal.
	require.NoError(t, h.engine.Sweep(ctx))
	positions, err = h.db.ActivePositions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestSweepDefersSignalsBeyondDailyCap(t *testing.T) {
	h := newHarness(t)
	h.seedBot(t, 1)
	h.seedSignal(t, "s-1", 80)
	h.seedSignal(t, "s-2", 80)

	ctx := context.Background()
	require.NoError(t, h.engine.Sweep(ctx))

	// The cap budgets the batch: one trade, the second signal waits, and
	// the bot stays enabled rather than tripping the gate.
	positions, err := h.db.ActivePositions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	bot, err := h.db.GetBot(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, bot.Enabled)

	assert.Equal(t, []EventType{EventTradeExecuted}, h.eventTypes())
}

func TestSweepSkipsLowConfidence(t *testing.T) {
	h := newHarness(t)
	h.seedBot(t, 5)
	h.seedSignal(t, "s-1", 60)

	ctx := context.Background()
	require.NoError(t, h.engine.Sweep(ctx))

	positions, err := h.db.ActivePositions(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSweepDisablesBotOnDenial(t *testing.T) {
	h := newHarness(t)
	h.seedBot(t, 0)
	h.seedSignal(t, "s-1", 80)

	ctx := context.Background()
	require.NoError(t, h.engine.Sweep(ctx))

	positions, err := h.db.ActivePositions(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, positions)

	bot, err := h.db.GetBot(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, bot.Enabled)

	assert.Equal(t, []EventType{EventBotDisabled}, h.eventTypes())
}

func TestWatchlistCollectsOpenAndPendingSymbols(t *testing.T) {
	h := newHarness(t)
	h.seedSignal(t, "s-1", 80)

	ctx := context.Background()
	require.NoError(t, h.db.CreatePosition(ctx, &storage.Position{
		ID: "p-1", UserID: "u-1", Symbol: "AOT",
		Shares: 10, EntryPrice: decimal.NewFromInt(60),
		EntryDate: time.Now(), Status: storage.PositionActive,
	}))
	require.NoError(t, h.db.CreateMonitored(ctx, &storage.MonitoredPosition{
		ID: "m-1", PositionID: "p-1", UserID: "u-1", Symbol: "AOT",
		Shares: 10, EntryPrice: decimal.NewFromInt(60),
		CurrentPrice: decimal.NewFromInt(60), HighestPriceSeen: decimal.NewFromInt(60),
		Active: true,
	}))

	symbols, err := Watchlist(ctx, h.db)
	require.NoError(t, err)
	assert.Equal(t, []string{"AOT", "XYZ"}, symbols)
}

func TestPauseBlocksStatusLine(t *testing.T) {
	h := newHarness(t)

	h.engine.Pause()
	assert.Contains(t, h.engine.Status(), "PAUSED")

	h.engine.Resume()
	assert.Contains(t, h.engine.Status(), "RUNNING")
}
