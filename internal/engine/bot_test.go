package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/broker"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indicator"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/markethours"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// ── fakes ──

type fakeBroker struct {
	mu          sync.Mutex
	indexLTP    int64
	indexErr    error
	optionLTP   int64
	fillPrice   int64
	rejectOrder bool
	orders      []string // "BUY ref qty" / "SELL ref qty"
	deadlineSet bool     // last PlaceOrder ctx carried a deadline
}

func (f *fakeBroker) IndexPrice(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	return f.indexLTP, nil
}

func (f *fakeBroker) OptionPrice(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.optionLTP, nil
}

func (f *fakeBroker) ResolveOption(_ context.Context, index string, strike int, ot model.OptionType, expiry string) (string, error) {
	return fmt.Sprintf("%s_%d_%s_%s", index, strike, ot, expiry), nil
}

func (f *fakeBroker) NearestExpiry(_ context.Context, _ string) (string, error) {
	return "2026-03-10", nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, ref string, side model.Side, qty int64) (model.OrderFill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.deadlineSet = ctx.Deadline()
	if f.rejectOrder {
		return model.OrderFill{}, fmt.Errorf("margin: %w", model.ErrOrderRejected)
	}
	f.orders = append(f.orders, fmt.Sprintf("%s %s %d", side, ref, qty))
	return model.OrderFill{OrderRef: "ORD1", FilledPrice: f.fillPrice}, nil
}

type exitRecord struct {
	tradeID string
	pnl     int64
	reason  model.ExitReason
}

type fakeStore struct {
	mu      sync.Mutex
	entries []model.Position
	exits   []exitRecord
}

func (f *fakeStore) RecordEntry(pos model.Position, _ model.TradingConfig, _ model.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, pos)
	return nil
}

func (f *fakeStore) RecordExit(tradeID string, _ time.Time, _ int64, pnl int64, reason model.ExitReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, exitRecord{tradeID: tradeID, pnl: pnl, reason: reason})
	return nil
}

func (f *fakeStore) SaveDailySummary(string, int, int64, int64, bool, model.Mode) error {
	return nil
}

type fakePub struct {
	mu    sync.Mutex
	count int
	last  model.StateSnapshot
}

func (f *fakePub) Publish(snap model.StateSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.last = snap
}

// ── helpers ──

// ist returns an instant on Tuesday 2026-03-10, a regular trading day.
func ist(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 10, hour, min, sec, 0, markethours.IST)
}

func testConfig() model.TradingConfig {
	return model.TradingConfig{
		OrderLots:        1,
		MaxTradesPerDay:  10,
		DailyMaxLoss:     2000,
		TrailStartProfit: 1000,
		TrailStep:        500,
		Period:           7,
		Multiplier:       4,
		CandleInterval:   5 * time.Second,
		Index:            "NIFTY",
	}
}

func newTestBot(t *testing.T, cfg model.TradingConfig) (*Bot, *fakeBroker, *fakeStore, *fakePub) {
	t.Helper()
	broker := &fakeBroker{indexLTP: 2400000, optionLTP: 10000, fillPrice: 10000}
	store := &fakeStore{}
	pub := &fakePub{}
	b, err := New(cfg, markethours.DefaultSession(), model.ModePaper,
		broker, store, pub, nil, slog.Default())
	require.NoError(t, err)
	b.now = func() time.Time { return ist(10, 0, 0) }
	// daily reset already applied for the day under test
	b.lastResetDay = markethours.DayKey(ist(10, 0, 0))
	return b, broker, store, pub
}

func up() indicator.Result   { return indicator.Result{Value: 100, Direction: indicator.DirectionUp} }
func down() indicator.Result { return indicator.Result{Value: 100, Direction: indicator.DirectionDown} }

// ── tests ──

func TestBot_EntryOnBullishSignal(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())

	require.NotNil(t, b.position)
	assert.Equal(t, model.OptionCall, b.position.OptionType)
	assert.Equal(t, 24000, b.position.Strike)  // 24000.00 rounds onto the 50-strike grid
	assert.Equal(t, int64(50), b.position.Qty) // 1 lot x NIFTY lot size
	assert.Equal(t, int64(10000), b.position.EntryPrice)
	assert.Equal(t, 1, b.risk.DailyTrades)
	assert.Len(t, store.entries, 1)
	assert.Len(t, broker.orders, 1)
}

func TestBot_BearishSignalBuysPut(t *testing.T) {
	b, broker, _, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), down())

	require.NotNil(t, b.position)
	assert.Equal(t, model.OptionPut, b.position.OptionType)
}

func TestBot_AtMostOnePosition(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())
	first := b.position.TradeID

	// Same-direction signal while open: hold, never a second entry.
	b.onSignal(context.Background(), ist(10, 0, 5), up())

	require.NotNil(t, b.position)
	assert.Equal(t, first, b.position.TradeID)
	assert.Equal(t, 1, b.risk.DailyTrades)
	assert.Len(t, store.entries, 1)
}

func TestBot_ReversalExit(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())
	require.NotNil(t, b.position)

	broker.fillPrice = 11000 // exit 110.00 vs entry 100.00
	b.optionLTP = 11000
	b.onSignal(context.Background(), ist(10, 0, 5), down())

	assert.Nil(t, b.position)
	assert.Nil(t, b.trail)
	require.Len(t, store.exits, 1)
	assert.Equal(t, model.ExitReversal, store.exits[0].reason)
	assert.Equal(t, int64(1000*50), store.exits[0].pnl)
	assert.Equal(t, int64(50000), b.risk.DailyPnL)
}

func TestBot_CooldownBlocksReentry(t *testing.T) {
	b, broker, _, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())
	exitAt := ist(10, 0, 5)
	b.onSignal(context.Background(), exitAt, down()) // reversal exit
	require.Nil(t, b.position)

	// Within one candle interval of the exit: entry suppressed.
	b.onSignal(context.Background(), exitAt.Add(4*time.Second), down())
	assert.Nil(t, b.position)

	// At the next boundary: entry allowed again.
	b.onSignal(context.Background(), exitAt.Add(5*time.Second), down())
	assert.NotNil(t, b.position)
}

func TestBot_DailyTradeCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTradesPerDay = 2
	b, broker, _, _ := newTestBot(t, cfg)
	b.indexLTP = broker.indexLTP

	now := ist(10, 0, 0)
	for i := 0; i < 3; i++ {
		b.onSignal(context.Background(), now, up())
		if b.position != nil {
			b.onSignal(context.Background(), now.Add(5*time.Second), down()) // exit
		}
		now = now.Add(time.Minute) // well past cool-down
	}
	assert.Equal(t, 2, b.risk.DailyTrades)
}

func TestBot_LossLimitSticky(t *testing.T) {
	cfg := testConfig()
	cfg.DailyMaxLoss = 2000
	b, broker, store, _ := newTestBot(t, cfg)
	b.indexLTP = broker.indexLTP

	// First loss: -1200 paise. qty=50, so 24 paise per unit.
	broker.fillPrice = 10000
	b.onSignal(context.Background(), ist(10, 0, 0), up())
	broker.fillPrice = 10000 - 24
	b.onSignal(context.Background(), ist(10, 0, 5), down())
	require.Len(t, store.exits, 1)
	assert.Equal(t, int64(-1200), b.risk.DailyPnL)
	assert.False(t, b.risk.LossLimitTriggered)

	// Second loss: -900 paise, total -2100 < -2000 triggers the limit.
	broker.fillPrice = 10000
	b.onSignal(context.Background(), ist(10, 1, 0), down())
	broker.fillPrice = 10000 - 18
	b.onSignal(context.Background(), ist(10, 1, 5), up())
	assert.Equal(t, int64(-2100), b.risk.DailyPnL)
	assert.True(t, b.risk.LossLimitTriggered)

	// Entries refused until the next daily reset.
	b.onSignal(context.Background(), ist(10, 5, 0), up())
	assert.Nil(t, b.position)
	assert.Equal(t, 2, b.risk.DailyTrades)
}

func TestBot_MaxDrawdownTracksWorstLoss(t *testing.T) {
	b, broker, _, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	broker.fillPrice = 10000
	b.onSignal(context.Background(), ist(10, 0, 0), up())
	broker.fillPrice = 10000 - 10
	b.onSignal(context.Background(), ist(10, 0, 5), down())

	assert.Equal(t, int64(500), b.risk.MaxDrawdown)
}

func TestBot_SquareoffPrecedence(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())
	require.NotNil(t, b.position)

	// At the square-off instant the tick closes the position regardless of
	// any signal that would favor holding.
	b.now = func() time.Time { return ist(15, 25, 0) }
	b.tick(context.Background(), ist(15, 25, 0))

	assert.Nil(t, b.position)
	require.Len(t, store.exits, 1)
	assert.Equal(t, model.ExitSquareOff, store.exits[0].reason)
}

func TestBot_NoEntryAfterCutoff(t *testing.T) {
	b, broker, _, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(15, 20, 0), up())
	assert.Nil(t, b.position)
}

func TestBot_OrderRejectionLeavesStateClean(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP
	broker.rejectOrder = true

	b.onSignal(context.Background(), ist(10, 0, 0), up())

	assert.Nil(t, b.position)
	assert.Equal(t, 0, b.risk.DailyTrades)
	assert.Empty(t, store.entries)
}

func TestBot_IdleOutsideMarketHours(t *testing.T) {
	b, broker, _, pub := newTestBot(t, testConfig())
	pre := ist(8, 0, 0)
	b.tick(context.Background(), pre)

	broker.mu.Lock()
	orders := len(broker.orders)
	broker.mu.Unlock()
	assert.Zero(t, orders)
	assert.Equal(t, 1, pub.count, "idle tick must still publish")
	assert.False(t, pub.last.MarketOpen)
}

func TestBot_QuoteFailureIsNoDataTick(t *testing.T) {
	b, broker, _, pub := newTestBot(t, testConfig())
	broker.indexErr = fmt.Errorf("timeout: %w", model.ErrNoData)

	b.tick(context.Background(), ist(10, 0, 0))

	assert.Equal(t, 0, b.agg.Samples())
	assert.Equal(t, 1, pub.count)

	// Backoff suppresses the immediately following tick.
	b.tick(context.Background(), ist(10, 0, 1))
	assert.Equal(t, 1, pub.count)
}

func TestBot_DailyReset(t *testing.T) {
	b, _, _, _ := newTestBot(t, testConfig())
	b.risk = RiskState{DailyTrades: 5, DailyPnL: -3000, MaxDrawdown: 900, LossLimitTriggered: true}
	b.lastExitBoundary = ist(9, 0, 0)
	b.lastResetDay = "2026-03-09"

	b.maybeDailyReset(ist(9, 15, 0))

	assert.Equal(t, RiskState{}, b.risk)
	assert.True(t, b.lastExitBoundary.IsZero())
	assert.False(t, b.st.Ready())
	assert.Equal(t, markethours.DayKey(ist(9, 15, 0)), b.lastResetDay)
}

func TestBot_NoResetBeforeOpen(t *testing.T) {
	b, _, _, _ := newTestBot(t, testConfig())
	b.risk.DailyTrades = 3
	b.lastResetDay = "2026-03-09"

	b.maybeDailyReset(ist(9, 0, 0))

	assert.Equal(t, 3, b.risk.DailyTrades)
	assert.Equal(t, "2026-03-09", b.lastResetDay)
}

func TestBot_SnapshotReflectsPosition(t *testing.T) {
	b, broker, _, pub := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())
	b.publish(ist(10, 0, 0))

	snap := b.Snapshot()
	require.NotNil(t, snap.Position)
	assert.Equal(t, b.position.TradeID, snap.Position.TradeID)
	assert.Equal(t, pub.last.Position.TradeID, snap.Position.TradeID)
	assert.Equal(t, 1, snap.DailyTrades)
}

func TestBot_ModeSwitchRedirectsOrders(t *testing.T) {
	paperGW := &fakeBroker{indexLTP: 2400000, optionLTP: 10000, fillPrice: 10000}
	liveGW := &fakeBroker{indexLTP: 2400000, optionLTP: 10000, fillPrice: 10000}
	router, err := broker.NewRouter(model.ModeLive, paperGW, liveGW)
	require.NoError(t, err)

	b, err := New(testConfig(), markethours.DefaultSession(), model.ModeLive,
		router, &fakeStore{}, &fakePub{}, nil, slog.Default())
	require.NoError(t, err)
	b.now = func() time.Time { return ist(10, 0, 0) }
	b.lastResetDay = markethours.DayKey(ist(10, 0, 0))
	b.indexLTP = 2400000

	require.NoError(t, b.SetMode(model.ModePaper))
	assert.Equal(t, model.ModePaper, b.Mode())

	// With the label switched the orders must follow it.
	b.onSignal(context.Background(), ist(10, 0, 0), up())
	require.NotNil(t, b.position)
	assert.Len(t, paperGW.orders, 1)
	assert.Empty(t, liveGW.orders)
}

func TestBot_ModeSwitchRefusedWithoutVenue(t *testing.T) {
	// A fixed single-venue gateway cannot honor a switch, so the label must
	// not move either.
	b, _, _, _ := newTestBot(t, testConfig())

	err := b.SetMode(model.ModeLive)
	require.Error(t, err)
	assert.Equal(t, model.ModePaper, b.Mode())
}

func TestBot_UnpricedFillUsesFreshQuote(t *testing.T) {
	b, broker, _, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP
	broker.fillPrice = 0
	broker.optionLTP = 10460

	b.onSignal(context.Background(), ist(10, 0, 0), up())

	require.NotNil(t, b.position)
	assert.Equal(t, int64(10460), b.position.EntryPrice)
}

func TestBot_UnpricedFillWithoutQuoteUnwinds(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP
	broker.fillPrice = 0
	broker.optionLTP = 0

	b.onSignal(context.Background(), ist(10, 0, 0), up())

	assert.Nil(t, b.position)
	assert.Nil(t, b.trail)
	assert.Equal(t, 0, b.risk.DailyTrades)
	assert.Zero(t, b.risk.DailyPnL)
	assert.Empty(t, store.entries)

	// The filled buy is flattened with a counter order.
	require.Len(t, broker.orders, 2)
	assert.Contains(t, broker.orders[0], "BUY")
	assert.Contains(t, broker.orders[1], "SELL")
}

func TestBot_SquareoffOrderIsTimeBounded(t *testing.T) {
	b, broker, _, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	b.onSignal(context.Background(), ist(10, 0, 0), up())
	require.NotNil(t, b.position)

	require.NoError(t, b.Squareoff())
	assert.Nil(t, b.position)
	assert.True(t, broker.deadlineSet, "square-off exit must carry a broker deadline")

	// Same bound on the session-close path.
	b.onSignal(context.Background(), ist(10, 1, 0), up())
	require.NotNil(t, b.position)
	broker.deadlineSet = false
	b.now = func() time.Time { return ist(15, 25, 0) }
	b.tick(context.Background(), ist(15, 25, 0))
	assert.Nil(t, b.position)
	assert.True(t, broker.deadlineSet, "forced square-off must carry a broker deadline")
}

func TestBot_ConcurrentCommandsWhileStopped(t *testing.T) {
	b, _, _, _ := newTestBot(t, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Squareoff()
			_ = b.SetMode(model.ModePaper)
		}()
	}
	wg.Wait()

	assert.Nil(t, b.position)
	assert.Equal(t, model.ModePaper, b.Mode())
}

func TestBot_TrailingStopExitAtBoundary(t *testing.T) {
	b, broker, store, _ := newTestBot(t, testConfig())
	b.indexLTP = broker.indexLTP

	broker.fillPrice = 5000
	b.onSignal(context.Background(), ist(10, 0, 0), up())
	require.NotNil(t, b.position)

	// Ratchet the stop to 55.00 (profit peaked at 17.00), then fall to 53.00.
	b.optionLTP = 6700
	b.trail.Update(b.optionLTP)
	b.optionLTP = 5300
	broker.fillPrice = 5300

	// Stop breach wins over a signal that favors holding the call.
	b.onSignal(context.Background(), ist(10, 0, 5), up())

	assert.Nil(t, b.position)
	require.Len(t, store.exits, 1)
	assert.Equal(t, model.ExitTrailingStop, store.exits[0].reason)
}
