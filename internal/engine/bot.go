// Package engine runs the decision loop: one goroutine owns candle
// aggregation, the indicator, the trailing stop and the position state
// machine, ticking once per second. Everything outside reads an atomically
// swapped snapshot or talks to the loop through a command channel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/candle"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indicator"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indices"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/markethours"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/metrics"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/trailstop"
)

const (
	tickInterval = time.Second
	errorBackoff = 5 * time.Second
	brokerBudget = 3 * time.Second
)

// RiskState holds the per-day counters the state machine gates entries on.
type RiskState struct {
	DailyTrades        int
	DailyPnL           int64 // paise, realized
	MaxDrawdown        int64 // paise, worst single-trade loss magnitude
	LossLimitTriggered bool
}

type cmdKind int

const (
	cmdSquareoff cmdKind = iota
	cmdSetMode
)

type command struct {
	kind  cmdKind
	mode  model.Mode
	reply chan error
}

// Bot is the trading session. Loop-owned fields below the divider are
// touched only from run's goroutine.
type Bot struct {
	cfg     model.TradingConfig
	index   indices.Index
	session markethours.Session

	broker model.BrokerGateway
	store  model.TradeStore
	pub    model.SnapshotPublisher
	mets   *metrics.Metrics
	log    *slog.Logger

	now func() time.Time // injectable clock

	running atomic.Bool
	snap    atomic.Value // *model.StateSnapshot

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	cmdCh  chan command

	// ── loop-owned state ──
	agg        *candle.Aggregator
	st         *indicator.SuperTrend
	trail      *trailstop.TrailingStop
	position   *model.Position
	risk       RiskState
	mode       model.Mode
	indexLTP   int64
	optionLTP  int64
	lastSignal string
	stValue    float64
	backoff    time.Time // tick errors suppress decision work until here

	lastExitBoundary time.Time // cool-down anchor
	lastResetDay     string    // IST date the daily reset last fired
}

// New validates the config, resolves the index and returns a stopped Bot.
func New(cfg model.TradingConfig, session markethours.Session, mode model.Mode,
	broker model.BrokerGateway, store model.TradeStore, pub model.SnapshotPublisher,
	mets *metrics.Metrics, log *slog.Logger) (*Bot, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("trading config: %w", err)
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	ix, ok := indices.Get(cfg.Index)
	if !ok {
		return nil, fmt.Errorf("unknown index %q", cfg.Index)
	}

	// A switchable broker must start on the same venue the engine labels
	// trades with.
	if sw, ok := broker.(model.ModeSwitcher); ok {
		if err := sw.SetMode(mode); err != nil {
			return nil, fmt.Errorf("broker mode %s: %w", mode, err)
		}
	}

	b := &Bot{
		cfg:     cfg,
		index:   ix,
		session: session,
		broker:  broker,
		store:   store,
		pub:     pub,
		mets:    mets,
		log:     log.With("index", cfg.Index),
		now:     time.Now,
		mode:    mode,
		cmdCh:   make(chan command),
	}
	now := b.now()
	b.agg = candle.New(cfg.CandleInterval, now)
	b.st = indicator.New(cfg.Period, cfg.Multiplier)
	b.lastResetDay = ""
	b.snap.Store(&model.StateSnapshot{Timestamp: now, Mode: mode, Index: cfg.Index})
	return b, nil
}

// Start launches the decision loop. No-op when already running.
func (b *Bot) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running.Store(true)

	now := b.now()
	b.agg.Reset(now)
	b.log.Info("bot started", "mode", b.mode, "interval", b.cfg.CandleInterval)
	go b.run(ctx)
}

// Stop requests a halt; it takes effect at the next tick boundary.
func (b *Bot) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	b.running.Store(false)
	b.log.Info("bot stopped")
}

// Running reports whether the loop is active.
func (b *Bot) Running() bool { return b.running.Load() }

// Snapshot returns the latest published state. Safe from any goroutine.
func (b *Bot) Snapshot() model.StateSnapshot {
	return *b.snap.Load().(*model.StateSnapshot)
}

// Squareoff asks the loop to force-close any open position. Returns once
// the loop has processed the request.
func (b *Bot) Squareoff() error {
	return b.send(command{kind: cmdSquareoff})
}

// SetMode switches between paper and live execution. Refused while a
// position is open or while the loop is running in the other mode with
// state at risk.
func (b *Bot) SetMode(mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	return b.send(command{kind: cmdSetMode, mode: mode})
}

// Mode returns the execution mode from the latest snapshot.
func (b *Bot) Mode() model.Mode {
	return b.Snapshot().Mode
}

func (b *Bot) send(cmd command) error {
	b.mu.Lock()
	if !b.running.Load() {
		// Loop idle: apply directly. The lock serializes concurrent callers
		// touching loop-owned state while no loop goroutine exists.
		defer b.mu.Unlock()
		return b.apply(cmd)
	}
	b.mu.Unlock()
	cmd.reply = make(chan error, 1)
	select {
	case b.cmdCh <- cmd:
		return <-cmd.reply
	case <-time.After(brokerBudget + time.Second):
		return errors.New("engine busy, command timed out")
	}
}

func (b *Bot) run(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.cmdCh:
			cmd.reply <- b.apply(cmd)
		case <-ticker.C:
			b.tick(ctx, b.now())
		}
	}
}

func (b *Bot) apply(cmd command) error {
	switch cmd.kind {
	case cmdSquareoff:
		if b.position == nil {
			return errors.New("no open position")
		}
		ctx, cancel := context.WithTimeout(context.Background(), brokerBudget)
		defer cancel()
		return b.exitPosition(ctx, b.now(), model.ExitSquareOff)
	case cmdSetMode:
		if b.position != nil {
			return errors.New("cannot switch mode with an open position")
		}
		if cmd.mode != b.mode {
			// The label only changes together with the execution venue.
			sw, ok := b.broker.(model.ModeSwitcher)
			if !ok {
				return fmt.Errorf("broker cannot execute in %s mode", cmd.mode)
			}
			if err := sw.SetMode(cmd.mode); err != nil {
				return err
			}
		}
		b.mode = cmd.mode
		b.log.Info("mode switched", "mode", cmd.mode)
		b.publish(b.now())
		return nil
	}
	return fmt.Errorf("unknown command %d", cmd.kind)
}

// tick is one loop iteration. Errors never escape: they set a backoff and
// the loop resumes.
func (b *Bot) tick(ctx context.Context, now time.Time) {
	if now.Before(b.backoff) {
		return
	}

	b.maybeDailyReset(now)

	// Forced square-off outranks every other consideration.
	if b.position != nil && b.session.ShouldSquareOff(now) {
		sctx, cancel := context.WithTimeout(ctx, brokerBudget)
		defer cancel()
		if err := b.exitPosition(sctx, now, model.ExitSquareOff); err != nil {
			b.log.Error("square-off exit failed, retrying next tick", "err", err)
			b.mets.IncLoopError()
		}
		b.publish(now)
		return
	}

	open := b.session.IsOpen(now)
	b.mets.SetMarketOpen(open)
	if !open || b.risk.LossLimitTriggered {
		b.publish(now)
		return
	}

	bctx, cancel := context.WithTimeout(ctx, brokerBudget)
	defer cancel()

	ltp, err := b.broker.IndexPrice(bctx, b.cfg.Index)
	if err != nil {
		b.log.Warn("index quote failed, no data this tick", "err", err)
		b.mets.IncLoopError()
		b.backoff = now.Add(errorBackoff)
		b.publish(now)
		return
	}
	b.indexLTP = ltp
	b.agg.Observe(ltp, now)
	b.mets.IncSample()

	if b.position != nil {
		if oltp, err := b.broker.OptionPrice(bctx, b.position.SecurityRef); err != nil {
			b.log.Warn("option quote failed, holding last", "ref", b.position.SecurityRef, "err", err)
		} else {
			b.optionLTP = model.RoundToOptionTick(oltp)
		}
	}

	if b.agg.BoundaryCrossed(now) {
		if c, ok := b.agg.TakeCandle(now); ok {
			b.mets.IncCandle()
			if res, ready := b.st.AddCandle(c); ready {
				b.onSignal(bctx, now, res)
			}
		}
	} else if b.position != nil && b.trail != nil {
		b.trail.Update(b.optionLTP)
	}

	b.publish(now)
}

// onSignal handles one indicator emission at a candle boundary: stop breach
// first, then reversal exit, then entry.
func (b *Bot) onSignal(ctx context.Context, now time.Time, res indicator.Result) {
	signal := res.Direction.Signal()
	b.stValue = res.Value
	b.lastSignal = signal
	b.mets.IncSignal(signal)

	if b.position != nil {
		b.trail.Update(b.optionLTP)
		if b.trail.Breached(b.optionLTP) {
			if err := b.exitPosition(ctx, now, model.ExitTrailingStop); err != nil {
				b.log.Error("stop exit failed, retrying next cycle", "err", err)
			}
			return
		}
		reversal := (b.position.OptionType == model.OptionCall && res.Direction == indicator.DirectionDown) ||
			(b.position.OptionType == model.OptionPut && res.Direction == indicator.DirectionUp)
		if reversal {
			if err := b.exitPosition(ctx, now, model.ExitReversal); err != nil {
				b.log.Error("reversal exit failed, retrying next cycle", "err", err)
			}
			return
		}
		return
	}

	// FLAT: entry gating.
	if !b.lastExitBoundary.IsZero() && now.Sub(b.lastExitBoundary) < b.cfg.CandleInterval {
		return // cool-down after an exit
	}
	if !b.session.CanEnter(now) {
		return
	}
	if b.risk.DailyTrades >= b.cfg.MaxTradesPerDay {
		b.log.Info("daily trade cap reached, skipping entry", "trades", b.risk.DailyTrades)
		return
	}
	if b.risk.LossLimitTriggered {
		return
	}
	b.enterPosition(ctx, now, res.Direction)
}

func (b *Bot) enterPosition(ctx context.Context, now time.Time, dir indicator.Direction) {
	if b.position != nil {
		// Invariant: at most one open position. Reaching here is a bug.
		b.log.Error("entry attempted with open position, ignoring", "trade", b.position.TradeID)
		return
	}

	optType := model.OptionCall
	if dir == indicator.DirectionDown {
		optType = model.OptionPut
	}
	strike := b.index.RoundToStrike(b.indexLTP)

	expiry, err := b.broker.NearestExpiry(ctx, b.cfg.Index)
	if err != nil {
		expiry = b.index.NextExpiry(now)
	}

	started := b.now()
	ref, err := b.broker.ResolveOption(ctx, b.cfg.Index, strike, optType, expiry)
	b.mets.ObserveBrokerCall("resolve_option", b.now().Sub(started))
	if err != nil {
		b.log.Error("option unresolvable, entry aborted", "strike", strike, "type", optType, "expiry", expiry, "err", err)
		return
	}

	qty := b.cfg.OrderLots * b.index.LotSize
	started = b.now()
	fill, err := b.broker.PlaceOrder(ctx, ref, model.SideBuy, qty)
	b.mets.ObserveBrokerCall("place_order", b.now().Sub(started))
	if err != nil {
		b.log.Error("entry order failed, no state change", "ref", ref, "err", err)
		return
	}
	entryPrice := fill.FilledPrice
	if entryPrice <= 0 {
		// Some fills come back unpriced. A fresh quote stands in; without
		// one the position cannot be risk-managed, so unwind it.
		oltp, qerr := b.broker.OptionPrice(ctx, ref)
		if qerr != nil || oltp <= 0 {
			b.log.Error("fill unpriced and quote unavailable, unwinding entry",
				"ref", ref, "order", fill.OrderRef, "err", qerr)
			if _, uerr := b.broker.PlaceOrder(ctx, ref, model.SideSell, qty); uerr != nil {
				b.log.Error("unwind order failed, square off manually", "ref", ref, "err", uerr)
			}
			return
		}
		entryPrice = model.RoundToOptionTick(oltp)
	}

	b.position = &model.Position{
		TradeID:     fmt.Sprintf("T%d-%s", now.Unix(), uuid.NewString()[:8]),
		OptionType:  optType,
		Strike:      strike,
		Expiry:      expiry,
		SecurityRef: ref,
		IndexName:   b.cfg.Index,
		Qty:         qty,
		EntryPrice:  entryPrice,
		EntryTime:   now,
	}
	b.trail = trailstop.New(entryPrice, b.cfg.TrailStartProfit, b.cfg.TrailStep)
	b.optionLTP = entryPrice
	b.risk.DailyTrades++
	b.mets.IncTradeOpened()

	b.log.Info("position opened",
		"trade", b.position.TradeID, "type", optType, "strike", strike,
		"expiry", expiry, "qty", qty, "entry", entryPrice, "order", fill.OrderRef)

	if err := b.store.RecordEntry(*b.position, b.cfg, b.mode); err != nil {
		b.log.Error("trade entry not journaled", "trade", b.position.TradeID, "err", err)
	}
}

func (b *Bot) exitPosition(ctx context.Context, now time.Time, reason model.ExitReason) error {
	pos := b.position
	if pos == nil {
		return nil
	}

	started := b.now()
	fill, err := b.broker.PlaceOrder(ctx, pos.SecurityRef, model.SideSell, pos.Qty)
	b.mets.ObserveBrokerCall("place_order", b.now().Sub(started))
	if err != nil {
		// Position stays open; the loop retries on the next cycle.
		return fmt.Errorf("exit order for %s: %w", pos.TradeID, err)
	}
	exitPrice := fill.FilledPrice
	if exitPrice == 0 {
		exitPrice = b.optionLTP
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Qty
	b.risk.DailyPnL += pnl
	if pnl < 0 && -pnl > b.risk.MaxDrawdown {
		b.risk.MaxDrawdown = -pnl
	}
	if b.risk.DailyPnL < -b.cfg.DailyMaxLoss {
		b.risk.LossLimitTriggered = true
		b.log.Warn("daily loss limit triggered, entries halted until reset",
			"daily_pnl", b.risk.DailyPnL, "limit", b.cfg.DailyMaxLoss)
	}
	b.mets.IncTradeClosed(string(reason))
	b.mets.SetDailyPnL(b.risk.DailyPnL)

	b.log.Info("position closed",
		"trade", pos.TradeID, "reason", reason, "exit", exitPrice,
		"pnl", pnl, "daily_pnl", b.risk.DailyPnL, "order", fill.OrderRef)

	if err := b.store.RecordExit(pos.TradeID, now, exitPrice, pnl, reason); err != nil {
		b.log.Error("trade exit not journaled", "trade", pos.TradeID, "err", err)
	}
	if err := b.store.SaveDailySummary(markethours.DayKey(now), b.risk.DailyTrades,
		b.risk.DailyPnL, b.risk.MaxDrawdown, b.risk.LossLimitTriggered, b.mode); err != nil {
		b.log.Error("daily summary not saved", "err", err)
	}

	b.position = nil
	b.trail = nil
	b.optionLTP = 0
	b.lastExitBoundary = now
	return nil
}

// maybeDailyReset clears the per-day counters and indicator state on the
// first tick at or after session open of a new IST trading day.
func (b *Bot) maybeDailyReset(now time.Time) {
	day := markethours.DayKey(now)
	if day == b.lastResetDay || !markethours.IsTradingDay(now) {
		return
	}
	if now.Before(b.session.OpenInstant(now)) {
		return
	}

	b.risk = RiskState{}
	b.lastExitBoundary = time.Time{}
	b.st.Reset()
	b.agg.Reset(now)
	b.lastSignal = ""
	b.stValue = 0
	b.lastResetDay = day
	b.mets.SetDailyPnL(0)
	b.log.Info("daily reset applied", "day", day)
}

func (b *Bot) publish(now time.Time) {
	snap := &model.StateSnapshot{
		Timestamp:          now,
		Running:            b.running.Load(),
		Mode:               b.mode,
		Index:              b.cfg.Index,
		IndexLTP:           b.indexLTP,
		Signal:             b.lastSignal,
		SupertrendValue:    b.stValue,
		OptionLTP:          b.optionLTP,
		DailyPnL:           b.risk.DailyPnL,
		DailyTrades:        b.risk.DailyTrades,
		MaxDrawdown:        b.risk.MaxDrawdown,
		LossLimitTriggered: b.risk.LossLimitTriggered,
		MarketOpen:         b.session.IsOpen(now),
	}
	if b.position != nil {
		p := *b.position
		snap.Position = &p
		if b.trail != nil {
			if stop, set := b.trail.Stop(); set {
				s := stop
				snap.TrailingSL = &s
			}
		}
	}
	b.snap.Store(snap)
	if b.pub != nil {
		b.pub.Publish(*snap)
	}
}
