// Package trailstop implements the stepped trailing stop-loss: once profit
// clears an activation threshold, the stop ratchets up in discrete
// increments and never moves down.
package trailstop

// TrailingStop tracks the running profit of one open position and derives
// the current stop level. All prices are in paise. It exists only while a
// position is open; discard it on close.
type TrailingStop struct {
	entryPrice  int64
	startProfit int64 // profit (paise) required before the stop arms
	step        int64 // paise per ratchet increment

	highestProfit int64
	stop          int64
	stopSet       bool
}

// New creates a TrailingStop for a position entered at entryPrice.
// startProfit and step must be positive (enforced by config validation).
func New(entryPrice, startProfit, step int64) *TrailingStop {
	return &TrailingStop{
		entryPrice:  entryPrice,
		startProfit: startProfit,
		step:        step,
	}
}

// Update feeds the latest option LTP, ratcheting the peak-profit watermark
// and possibly the stop level. Returns the stop and true when it moved up.
//
// The candidate is only accepted when it exceeds the current stop: the
// watermark can plateau, so monotonicity is enforced explicitly rather than
// left implied by the formula.
func (t *TrailingStop) Update(ltp int64) (int64, bool) {
	profit := ltp - t.entryPrice
	if profit > t.highestProfit {
		t.highestProfit = profit
	}
	if t.highestProfit < t.startProfit {
		return 0, false
	}

	levels := (t.highestProfit - t.startProfit) / t.step
	candidate := t.entryPrice + levels*t.step
	if !t.stopSet || candidate > t.stop {
		t.stop = candidate
		t.stopSet = true
		return t.stop, true
	}
	return t.stop, false
}

// Breached reports whether the current price has hit the stop. Always false
// while the stop is unarmed.
func (t *TrailingStop) Breached(ltp int64) bool {
	return t.stopSet && ltp <= t.stop
}

// Stop returns the current stop level and whether it is armed.
func (t *TrailingStop) Stop() (int64, bool) {
	return t.stop, t.stopSet
}

// HighestProfit returns the peak profit watermark in paise.
func (t *TrailingStop) HighestProfit() int64 { return t.highestProfit }
