// Package candle builds fixed-interval OHLC candles from instantaneous index
// price samples. Unlike calendar-aligned aggregation, the bucket boundary is
// relative to when aggregation last reset, matching a loop that starts
// mid-session.
package candle

import (
	"time"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// Aggregator folds price samples into one candle per interval. It is owned
// by the decision loop and must only be used from a single goroutine.
type Aggregator struct {
	interval    time.Duration
	bucketStart time.Time

	open, high, low, close int64
	samples                int
}

// New creates an Aggregator whose first bucket starts at now.
func New(interval time.Duration, now time.Time) *Aggregator {
	return &Aggregator{
		interval:    interval,
		bucketStart: now,
	}
}

// Observe folds one price sample (paise) into the current bucket.
func (a *Aggregator) Observe(price int64, now time.Time) {
	if a.samples == 0 {
		a.open = price
		a.high = price
		a.low = price
	} else {
		if price > a.high {
			a.high = price
		}
		if price < a.low {
			a.low = price
		}
	}
	a.close = price
	a.samples++
}

// BoundaryCrossed reports whether the current bucket's interval has elapsed.
func (a *Aggregator) BoundaryCrossed(now time.Time) bool {
	return now.Sub(a.bucketStart) >= a.interval
}

// TakeCandle finalizes the current bucket and resets the accumulator so the
// next bucket starts at now. Returns ok=false when zero samples were
// observed in the interval; the caller must not advance the indicator on a
// degenerate candle.
func (a *Aggregator) TakeCandle(now time.Time) (model.Candle, bool) {
	c := model.Candle{
		TS:      a.bucketStart,
		Open:    a.open,
		High:    a.high,
		Low:     a.low,
		Close:   a.close,
		Samples: a.samples,
	}
	ok := a.samples > 0

	a.bucketStart = now
	a.open, a.high, a.low, a.close = 0, 0, 0, 0
	a.samples = 0

	return c, ok
}

// Reset discards the current bucket and restarts aggregation at now. Called
// on daily reset so stale pre-close samples never leak into a fresh session.
func (a *Aggregator) Reset(now time.Time) {
	a.bucketStart = now
	a.open, a.high, a.low, a.close = 0, 0, 0, 0
	a.samples = 0
}

// Samples returns the number of samples in the forming bucket.
func (a *Aggregator) Samples() int { return a.samples }

// Interval returns the configured candle interval.
func (a *Aggregator) Interval() time.Duration { return a.interval }
