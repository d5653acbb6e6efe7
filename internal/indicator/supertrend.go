// Package indicator provides the SuperTrend trend-reversal indicator over
// Wilder-smoothed ATR.
//
// Candle prices arrive in paise; band math runs in float64 rupees and the
// emitted value is in rupees, matching the convention that indicator values
// are floats while wire prices are integers.
package indicator

import (
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// Direction is the prevailing trend.
type Direction int

const (
	DirectionDown Direction = -1
	DirectionUp   Direction = 1
)

// Signal returns the display label for the direction: GREEN for bullish,
// RED for bearish.
func (d Direction) Signal() string {
	if d == DirectionUp {
		return "GREEN"
	}
	return "RED"
}

// Result is one indicator emission: the SuperTrend line value (rupees) and
// the trend direction after this candle.
type Result struct {
	Value     float64
	Direction Direction
}

// maxHistory bounds the retained candle window. The recursion uses only the
// immediately preceding candle, previous ATR, and previous final bands, so
// trimming never changes the output.
const maxHistory = 100

type bands struct {
	upper, lower float64
	direction    Direction
}

// SuperTrend computes the indicator incrementally, one candle at a time.
// Strictly sequential: candles must be appended in order. Single-goroutine
// use only.
type SuperTrend struct {
	period     int
	multiplier float64

	candles []model.Candle // most recent candles, trimmed to maxHistory
	count   int            // total candles observed (not trimmed)

	lastATR float64
	seeded  bool // ATR bootstrap completed

	prev    bands
	hasPrev bool
}

// New creates a SuperTrend indicator. period must be in [2, 100].
func New(period int, multiplier float64) *SuperTrend {
	return &SuperTrend{
		period:     period,
		multiplier: multiplier,
		candles:    make([]model.Candle, 0, maxHistory+1),
	}
}

// Reset discards all state for a fresh warm-up (daily session reset).
func (s *SuperTrend) Reset() {
	s.candles = s.candles[:0]
	s.count = 0
	s.lastATR = 0
	s.seeded = false
	s.prev = bands{}
	s.hasPrev = false
}

// Ready returns true once at least period candles have been observed.
func (s *SuperTrend) Ready() bool { return s.count >= s.period }

// AddCandle appends one candle and recomputes. Returns ok=false during
// warm-up (fewer than period candles observed).
func (s *SuperTrend) AddCandle(c model.Candle) (Result, bool) {
	s.candles = append(s.candles, c)
	s.count++
	if len(s.candles) > maxHistory {
		s.candles = s.candles[len(s.candles)-maxHistory:]
	}

	if s.count < s.period {
		return Result{}, false
	}

	high := model.PaiseToRupees(c.High)
	low := model.PaiseToRupees(c.Low)
	close := model.PaiseToRupees(c.Close)

	// ATR: simple mean of TR over the bootstrap window, Wilder smoothing
	// after that.
	var atr float64
	if !s.seeded {
		atr = s.bootstrapATR()
		s.seeded = true
	} else {
		tr := s.trueRange(len(s.candles) - 1)
		atr = (s.lastATR*float64(s.period-1) + tr) / float64(s.period)
	}
	s.lastATR = atr

	mid := (high + low) / 2
	basicUpper := mid + s.multiplier*atr
	basicLower := mid - s.multiplier*atr

	var finalUpper, finalLower float64
	var dir Direction
	if !s.hasPrev {
		finalUpper = basicUpper
		finalLower = basicLower
		// First computable candle: a tie against the upper band resolves
		// bullish.
		if close >= finalUpper {
			dir = DirectionUp
		} else {
			dir = DirectionDown
		}
	} else {
		// Hysteresis against the previous final bands keeps them from
		// collapsing into a trending price.
		prevClose := model.PaiseToRupees(s.candles[len(s.candles)-2].Close)
		if basicLower > s.prev.lower || prevClose < s.prev.lower {
			finalLower = basicLower
		} else {
			finalLower = s.prev.lower
		}
		if basicUpper < s.prev.upper || prevClose > s.prev.upper {
			finalUpper = basicUpper
		} else {
			finalUpper = s.prev.upper
		}

		dir = s.prev.direction
		if s.prev.direction == DirectionUp {
			if close < finalLower {
				dir = DirectionDown
			}
		} else {
			if close > finalUpper {
				dir = DirectionUp
			}
		}
	}

	s.prev = bands{upper: finalUpper, lower: finalLower, direction: dir}
	s.hasPrev = true

	value := finalLower
	if dir == DirectionDown {
		value = finalUpper
	}
	return Result{Value: value, Direction: dir}, true
}

// trueRange computes TR for the candle at index i of the retained window.
// With no previous close (the very first candle) TR degenerates to high−low.
func (s *SuperTrend) trueRange(i int) float64 {
	c := s.candles[i]
	high := model.PaiseToRupees(c.High)
	low := model.PaiseToRupees(c.Low)
	tr := high - low
	if i == 0 {
		return tr
	}
	prevClose := model.PaiseToRupees(s.candles[i-1].Close)
	if d := abs(high - prevClose); d > tr {
		tr = d
	}
	if d := abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// bootstrapATR is the simple average of TR over the window ending at the
// current candle, length period. Runs exactly once.
func (s *SuperTrend) bootstrapATR() float64 {
	start := len(s.candles) - s.period
	if start < 0 {
		start = 0
	}
	var sum float64
	var n int
	for i := start; i < len(s.candles); i++ {
		sum += s.trueRange(i)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
