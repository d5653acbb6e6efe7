package paper

import (
	"context"
	"sync"
)

// RandomWalk is a QuoteSource that evolves index prices as a bounded random
// walk. It lets the bot run paper mode with no broker credentials at all.
type RandomWalk struct {
	mu     sync.Mutex
	prices map[string]int64 // paise
	start  int64            // seed price, paise
	step   int64            // max move per quote, paise
	rng    interface{ Intn(int) int }
}

// NewRandomWalk seeds each index at startPaise and moves it by at most
// stepPaise per quote.
func NewRandomWalk(startPaise, stepPaise int64, rng interface{ Intn(int) int }) *RandomWalk {
	return &RandomWalk{
		prices: make(map[string]int64),
		step:   stepPaise,
		start:  startPaise,
		rng:    rng,
	}
}

// IndexPrice returns the next price on the walk for this index.
func (w *RandomWalk) IndexPrice(_ context.Context, index string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.prices[index]
	if !ok {
		p = w.start
	}
	// uniform move in [-step, +step], tick aligned
	move := int64(w.rng.Intn(int(2*w.step+1))) - w.step
	p += move
	if p < 100 {
		p = 100
	}
	w.prices[index] = p
	return p, nil
}
