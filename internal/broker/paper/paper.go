// Package paper implements a simulated broker gateway. Index quotes come
// from a pluggable QuoteSource (live market data or a random walk); option
// prices are synthesized from intrinsic value plus a distance-decayed time
// value, and orders always fill at the simulated price.
package paper

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indices"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// QuoteSource supplies index spot prices for the simulation.
type QuoteSource interface {
	IndexPrice(ctx context.Context, index string) (int64, error)
}

const (
	// baseTimeValue is the at-the-money time value in rupees. It decays
	// linearly to zero over decayDistance rupees of moneyness.
	baseTimeValue = 150.0
	decayDistance = 500.0

	minPremium = model.OptionTick // 5 paise floor
)

// jitterTicks are the random price perturbations applied per quote, in paise.
var jitterTicks = []int64{-10, -5, 0, 5, 10}

// Gateway is the simulated broker.
type Gateway struct {
	quotes QuoteSource
	rng    *rand.Rand

	mu           sync.Mutex
	lastIndexLTP map[string]int64 // per index, paise
}

// New builds a simulated gateway over the given quote source.
func New(quotes QuoteSource, seed int64) *Gateway {
	return &Gateway{
		quotes:       quotes,
		rng:          rand.New(rand.NewSource(seed)),
		lastIndexLTP: make(map[string]int64),
	}
}

// IndexPrice delegates to the quote source and remembers the LTP for
// option pricing.
func (g *Gateway) IndexPrice(ctx context.Context, index string) (int64, error) {
	ltp, err := g.quotes.IndexPrice(ctx, index)
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	g.lastIndexLTP[index] = ltp
	g.mu.Unlock()
	return ltp, nil
}

// OptionPrice synthesizes a premium from the last seen index LTP: intrinsic
// value plus a time value that decays with distance from the money, with a
// small tick-aligned jitter.
func (g *Gateway) OptionPrice(ctx context.Context, securityRef string) (int64, error) {
	index, strike, optType, err := parseRef(securityRef)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	spot, ok := g.lastIndexLTP[index]
	jitter := jitterTicks[g.rng.Intn(len(jitterTicks))]
	g.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("sim option %s: %w", securityRef, model.ErrNoData)
	}

	strikePaise := int64(strike) * 100
	var intrinsic int64
	if optType == model.OptionCall {
		intrinsic = spot - strikePaise
	} else {
		intrinsic = strikePaise - spot
	}
	if intrinsic < 0 {
		intrinsic = 0
	}

	distance := math.Abs(model.PaiseToRupees(spot) - float64(strike))
	timeValue := baseTimeValue * math.Max(0, 1-distance/decayDistance)

	premium := intrinsic + model.RupeesToPaise(timeValue) + jitter
	premium = model.RoundToOptionTick(premium)
	if premium < minPremium {
		premium = minPremium
	}
	return premium, nil
}

// ResolveOption returns a synthetic security reference encoding the
// contract, e.g. "SIM_NIFTY_24500_CE".
func (g *Gateway) ResolveOption(_ context.Context, index string, strike int, optionType model.OptionType, _ string) (string, error) {
	if _, ok := indices.Get(index); !ok {
		return "", fmt.Errorf("sim resolve %s: %w", index, model.ErrUnresolvable)
	}
	return fmt.Sprintf("SIM_%s_%d_%s", index, strike, optionType), nil
}

// NearestExpiry is not available in simulation; callers fall back to the
// index's weekly expiry weekday.
func (g *Gateway) NearestExpiry(_ context.Context, index string) (string, error) {
	return "", fmt.Errorf("sim expiry %s: %w", index, model.ErrNoData)
}

// PlaceOrder fills immediately at the current simulated option price.
func (g *Gateway) PlaceOrder(ctx context.Context, securityRef string, side model.Side, qty int64) (model.OrderFill, error) {
	if qty <= 0 {
		return model.OrderFill{}, fmt.Errorf("sim order qty %d: %w", qty, model.ErrOrderRejected)
	}
	price, err := g.OptionPrice(ctx, securityRef)
	if err != nil {
		return model.OrderFill{}, fmt.Errorf("sim %s fill: %w", side, err)
	}
	g.mu.Lock()
	ref := fmt.Sprintf("SIMORD-%06d", g.rng.Intn(1000000))
	g.mu.Unlock()
	return model.OrderFill{OrderRef: ref, FilledPrice: price}, nil
}

// parseRef decodes a SIM_{index}_{strike}_{CE|PE} reference.
func parseRef(ref string) (index string, strike int, optType model.OptionType, err error) {
	parts := strings.Split(ref, "_")
	if len(parts) != 4 || parts[0] != "SIM" {
		return "", 0, "", fmt.Errorf("sim ref %q: %w", ref, model.ErrUnresolvable)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &strike); err != nil {
		return "", 0, "", fmt.Errorf("sim ref %q strike: %w", ref, model.ErrUnresolvable)
	}
	switch model.OptionType(parts[3]) {
	case model.OptionCall, model.OptionPut:
		optType = model.OptionType(parts[3])
	default:
		return "", 0, "", fmt.Errorf("sim ref %q option type: %w", ref, model.ErrUnresolvable)
	}
	return parts[1], strike, optType, nil
}
