// Package broker ties the execution venues together. A Router holds the
// paper and live gateways and dispatches every call through whichever one
// the current mode selects, so a runtime mode switch changes where orders
// actually go, not just how trades are labeled.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// Router is a model.BrokerGateway whose backing gateway is chosen by mode.
// The live gateway may be nil; switching to live is then refused.
type Router struct {
	mu    sync.RWMutex
	mode  model.Mode
	paper model.BrokerGateway
	live  model.BrokerGateway
}

// NewRouter validates that the starting mode has a gateway to run on.
func NewRouter(mode model.Mode, paperGW, liveGW model.BrokerGateway) (*Router, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if paperGW == nil {
		return nil, errors.New("paper gateway is required")
	}
	if mode == model.ModeLive && liveGW == nil {
		return nil, errors.New("live mode needs a live gateway")
	}
	return &Router{mode: mode, paper: paperGW, live: liveGW}, nil
}

// SetMode redirects subsequent calls to the other venue. Refused when the
// requested venue is not available.
func (r *Router) SetMode(mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == model.ModeLive && r.live == nil {
		return errors.New("live execution unavailable, no broker session")
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	return nil
}

// Mode returns the venue currently selected.
func (r *Router) Mode() model.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

func (r *Router) current() model.BrokerGateway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.mode == model.ModeLive {
		return r.live
	}
	return r.paper
}

func (r *Router) IndexPrice(ctx context.Context, index string) (int64, error) {
	return r.current().IndexPrice(ctx, index)
}

func (r *Router) OptionPrice(ctx context.Context, securityRef string) (int64, error) {
	return r.current().OptionPrice(ctx, securityRef)
}

func (r *Router) ResolveOption(ctx context.Context, index string, strike int, optionType model.OptionType, expiry string) (string, error) {
	return r.current().ResolveOption(ctx, index, strike, optionType, expiry)
}

func (r *Router) NearestExpiry(ctx context.Context, index string) (string, error) {
	return r.current().NearestExpiry(ctx, index)
}

func (r *Router) PlaceOrder(ctx context.Context, securityRef string, side model.Side, qty int64) (model.OrderFill, error) {
	return r.current().PlaceOrder(ctx, securityRef, side, qty)
}
