package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the decision loop from concrete collaborators
// (broker REST client, SQLite journal, WebSocket hub, Redis publisher).

// OrderFill is the outcome of a successfully placed order.
type OrderFill struct {
	OrderRef    string
	FilledPrice int64 // paise; 0 if the broker did not report a fill price
}

// BrokerGateway is the market-data and order-execution boundary. All calls
// are fallible and must be time-bounded by the passed context; a failure
// never leaves partial state behind.
type BrokerGateway interface {
	// IndexPrice returns the spot LTP of the index in paise.
	IndexPrice(ctx context.Context, index string) (int64, error)

	// OptionPrice returns the LTP of the option identified by securityRef,
	// in paise.
	OptionPrice(ctx context.Context, securityRef string) (int64, error)

	// ResolveOption finds the broker security reference for a strike/expiry.
	// Returns an error wrapping ErrUnresolvable when no contract is listed.
	ResolveOption(ctx context.Context, index string, strike int, optionType OptionType, expiry string) (string, error)

	// NearestExpiry returns the closest listed expiry (YYYY-MM-DD). Callers
	// fall back to the configured weekly expiry weekday on error.
	NearestExpiry(ctx context.Context, index string) (string, error)

	// PlaceOrder submits a market order. Returns an error wrapping
	// ErrOrderRejected when the broker refuses it.
	PlaceOrder(ctx context.Context, securityRef string, side Side, qty int64) (OrderFill, error)
}

// ModeSwitcher is implemented by gateways that can change execution venue
// at runtime. A SetMode redirects subsequent order and quote calls; it does
// not touch orders already placed.
type ModeSwitcher interface {
	SetMode(mode Mode) error
}

// TradeStore persists trade lifecycle records. Calls are fire-and-forget
// from the loop's perspective: failures are logged, never retried inline.
type TradeStore interface {
	RecordEntry(pos Position, cfg TradingConfig, mode Mode) error
	RecordExit(tradeID string, exitTime time.Time, exitPrice, pnl int64, reason ExitReason) error
	SaveDailySummary(day string, trades int, pnl, maxDrawdown int64, stopTriggered bool, mode Mode) error
}

// SnapshotPublisher receives the per-tick state snapshot. Implementations
// must be non-blocking; a slow subscriber must not stall the next tick.
type SnapshotPublisher interface {
	Publish(snap StateSnapshot)
}
