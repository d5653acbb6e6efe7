package model

import "time"

// Position is the single open option position. The engine guarantees at most
// one Position exists at any time.
type Position struct {
	TradeID     string     `json:"trade_id"`
	OptionType  OptionType `json:"option_type"`
	Strike      int        `json:"strike"`
	Expiry      string     `json:"expiry"` // YYYY-MM-DD
	SecurityRef string     `json:"security_ref"`
	IndexName   string     `json:"index_name"`
	Qty         int64      `json:"qty"`         // lots × lot size
	EntryPrice  int64      `json:"entry_price"` // paise
	EntryTime   time.Time  `json:"entry_time"`
}

// UnrealizedPnL computes unrealized profit/loss in paise at the given
// option LTP.
func (p *Position) UnrealizedPnL(ltp int64) int64 {
	return (ltp - p.EntryPrice) * p.Qty
}
