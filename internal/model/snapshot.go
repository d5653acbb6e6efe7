package model

import (
	"encoding/json"
	"time"
)

// StateSnapshot is the consistent point-in-time view of the decision loop,
// published once per tick and exposed to concurrent readers. Prices are in
// paise except SupertrendValue, which follows the indicator convention of
// float64 rupees.
type StateSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Running   bool      `json:"is_running"`
	Mode      Mode      `json:"mode"`
	Index     string    `json:"selected_index"`

	IndexLTP        int64   `json:"index_ltp"`
	Signal          string  `json:"supertrend_signal,omitempty"`
	SupertrendValue float64 `json:"supertrend_value"`

	Position    *Position `json:"position,omitempty"`
	OptionLTP   int64     `json:"current_option_ltp"`
	TrailingSL  *int64    `json:"trailing_sl,omitempty"`
	DailyPnL    int64     `json:"daily_pnl"`
	DailyTrades int       `json:"daily_trades"`
	MaxDrawdown int64     `json:"max_drawdown"`

	LossLimitTriggered bool `json:"daily_max_loss_triggered"`
	MarketOpen         bool `json:"market_open"`
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *StateSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
