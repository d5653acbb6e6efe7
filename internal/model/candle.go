package model

import (
	"encoding/json"
	"time"
)

// Candle is one fixed-interval OHLC bucket of index price samples.
// All prices are in paise (int64) to avoid floating-point drift.
type Candle struct {
	TS      time.Time `json:"ts"` // bucket start time
	Open    int64     `json:"open"`
	High    int64     `json:"high"`
	Low     int64     `json:"low"`
	Close   int64     `json:"close"`
	Samples int       `json:"samples"` // price samples folded into this bucket
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
