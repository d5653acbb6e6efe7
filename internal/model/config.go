package model

import (
	"fmt"
	"time"
)

// TradingConfig is the immutable-per-session snapshot of the strategy
// parameters. Money amounts are in paise; the config surface accepts rupees
// and converts once at load.
type TradingConfig struct {
	OrderLots        int64         `json:"order_lots"`
	MaxTradesPerDay  int           `json:"max_trades_per_day"`
	DailyMaxLoss     int64         `json:"daily_max_loss"`       // paise
	TrailStartProfit int64         `json:"trail_start_profit"`   // paise of profit before the stop arms
	TrailStep        int64         `json:"trail_step"`           // paise per ratchet step
	TrailDistance    int64         `json:"trailing_sl_distance"` // accepted for API compatibility, not consumed
	Period           int           `json:"supertrend_period"`
	Multiplier       float64       `json:"supertrend_multiplier"`
	CandleInterval   time.Duration `json:"candle_interval"`
	Index            string        `json:"selected_index"`
}

// Validate checks the numeric ranges before a session starts.
func (c TradingConfig) Validate() error {
	switch {
	case c.OrderLots < 1:
		return fmt.Errorf("order_lots must be >= 1, got %d", c.OrderLots)
	case c.MaxTradesPerDay < 1:
		return fmt.Errorf("max_trades_per_day must be >= 1, got %d", c.MaxTradesPerDay)
	case c.DailyMaxLoss <= 0:
		return fmt.Errorf("daily_max_loss must be positive, got %d", c.DailyMaxLoss)
	case c.TrailStartProfit <= 0:
		return fmt.Errorf("trail_start_profit must be positive, got %d", c.TrailStartProfit)
	case c.TrailStep <= 0:
		return fmt.Errorf("trail_step must be positive, got %d", c.TrailStep)
	case c.Period < 2 || c.Period > 100:
		return fmt.Errorf("supertrend_period must be in [2,100], got %d", c.Period)
	case c.Multiplier <= 0:
		return fmt.Errorf("supertrend_multiplier must be positive, got %f", c.Multiplier)
	case c.CandleInterval < time.Second || c.CandleInterval > 5*time.Minute:
		return fmt.Errorf("candle_interval must be in [1s,5m], got %s", c.CandleInterval)
	case c.Index == "":
		return fmt.Errorf("selected_index must not be empty")
	}
	return nil
}
