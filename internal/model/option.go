package model

// OptionType is the option contract side: CE (call) or PE (put).
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Side is the order transaction type.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Mode selects between simulated and real order execution.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Valid reports whether m is a recognized trading mode.
func (m Mode) Valid() bool {
	return m == ModePaper || m == ModeLive
}

// ExitReason explains why a position was closed. The strings are persisted
// in the trade journal, so they must stay stable.
type ExitReason string

const (
	ExitReversal     ExitReason = "SuperTrend Reversal"
	ExitTrailingStop ExitReason = "Trailing SL Hit"
	ExitSquareOff    ExitReason = "Force Square-off"
)
