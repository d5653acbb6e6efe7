package model

import "math"

// OptionTick is the NSE option price tick: 5 paise (₹0.05).
const OptionTick int64 = 5

// RupeesToPaise converts a rupee amount to paise, rounding to the nearest
// paisa.
func RupeesToPaise(r float64) int64 {
	return int64(math.Round(r * 100))
}

// PaiseToRupees converts paise to rupees.
func PaiseToRupees(p int64) float64 {
	return float64(p) / 100.0
}

// RoundToOptionTick rounds a paise price to the nearest option tick.
func RoundToOptionTick(p int64) int64 {
	half := OptionTick / 2
	if p >= 0 {
		return (p + half) / OptionTick * OptionTick
	}
	return -((-p + half) / OptionTick * OptionTick)
}
