// Package indices holds the static per-index contract table: broker security
// references, lot sizes, strike intervals, and weekly expiry weekdays.
package indices

import (
	"math"
	"sort"
	"time"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/markethours"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// Index describes one tradable index and its option contract parameters.
type Index struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	SecurityRef    string `json:"security_ref"` // broker ref of the spot index
	Exchange       string `json:"exchange"`
	LotSize        int64  `json:"lot_size"`
	StrikeInterval int    `json:"strike_interval"` // rupees
	TradingSymbol  string `json:"trading_symbol"`

	// ExpiryWeekday is the weekly option expiry day, used only as a
	// fallback when the gateway cannot resolve a listed expiry.
	ExpiryWeekday time.Weekday `json:"expiry_weekday"`
}

var table = map[string]Index{
	"NIFTY": {
		Name: "NIFTY", DisplayName: "NIFTY 50",
		SecurityRef: "13", Exchange: "IDX_I",
		LotSize: 50, StrikeInterval: 50,
		ExpiryWeekday: time.Tuesday, TradingSymbol: "NIFTY",
	},
	"BANKNIFTY": {
		Name: "BANKNIFTY", DisplayName: "BANK NIFTY",
		SecurityRef: "25", Exchange: "IDX_I",
		LotSize: 15, StrikeInterval: 100,
		ExpiryWeekday: time.Wednesday, TradingSymbol: "BANKNIFTY",
	},
	"SENSEX": {
		Name: "SENSEX", DisplayName: "SENSEX",
		SecurityRef: "51", Exchange: "BSE_INDEX",
		LotSize: 10, StrikeInterval: 100,
		ExpiryWeekday: time.Friday, TradingSymbol: "SENSEX",
	},
	"FINNIFTY": {
		Name: "FINNIFTY", DisplayName: "FINNIFTY",
		SecurityRef: "27", Exchange: "IDX_I",
		LotSize: 25, StrikeInterval: 50,
		ExpiryWeekday: time.Tuesday, TradingSymbol: "FINNIFTY",
	},
	"MIDCPNIFTY": {
		Name: "MIDCPNIFTY", DisplayName: "MIDCAP NIFTY",
		SecurityRef: "442", Exchange: "IDX_I",
		LotSize: 50, StrikeInterval: 25,
		ExpiryWeekday: time.Monday, TradingSymbol: "MIDCPNIFTY",
	},
}

// Get returns the configuration for an index by name.
func Get(name string) (Index, bool) {
	ix, ok := table[name]
	return ix, ok
}

// Names returns the available index names, sorted.
func Names() []string {
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RoundToStrike rounds an index price (paise) to the nearest strike for
// this index, in rupees.
func (ix Index) RoundToStrike(pricePaise int64) int {
	rupees := model.PaiseToRupees(pricePaise)
	interval := float64(ix.StrikeInterval)
	return int(math.Round(rupees/interval) * interval)
}

// fallbackRollHour: on the expiry day itself, contracts past this IST hour
// are assumed expired and the fallback rolls to next week. A heuristic, not
// an exchange rule.
const fallbackRollHour = 15

// NextExpiry computes the fallback weekly expiry date (YYYY-MM-DD): the
// next occurrence of the index's expiry weekday in IST.
func (ix Index) NextExpiry(now time.Time) string {
	ist := now.In(markethours.IST)
	days := (int(ix.ExpiryWeekday) - int(ist.Weekday()) + 7) % 7
	if days == 0 && ist.Hour() >= fallbackRollHour {
		days = 7
	}
	return ist.AddDate(0, 0, days).Format("2006-01-02")
}
