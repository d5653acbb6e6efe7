// Package metrics exposes Prometheus metrics for the trading bot and serves
// them on /metrics alongside a /healthz endpoint.
package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the decision loop. All methods
// are safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	SamplesTotal  prometheus.Counter
	CandlesTotal  prometheus.Counter
	SignalsTotal  *prometheus.CounterVec // labels: direction
	TradesOpened  prometheus.Counter
	TradesClosed  *prometheus.CounterVec // labels: reason
	LoopErrors    prometheus.Counter
	BrokerCallDur *prometheus.HistogramVec // labels: op
	DailyPnL      prometheus.Gauge
	PositionOpen  prometheus.Gauge
	MarketOpen    prometheus.Gauge
}

// New registers and returns all bot metrics on the default registry.
func New() *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_price_samples_total",
			Help: "Index price samples folded into candles",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_total",
			Help: "Candles emitted at bucket boundaries",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "SuperTrend signals emitted",
		}, []string{"direction"}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_trades_opened_total",
			Help: "Positions opened",
		}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_closed_total",
			Help: "Positions closed by exit reason",
		}, []string{"reason"}),
		LoopErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_loop_errors_total",
			Help: "Tick iterations that failed and backed off",
		}),
		BrokerCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bot_broker_call_duration_seconds",
			Help:    "Broker gateway call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_daily_pnl_paise",
			Help: "Realized PnL for the current trading day, in paise",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_position_open",
			Help: "1 while a position is open, else 0",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_market_open",
			Help: "1 while the market session is open, else 0",
		}),
	}

	prometheus.MustRegister(
		m.SamplesTotal, m.CandlesTotal, m.SignalsTotal,
		m.TradesOpened, m.TradesClosed, m.LoopErrors,
		m.BrokerCallDur, m.DailyPnL, m.PositionOpen, m.MarketOpen,
	)
	return m
}

// IncSample increments the price-sample counter.
func (m *Metrics) IncSample() {
	if m == nil {
		return
	}
	m.SamplesTotal.Inc()
}

// IncCandle increments the emitted-candle counter.
func (m *Metrics) IncCandle() {
	if m == nil {
		return
	}
	m.CandlesTotal.Inc()
}

// IncSignal counts one indicator emission by direction label.
func (m *Metrics) IncSignal(direction string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(direction).Inc()
}

// IncTradeOpened counts one entry.
func (m *Metrics) IncTradeOpened() {
	if m == nil {
		return
	}
	m.TradesOpened.Inc()
	m.PositionOpen.Set(1)
}

// IncTradeClosed counts one exit by reason.
func (m *Metrics) IncTradeClosed(reason string) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(reason).Inc()
	m.PositionOpen.Set(0)
}

// IncLoopError counts one failed tick.
func (m *Metrics) IncLoopError() {
	if m == nil {
		return
	}
	m.LoopErrors.Inc()
}

// ObserveBrokerCall records one gateway call latency.
func (m *Metrics) ObserveBrokerCall(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.BrokerCallDur.WithLabelValues(op).Observe(d.Seconds())
}

// SetDailyPnL updates the realized-PnL gauge.
func (m *Metrics) SetDailyPnL(paise int64) {
	if m == nil {
		return
	}
	m.DailyPnL.Set(float64(paise))
}

// SetMarketOpen updates the market session gauge.
func (m *Metrics) SetMarketOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.MarketOpen.Set(1)
	} else {
		m.MarketOpen.Set(0)
	}
}

// Serve starts the metrics HTTP server in a background goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()
}
