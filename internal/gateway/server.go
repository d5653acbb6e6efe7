package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indices"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/logger"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/markethours"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/store/sqlite"
)

// BotController is the control surface the REST handlers drive.
type BotController interface {
	Start()
	Stop()
	Running() bool
	Snapshot() model.StateSnapshot
	Squareoff() error
	SetMode(mode model.Mode) error
}

// TradeReader serves the trade and summary queries.
type TradeReader interface {
	Trades(limit int) ([]sqlite.TradeRecord, error)
	Summaries(limit int) ([]sqlite.DailySummary, error)
}

// ConfigPersister stores trading-config overrides that apply on the next
// session start.
type ConfigPersister interface {
	Save(ctx context.Context, cfg model.TradingConfig) error
	Load(ctx context.Context) (model.TradingConfig, bool, error)
}

// LogReader serves the recent-logs query.
type LogReader interface {
	Entries(limit int) []logger.Entry
}

// Server is the HTTP surface: REST control/query endpoints plus /ws.
type Server struct {
	bot      BotController
	trades   TradeReader
	cfgStore ConfigPersister // may be nil: updates then fail with 503
	logs     LogReader       // may be nil: /api/logs returns an empty list
	hub      *Hub
	session  markethours.Session
	cfg      model.TradingConfig
	log      *slog.Logger
}

// NewServer wires the handler dependencies.
func NewServer(bot BotController, trades TradeReader, cfgStore ConfigPersister,
	logs LogReader, hub *Hub, session markethours.Session, cfg model.TradingConfig,
	log *slog.Logger) *Server {
	return &Server{
		bot: bot, trades: trades, cfgStore: cfgStore, logs: logs,
		hub: hub, session: session, cfg: cfg, log: log,
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Register attaches all routes to the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.hub.HandleWS)

	mux.HandleFunc("/api/status", s.wrap(s.handleStatus))
	mux.HandleFunc("/api/market", s.wrap(s.handleMarket))
	mux.HandleFunc("/api/position", s.wrap(s.handlePosition))
	mux.HandleFunc("/api/trades", s.wrap(s.handleTrades))
	mux.HandleFunc("/api/summary", s.wrap(s.handleSummary))
	mux.HandleFunc("/api/logs", s.wrap(s.handleLogs))
	mux.HandleFunc("/api/config", s.wrap(s.handleConfig))
	mux.HandleFunc("/api/config/update", s.wrap(s.handleConfigUpdate))
	mux.HandleFunc("/api/config/mode", s.wrap(s.handleMode))
	mux.HandleFunc("/api/bot/start", s.wrap(s.handleStart))
	mux.HandleFunc("/api/bot/stop", s.wrap(s.handleStop))
	mux.HandleFunc("/api/bot/squareoff", s.wrap(s.handleSquareoff))
}

func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Snapshot())
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snap := s.bot.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"market_open": s.session.IsOpen(now),
		"status":      s.session.StatusString(now),
		"trading_day": markethours.IsTradingDay(now),
		"index":       snap.Index,
		"index_ltp":   model.PaiseToRupees(snap.IndexLTP),
		"server_time": now.In(markethours.IST).Format(time.RFC3339),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	snap := s.bot.Snapshot()
	if snap.Position == nil {
		writeJSON(w, http.StatusOK, map[string]any{"position": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position":    snap.Position,
		"option_ltp":  model.PaiseToRupees(snap.OptionLTP),
		"trailing_sl": paisePtrToRupees(snap.TrailingSL),
		"unrealized":  model.PaiseToRupees(snap.Position.UnrealizedPnL(snap.OptionLTP)),
	})
}

func paisePtrToRupees(p *int64) *float64 {
	if p == nil {
		return nil
	}
	r := model.PaiseToRupees(*p)
	return &r
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	trades, err := s.trades.Trades(limit)
	if err != nil {
		s.log.Error("trade query failed", "err", err)
		writeErr(w, http.StatusInternalServerError, errors.New("trade query failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sums, err := s.trades.Summaries(30)
	if err != nil {
		s.log.Error("summary query failed", "err", err)
		writeErr(w, http.StatusInternalServerError, errors.New("summary query failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries := []logger.Entry{}
	if s.logs != nil {
		entries = s.logs.Entries(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// apiConfig is the REST view of TradingConfig: money in rupees, interval in
// seconds.
type apiConfig struct {
	OrderLots        int64   `json:"order_lots"`
	MaxTradesPerDay  int     `json:"max_trades_per_day"`
	DailyMaxLoss     float64 `json:"daily_max_loss"`
	TrailStartProfit float64 `json:"trail_start_profit"`
	TrailStep        float64 `json:"trail_step"`
	TrailDistance    float64 `json:"trailing_sl_distance"`
	Period           int     `json:"supertrend_period"`
	Multiplier       float64 `json:"supertrend_multiplier"`
	IntervalSeconds  int     `json:"candle_interval_seconds"`
	Index            string  `json:"selected_index"`
}

func toAPIConfig(c model.TradingConfig) apiConfig {
	return apiConfig{
		OrderLots:        c.OrderLots,
		MaxTradesPerDay:  c.MaxTradesPerDay,
		DailyMaxLoss:     model.PaiseToRupees(c.DailyMaxLoss),
		TrailStartProfit: model.PaiseToRupees(c.TrailStartProfit),
		TrailStep:        model.PaiseToRupees(c.TrailStep),
		TrailDistance:    model.PaiseToRupees(c.TrailDistance),
		Period:           c.Period,
		Multiplier:       c.Multiplier,
		IntervalSeconds:  int(c.CandleInterval / time.Second),
		Index:            c.Index,
	}
}

func (a apiConfig) toModel() model.TradingConfig {
	return model.TradingConfig{
		OrderLots:        a.OrderLots,
		MaxTradesPerDay:  a.MaxTradesPerDay,
		DailyMaxLoss:     model.RupeesToPaise(a.DailyMaxLoss),
		TrailStartProfit: model.RupeesToPaise(a.TrailStartProfit),
		TrailStep:        model.RupeesToPaise(a.TrailStep),
		TrailDistance:    model.RupeesToPaise(a.TrailDistance),
		Period:           a.Period,
		Multiplier:       a.Multiplier,
		CandleInterval:   time.Duration(a.IntervalSeconds) * time.Second,
		Index:            a.Index,
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"config":  toAPIConfig(s.cfg),
		"indices": indices.Names(),
	})
}

// handleConfigUpdate persists overrides. The running session keeps its
// config snapshot; updates take effect on the next start.
func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	if s.cfgStore == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("config persistence not configured"))
		return
	}
	var in apiConfig
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	cfg := in.toModel()
	if err := cfg.Validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfgStore.Save(r.Context(), cfg); err != nil {
		s.log.Error("config save failed", "err", err)
		writeErr(w, http.StatusInternalServerError, errors.New("config save failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"saved":   true,
		"applies": "next session start",
		"config":  toAPIConfig(cfg),
	})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var in struct {
		Mode model.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.bot.SetMode(in.Mode); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": in.Mode})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	s.bot.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	s.bot.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

func (s *Server) handleSquareoff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	if err := s.bot.Squareoff(); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"squared_off": true})
}
