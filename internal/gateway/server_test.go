package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/logger"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/markethours"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/store/sqlite"
)

type fakeBot struct {
	running bool
	snap    model.StateSnapshot
	modeErr error
}

func (f *fakeBot) Start()                        { f.running = true }
func (f *fakeBot) Stop()                         { f.running = false }
func (f *fakeBot) Running() bool                 { return f.running }
func (f *fakeBot) Snapshot() model.StateSnapshot { return f.snap }
func (f *fakeBot) Squareoff() error              { return errors.New("no open position") }
func (f *fakeBot) SetMode(model.Mode) error      { return f.modeErr }

type fakeTrades struct{}

func (fakeTrades) Trades(limit int) ([]sqlite.TradeRecord, error) {
	return []sqlite.TradeRecord{{TradeID: "T1", IndexName: "NIFTY", OptionType: "CE"}}, nil
}

func (fakeTrades) Summaries(int) ([]sqlite.DailySummary, error) {
	return []sqlite.DailySummary{{Date: "2026-03-10", TotalTrades: 2, TotalPnL: -2100}}, nil
}

func newTestServer(bot *fakeBot) *httptest.Server {
	log := slog.Default()
	srv := NewServer(bot, fakeTrades{}, nil, nil, NewHub(log),
		markethours.DefaultSession(), testTradingConfig(), log)
	mux := http.NewServeMux()
	srv.Register(mux)
	return httptest.NewServer(mux)
}

func testTradingConfig() model.TradingConfig {
	return model.TradingConfig{
		OrderLots:        1,
		MaxTradesPerDay:  10,
		DailyMaxLoss:     200000,
		TrailStartProfit: 1000,
		TrailStep:        500,
		Period:           7,
		Multiplier:       4,
		CandleInterval:   5 * time.Second,
		Index:            "NIFTY",
	}
}

func TestServer_Status(t *testing.T) {
	bot := &fakeBot{snap: model.StateSnapshot{Index: "NIFTY", DailyTrades: 3, Mode: model.ModePaper}}
	ts := newTestServer(bot)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap model.StateSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "NIFTY", snap.Index)
	assert.Equal(t, 3, snap.DailyTrades)
}

func TestServer_StartStop(t *testing.T) {
	bot := &fakeBot{}
	ts := newTestServer(bot)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/bot/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bot.running)

	resp, err = http.Post(ts.URL+"/api/bot/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, bot.running)

	// GET on a control endpoint is refused.
	resp, err = http.Get(ts.URL + "/api/bot/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Trades(t *testing.T) {
	ts := newTestServer(&fakeBot{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trades?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Trades []sqlite.TradeRecord `json:"trades"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Trades, 1)
	assert.Equal(t, "T1", body.Trades[0].TradeID)
}

func TestServer_ConfigRoundTrip(t *testing.T) {
	ts := newTestServer(&fakeBot{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Config  apiConfig `json:"config"`
		Indices []string  `json:"indices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NIFTY", body.Config.Index)
	assert.Equal(t, 5, body.Config.IntervalSeconds)
	assert.Equal(t, 2000.0, body.Config.DailyMaxLoss) // paise exposed as rupees
	assert.Contains(t, body.Indices, "BANKNIFTY")
}

func TestServer_ConfigUpdateWithoutStore(t *testing.T) {
	ts := newTestServer(&fakeBot{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/config/update", "application/json",
		strings.NewReader(`{"order_lots":2}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ModeSwitchConflict(t *testing.T) {
	bot := &fakeBot{modeErr: errors.New("cannot switch mode with an open position")}
	ts := newTestServer(bot)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/config/mode", "application/json",
		strings.NewReader(`{"mode":"live"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_Logs(t *testing.T) {
	ring := logger.NewRing(10)
	log := logger.Init("test", slog.LevelInfo, ring)
	log.Info("bot started")
	log.Warn("quote failed")

	srv := NewServer(&fakeBot{}, fakeTrades{}, nil, ring, NewHub(log),
		markethours.DefaultSession(), testTradingConfig(), log)
	mux := http.NewServeMux()
	srv.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Logs []logger.Entry `json:"logs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Logs, 2)
	assert.Equal(t, "quote failed", body.Logs[0].Message)
	assert.Equal(t, "WARN", body.Logs[0].Level)
}

func TestServer_LogsWithoutRing(t *testing.T) {
	ts := newTestServer(&fakeBot{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Logs []logger.Entry `json:"logs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Logs)
}

func TestServer_SquareoffWithoutPosition(t *testing.T) {
	ts := newTestServer(&fakeBot{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/bot/squareoff", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
