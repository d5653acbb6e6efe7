// Package smartapi is the Angel One SmartAPI broker gateway: TOTP login,
// LTP quotes, option contract resolution via scrip search, and market
// order placement on NFO.
package smartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indices"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.ltp.data":     "/rest/secure/angelbroking/order/v1/getLtpData",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
	"api.order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
}

// Config carries the SmartAPI credentials and connection settings.
type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	BaseURL string        // default apiconnect.angelone.in
	Timeout time.Duration // per-request, default 7s

	// RequestsPerSecond throttles outbound calls. SmartAPI allows roughly
	// 10 req/s per endpoint; default 5.
	RequestsPerSecond float64
}

// Client is a live BrokerGateway backed by Angel One SmartAPI.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string
	symbolCache  map[string]string // securityRef (symboltoken) -> tradingsymbol
	exchCache    map[string]string // securityRef -> exchange
}

// New builds an unauthenticated client; call Login before trading.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}
	return &Client{
		cfg:         cfg,
		httpc:       &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:         log,
		symbolCache: make(map[string]string),
		exchCache:   make(map[string]string),
	}
}

type apiResponse struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// Login generates a fresh TOTP from the shared secret and exchanges the
// credentials for session tokens.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generate: %w", err)
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "api.login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	})
	if err != nil {
		return fmt.Errorf("smartapi login: %w", err)
	}
	var tokens struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	if err := json.Unmarshal(resp.Data, &tokens); err != nil {
		return fmt.Errorf("smartapi login decode: %w", err)
	}
	c.mu.Lock()
	c.accessToken = tokens.JWTToken
	c.refreshToken = tokens.RefreshToken
	c.feedToken = tokens.FeedToken
	c.mu.Unlock()

	c.log.Info("smartapi session established", "client", c.cfg.ClientCode)
	return nil
}

// Logout terminates the broker session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodPost, "api.logout", map[string]any{
		"clientcode": c.cfg.ClientCode,
	})
	return err
}

// IndexPrice fetches the spot LTP of the index, in paise.
func (c *Client) IndexPrice(ctx context.Context, index string) (int64, error) {
	ix, ok := indices.Get(index)
	if !ok {
		return 0, fmt.Errorf("index %q: %w", index, model.ErrUnresolvable)
	}
	exchange := "NSE"
	if ix.Exchange == "BSE_INDEX" {
		exchange = "BSE"
	}
	return c.ltp(ctx, exchange, ix.TradingSymbol, ix.SecurityRef)
}

// OptionPrice fetches the LTP of a resolved option contract, in paise.
func (c *Client) OptionPrice(ctx context.Context, securityRef string) (int64, error) {
	c.mu.RLock()
	symbol, ok := c.symbolCache[securityRef]
	exchange := c.exchCache[securityRef]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("option ref %q not resolved: %w", securityRef, model.ErrUnresolvable)
	}
	return c.ltp(ctx, exchange, symbol, securityRef)
}

func (c *Client) ltp(ctx context.Context, exchange, symbol, token string) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "api.ltp.data", map[string]any{
		"exchange":      exchange,
		"tradingsymbol": symbol,
		"symboltoken":   token,
	})
	if err != nil {
		return 0, fmt.Errorf("ltp %s: %w", symbol, err)
	}
	var data struct {
		LTP float64 `json:"ltp"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, fmt.Errorf("ltp %s decode: %w", symbol, err)
	}
	if data.LTP <= 0 {
		return 0, fmt.Errorf("ltp %s: %w", symbol, model.ErrNoData)
	}
	return model.RupeesToPaise(data.LTP), nil
}

type scrip struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

// ResolveOption finds the NFO symbol token for a strike/expiry contract.
// The trading symbol follows the exchange format, e.g. NIFTY26AUG2524500CE.
func (c *Client) ResolveOption(ctx context.Context, index string, strike int, optionType model.OptionType, expiry string) (string, error) {
	ix, ok := indices.Get(index)
	if !ok {
		return "", fmt.Errorf("index %q: %w", index, model.ErrUnresolvable)
	}
	day, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", fmt.Errorf("expiry %q: %w", expiry, model.ErrUnresolvable)
	}
	symbol := fmt.Sprintf("%s%s%d%s",
		ix.TradingSymbol, strings.ToUpper(day.Format("02Jan06")), strike, optionType)

	exchange := "NFO"
	if ix.Exchange == "BSE_INDEX" {
		exchange = "BFO"
	}
	scrips, err := c.searchScrip(ctx, exchange, symbol)
	if err != nil {
		return "", err
	}
	for _, s := range scrips {
		if s.TradingSymbol == symbol {
			c.mu.Lock()
			c.symbolCache[s.SymbolToken] = s.TradingSymbol
			c.exchCache[s.SymbolToken] = s.Exchange
			c.mu.Unlock()
			return s.SymbolToken, nil
		}
	}
	return "", fmt.Errorf("contract %s not listed: %w", symbol, model.ErrUnresolvable)
}

// NearestExpiry scans listed contracts near the money and returns the
// closest future expiry date.
func (c *Client) NearestExpiry(ctx context.Context, index string) (string, error) {
	ix, ok := indices.Get(index)
	if !ok {
		return "", fmt.Errorf("index %q: %w", index, model.ErrUnresolvable)
	}
	exchange := "NFO"
	if ix.Exchange == "BSE_INDEX" {
		exchange = "BFO"
	}
	scrips, err := c.searchScrip(ctx, exchange, ix.TradingSymbol)
	if err != nil {
		return "", err
	}

	now := time.Now()
	var best time.Time
	for _, s := range scrips {
		exp, ok := parseExpiryFromSymbol(s.TradingSymbol, ix.TradingSymbol)
		if !ok || exp.Before(now.Truncate(24*time.Hour)) {
			continue
		}
		if best.IsZero() || exp.Before(best) {
			best = exp
		}
	}
	if best.IsZero() {
		return "", fmt.Errorf("expiry for %s: %w", index, model.ErrNoData)
	}
	return best.Format("2006-01-02"), nil
}

// parseExpiryFromSymbol extracts DDMMMYY from symbols like NIFTY26AUG2524500CE.
func parseExpiryFromSymbol(symbol, prefix string) (time.Time, bool) {
	rest := strings.TrimPrefix(symbol, prefix)
	if rest == symbol || len(rest) < 7 {
		return time.Time{}, false
	}
	// time.Parse matches month names case-insensitively, so AUG parses fine.
	exp, err := time.Parse("02Jan06", rest[:7])
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}

func (c *Client) searchScrip(ctx context.Context, exchange, query string) ([]scrip, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "api.search.scrip", map[string]any{
		"exchange":    exchange,
		"searchscrip": query,
	})
	if err != nil {
		return nil, fmt.Errorf("search scrip %s: %w", query, err)
	}
	var scrips []scrip
	if err := json.Unmarshal(resp.Data, &scrips); err != nil {
		return nil, fmt.Errorf("search scrip %s decode: %w", query, err)
	}
	return scrips, nil
}

// PlaceOrder submits an intraday market order and reports the fill at the
// contract's current LTP. SmartAPI does not return a fill price inline.
func (c *Client) PlaceOrder(ctx context.Context, securityRef string, side model.Side, qty int64) (model.OrderFill, error) {
	c.mu.RLock()
	symbol, ok := c.symbolCache[securityRef]
	exchange := c.exchCache[securityRef]
	c.mu.RUnlock()
	if !ok {
		return model.OrderFill{}, fmt.Errorf("order ref %q not resolved: %w", securityRef, model.ErrUnresolvable)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "api.order.place", map[string]any{
		"variety":         "NORMAL",
		"tradingsymbol":   symbol,
		"symboltoken":     securityRef,
		"transactiontype": string(side),
		"exchange":        exchange,
		"ordertype":       "MARKET",
		"producttype":     "INTRADAY",
		"duration":        "DAY",
		"quantity":        qty,
	})
	if err != nil {
		return model.OrderFill{}, fmt.Errorf("place %s %s: %w: %w", side, symbol, model.ErrOrderRejected, err)
	}
	var data struct {
		OrderID string `json:"orderid"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.OrderID == "" {
		return model.OrderFill{}, fmt.Errorf("place %s %s: missing order id: %w", side, symbol, model.ErrOrderRejected)
	}

	fill := model.OrderFill{OrderRef: data.OrderID}
	if ltp, err := c.ltp(ctx, exchange, symbol, securityRef); err == nil {
		fill.FilledPrice = ltp
	} else {
		c.log.Warn("fill price lookup failed, caller falls back to last quote",
			"order", data.OrderID, "err", err)
	}
	return fill, nil
}

func (c *Client) doRequest(ctx context.Context, method, route string, params map[string]any) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route %s", route)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+uri, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", route, err)
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: http %d: unparseable body", route, resp.StatusCode)
	}
	if !out.Status {
		return nil, fmt.Errorf("%s: %s (code %s)", route, out.Message, out.ErrorCode)
	}
	return &out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", "127.0.0.1")
	req.Header.Set("X-ClientPublicIP", "127.0.0.1")
	req.Header.Set("X-MACAddress", "00:00:00:00:00:00")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
