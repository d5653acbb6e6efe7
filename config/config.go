// Package config loads application configuration from environment variables
// (with .env support) and validates it before the session starts.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/indices"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/markethours"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Mode model.Mode

	// Angel One credentials, required in live mode only
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Infrastructure
	RedisAddr     string // empty disables the Redis mirror
	RedisPassword string
	SQLitePath    string
	HTTPAddr      string
	MetricsAddr   string
	LogLevel      string
	AutoStart     bool

	Trading model.TradingConfig
	Session markethours.Session
}

// Load reads the environment (after an optional .env file) into a Config.
// Money amounts in the environment are rupees; they are converted to paise
// here, once.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		Mode: model.Mode(getEnv("TRADING_MODE", string(model.ModePaper))),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8000"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AutoStart:     getEnvBool("BOT_AUTOSTART", false),

		Trading: model.TradingConfig{
			OrderLots:        getEnvInt64("ORDER_LOTS", 1),
			MaxTradesPerDay:  getEnvInt("MAX_TRADES_PER_DAY", 10),
			DailyMaxLoss:     model.RupeesToPaise(getEnvFloat("DAILY_MAX_LOSS", 2000)),
			TrailStartProfit: model.RupeesToPaise(getEnvFloat("TRAIL_START_PROFIT", 10)),
			TrailStep:        model.RupeesToPaise(getEnvFloat("TRAIL_STEP", 5)),
			TrailDistance:    model.RupeesToPaise(getEnvFloat("TRAILING_SL_DISTANCE", 5)),
			Period:           getEnvInt("SUPERTREND_PERIOD", 7),
			Multiplier:       getEnvFloat("SUPERTREND_MULTIPLIER", 4),
			CandleInterval:   time.Duration(getEnvInt("CANDLE_INTERVAL_SECONDS", 5)) * time.Second,
			Index:            getEnv("SELECTED_INDEX", "NIFTY"),
		},
		Session: markethours.DefaultSession(),
	}
}

// Validate checks the full configuration, including the live-mode credential
// requirement.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("TRADING_MODE must be paper or live, got %q", c.Mode)
	}
	if c.Mode == model.ModeLive {
		for k, v := range map[string]string{
			"ANGEL_API_KEY":     c.AngelAPIKey,
			"ANGEL_CLIENT_CODE": c.AngelClientCode,
			"ANGEL_PASSWORD":    c.AngelPassword,
			"ANGEL_TOTP_SECRET": c.AngelTOTPSecret,
		} {
			if v == "" {
				return fmt.Errorf("live mode requires %s", k)
			}
		}
	}
	if _, ok := indices.Get(c.Trading.Index); !ok {
		return fmt.Errorf("unknown SELECTED_INDEX %q (valid: %v)", c.Trading.Index, indices.Names())
	}
	if err := c.Trading.Validate(); err != nil {
		return err
	}
	return c.Session.Validate()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("[config] invalid number for %s: %q, using %v", key, v, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
	}
	return fallback
}
