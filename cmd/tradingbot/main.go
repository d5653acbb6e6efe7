// Command tradingbot runs the SuperTrend options scalper: a one-second
// decision loop over live or simulated index quotes, with a REST/WebSocket
// control surface and SQLite trade journaling.
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/config"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/broker"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/broker/paper"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/broker/smartapi"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/engine"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/gateway"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/logger"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/metrics"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
	redisstore "github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/store/redis"
	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	logRing := logger.NewRing(500)
	log := logger.Init("tradingbot", logger.ParseLevel(cfg.LogLevel), logRing)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	mets := metrics.New()
	metrics.Serve(cfg.MetricsAddr)

	store, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		log.Error("trade store init failed", "path", cfg.SQLitePath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	hub := gateway.NewHub(log)
	publishers := gateway.MultiPublisher{hub}

	var cfgStore gateway.ConfigPersister
	if cfg.RedisAddr != "" {
		pub, err := redisstore.NewPublisher(cfg.RedisAddr, cfg.RedisPassword, log)
		if err != nil {
			log.Error("redis unavailable, running without state mirror", "addr", cfg.RedisAddr, "err", err)
		} else {
			defer pub.Close()
			publishers = append(publishers, pub)
			cs := redisstore.NewConfigStore(pub)
			cfgStore = cs

			// Overrides saved through the API win over the environment.
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if saved, ok, err := cs.Load(ctx); err != nil {
				log.Warn("config overrides unreadable", "err", err)
			} else if ok {
				if err := saved.Validate(); err != nil {
					log.Warn("stored config overrides invalid, ignoring", "err", err)
				} else {
					cfg.Trading = saved
					log.Info("applied stored config overrides", "index", saved.Index)
				}
			}
			cancel()
		}
	}

	broker, err := buildBroker(cfg, log)
	if err != nil {
		log.Error("broker init failed", "mode", cfg.Mode, "err", err)
		os.Exit(1)
	}

	bot, err := engine.New(cfg.Trading, cfg.Session, cfg.Mode, broker, store, publishers, mets, log)
	if err != nil {
		log.Error("engine init failed", "err", err)
		os.Exit(1)
	}
	if cfg.AutoStart {
		bot.Start()
	}

	srv := gateway.NewServer(bot, store, cfgStore, logRing, hub, cfg.Session, cfg.Trading, log)
	mux := http.NewServeMux()
	srv.Register(mux)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown requested")

	bot.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown incomplete", "err", err)
	}
	log.Info("shutdown complete")
}

// buildBroker assembles the mode-routing gateway. With SmartAPI credentials
// the live venue is available and paper mode simulates fills over real index
// quotes; without them only paper over a random walk exists and a switch to
// live is refused at runtime.
func buildBroker(cfg *config.Config, log *slog.Logger) (model.BrokerGateway, error) {
	haveCreds := cfg.AngelAPIKey != "" && cfg.AngelClientCode != "" &&
		cfg.AngelPassword != "" && cfg.AngelTOTPSecret != ""

	var live model.BrokerGateway
	var quotes paper.QuoteSource
	if haveCreds {
		client := smartapi.New(smartapi.Config{
			APIKey:     cfg.AngelAPIKey,
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
		}, log.With("component", "smartapi"))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.Login(ctx); err != nil {
			if cfg.Mode == model.ModeLive {
				return nil, err
			}
			log.Warn("smartapi login failed, paper mode falls back to simulated quotes", "err", err)
		} else {
			live = client
			quotes = client
		}
	}

	var paperGW model.BrokerGateway
	if quotes != nil {
		// Simulated options over a live index feed.
		paperGW = paper.New(quotes, time.Now().UnixNano())
	} else {
		log.Info("paper venue with simulated index quotes")
		walk := paper.NewRandomWalk(
			model.RupeesToPaise(24000), // seed near the NIFTY spot range
			model.RupeesToPaise(5),
			rand.New(rand.NewSource(time.Now().UnixNano())),
		)
		paperGW = paper.New(walk, time.Now().UnixNano())
	}
	return broker.NewRouter(cfg.Mode, paperGW, live)
}
