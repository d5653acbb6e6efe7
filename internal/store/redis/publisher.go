// Package redis publishes bot state snapshots to Redis and persists trading
// config overrides across restarts. Publishing is best effort: a slow or
// down Redis never blocks the decision loop.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

const (
	stateChannel = "pub:bot:state"
	latestKey    = "bot:state:latest"
	configKey    = "bot:config:overrides"

	latestTTL = 30 * time.Minute
	opTimeout = 2 * time.Second

	queueDepth = 64
)

// Publisher mirrors each snapshot into Redis: SET of the latest-state key
// plus a PUBLISH for live subscribers. Writes go through a buffered queue
// drained by one worker goroutine; when the queue is full the snapshot is
// dropped, never the tick.
type Publisher struct {
	rdb  *goredis.Client
	log  *slog.Logger
	q    chan []byte
	done chan struct{}
}

// NewPublisher connects to Redis, verifies the connection with a ping and
// starts the write worker.
func NewPublisher(addr, password string, log *slog.Logger) (*Publisher, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	p := &Publisher{
		rdb:  rdb,
		log:  log,
		q:    make(chan []byte, queueDepth),
		done: make(chan struct{}),
	}
	go p.writeLoop()
	return p, nil
}

// Publish enqueues the snapshot for the worker. Never blocks.
func (p *Publisher) Publish(snap model.StateSnapshot) {
	select {
	case p.q <- snap.JSON():
	default:
		p.log.Warn("redis publish queue full, snapshot dropped")
	}
}

func (p *Publisher) writeLoop() {
	defer close(p.done)
	for payload := range p.q {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		if err := p.rdb.Set(ctx, latestKey, payload, latestTTL).Err(); err != nil {
			p.log.Warn("redis set failed", "key", latestKey, "err", err)
		}
		if err := p.rdb.Publish(ctx, stateChannel, payload).Err(); err != nil {
			p.log.Warn("redis publish failed", "channel", stateChannel, "err", err)
		}
		cancel()
	}
}

// Close drains the queue and releases the Redis connection.
func (p *Publisher) Close() error {
	close(p.q)
	<-p.done
	return p.rdb.Close()
}

// ConfigStore persists trading config overrides under a dedicated key so
// that runtime updates survive a restart.
type ConfigStore struct {
	rdb *goredis.Client
}

// NewConfigStore reuses the publisher's connection.
func NewConfigStore(p *Publisher) *ConfigStore {
	return &ConfigStore{rdb: p.rdb}
}

// Save stores the full trading config as JSON under the overrides key.
func (c *ConfigStore) Save(ctx context.Context, cfg model.TradingConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := c.rdb.Set(ctx, configKey, b, 0).Err(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Load returns the stored overrides, or ok=false when none exist.
func (c *ConfigStore) Load(ctx context.Context) (model.TradingConfig, bool, error) {
	var cfg model.TradingConfig
	b, err := c.rdb.Get(ctx, configKey).Bytes()
	if err == goredis.Nil {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("load config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, false, fmt.Errorf("decode config: %w", err)
	}
	return cfg, true, nil
}
