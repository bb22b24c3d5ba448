// Package publish fans live pulses and sweep signals out over Redis pub/sub so
// dashboards and other processes can follow a running monitor.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
)

// Config locates the Redis server and names the channels.
type Config struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	LatestTTL time.Duration `mapstructure:"latest_ttl"`
}

// Publisher writes JSON messages to <prefix>:<symbol>:<kind> channels and keeps
// the most recent pulse under <prefix>:<symbol>:pulse:latest.
type Publisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Dial connects and pings the server.
func Dial(ctx context.Context, cfg Config) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return New(rdb, cfg.Prefix, cfg.LatestTTL), nil
}

// New wraps an existing client. An empty prefix becomes "sweepscope".
func New(client *redis.Client, prefix string, latestTTL time.Duration) *Publisher {
	if prefix == "" {
		prefix = "sweepscope"
	}
	return &Publisher{client: client, prefix: prefix, ttl: latestTTL}
}

// Channel returns the channel name for symbol and kind.
func (p *Publisher) Channel(symbol, kind string) string {
	return p.prefix + ":" + symbol + ":" + kind
}

// SweepMessage is the payload published for each sweep signal.
type SweepMessage struct {
	Symbol string            `json:"symbol"`
	Signal string            `json:"signal"`
	Event  models.SweepEvent `json:"event"`
}

// PulseMessage is the payload published for each order-flow pulse.
type PulseMessage struct {
	Symbol string          `json:"symbol"`
	Pulse  orderflow.Pulse `json:"pulse"`
}

// PublishSweep announces a sweep signal.
func (p *Publisher) PublishSweep(ctx context.Context, symbol, signal string, ev models.SweepEvent) error {
	payload, err := json.Marshal(SweepMessage{Symbol: symbol, Signal: signal, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal sweep: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(symbol, "sweeps"), string(payload)).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// PublishPulse announces a pulse and stores it as the latest one.
func (p *Publisher) PublishPulse(ctx context.Context, symbol string, pulse orderflow.Pulse) error {
	payload, err := json.Marshal(PulseMessage{Symbol: symbol, Pulse: pulse})
	if err != nil {
		return fmt.Errorf("marshal pulse: %w", err)
	}
	msg := string(payload)
	if err := p.client.Publish(ctx, p.Channel(symbol, "pulses"), msg).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if err := p.client.Set(ctx, p.Channel(symbol, "pulse:latest"), msg, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}
