// Package redis publishes emitted signal messages on a Redis pub/sub channel
// so other local consumers (dashboards, bots) can follow them live.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultMaxFailures  = 3
	defaultResetTimeout = 30 * time.Second
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures  int           // breaker threshold, default 3
	ResetTimeout time.Duration // breaker cool-down, default 30s
}

// Publisher publishes payloads through a circuit breaker.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("[redis] connected", slog.String("addr", cfg.Addr))
	return newPublisher(client, cfg), nil
}

func newPublisher(client *goredis.Client, cfg PublisherConfig) *Publisher {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	return &Publisher{
		client:  client,
		breaker: NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker so callers can hook state changes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// Publish sends payload on channel. Returns ErrCircuitOpen while Redis is
// considered down.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.breaker.Execute(func() error {
		return p.client.Publish(ctx, channel, payload).Err()
	})
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}
