// Package redis holds the Redis-backed shared state: the cross-process price
// cache and the trade event channel.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
)

const (
	defaultPriceTTL = 60 * time.Second
	breakerFailures = 5
	breakerTimeout  = 10 * time.Second
)

// Config configures the Redis store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	PriceTTL time.Duration
}

// Store wraps a Redis client behind a circuit breaker so a dead Redis costs
// one fast error instead of a dial timeout per call.
type Store struct {
	client *goredis.Client
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
}

// New connects to Redis and pings it.
func New(cfg Config) (*Store, error) {
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

	slog.Info("redis connected", "addr", cfg.Addr)
	return NewFromClient(client, cfg), nil
}

// NewFromClient wraps an existing client. Used by tests with redismock.
func NewFromClient(client *goredis.Client, cfg Config) *Store {
	ttl := cfg.PriceTTL
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis",
		Timeout: breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		// A cache miss is a normal answer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, goredis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Store{client: client, cb: cb, ttl: ttl}
}

// Client returns the underlying client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// BreakerState reports the breaker state ("closed", "half-open", "open").
func (s *Store) BreakerState() string { return s.cb.State().String() }

// Close closes the connection pool.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) exec(fn func() (interface{}, error)) (interface{}, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	return v, err
}
