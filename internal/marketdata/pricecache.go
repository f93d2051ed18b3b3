package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/model"
)

// DefaultPriceTTL bounds how stale a cached price may be.
const DefaultPriceTTL = 60 * time.Second

// fetchTimeout bounds a shared price fetch, which runs detached from the
// cancellation of whichever caller started it.
const fetchTimeout = 10 * time.Second

// SharedPrices is a cross-process price cache (Redis).
type SharedPrices interface {
	GetPrice(ctx context.Context, symbol string) (float64, bool, error)
	SetPrice(ctx context.Context, symbol string, price float64) error
}

type cachedPrice struct {
	price float64
	at    time.Time
}

// PriceCache is a read-through PriceSource: local map, then the shared
// cache, then upstream. Concurrent misses for one symbol share a single
// upstream call.
type PriceCache struct {
	upstream model.PriceSource
	shared   SharedPrices
	ttl      time.Duration
	met      *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	local map[string]cachedPrice
	group singleflight.Group
}

// NewPriceCache wraps upstream. shared may be nil.
func NewPriceCache(upstream model.PriceSource, shared SharedPrices, ttl time.Duration, m *metrics.Metrics) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceCache{
		upstream: upstream,
		shared:   shared,
		ttl:      ttl,
		met:      m,
		now:      time.Now,
		local:    make(map[string]cachedPrice),
	}
}

// Price returns a price no older than the TTL.
func (c *PriceCache) Price(ctx context.Context, symbol string) (float64, error) {
	key := NormalizeSymbol(symbol)

	c.mu.Lock()
	e, ok := c.local[key]
	c.mu.Unlock()
	if ok && c.now().Sub(e.at) < c.ttl {
		c.met.CacheHit("local")
		return e.price, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		if c.shared != nil {
			p, ok, err := c.shared.GetPrice(ctx, key)
			if err != nil {
				slog.Debug("shared price cache unavailable", "symbol", key, "error", err)
			} else if ok && p > 0 {
				c.met.CacheHit("shared")
				c.store(key, p)
				return p, nil
			}
		}

		c.met.CacheMiss()
		p, err := c.upstream.Price(ctx, key)
		if err != nil {
			return 0.0, err
		}
		c.store(key, p)
		if c.shared != nil {
			if err := c.shared.SetPrice(ctx, key, p); err != nil {
				slog.Debug("shared price cache write failed", "symbol", key, "error", err)
			}
		}
		return p, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Invalidate drops symbol from the local cache.
func (c *PriceCache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.local, NormalizeSymbol(symbol))
	c.mu.Unlock()
}

func (c *PriceCache) store(key string, p float64) {
	c.mu.Lock()
	c.local[key] = cachedPrice{price: p, at: c.now()}
	c.mu.Unlock()
}
