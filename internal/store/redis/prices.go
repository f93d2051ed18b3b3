package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
)

const priceKeyPrefix = "fx:price:"

// PriceKey returns the cache key of symbol's last price.
func PriceKey(symbol string) string { return priceKeyPrefix + symbol }

// GetPrice returns the cached price of symbol. ok is false on a miss.
func (s *Store) GetPrice(ctx context.Context, symbol string) (price float64, ok bool, err error) {
	v, err := s.exec(func() (interface{}, error) {
		return s.client.Get(ctx, PriceKey(symbol)).Result()
	})
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get price %s: %w", symbol, err)
	}
	price, err = strconv.ParseFloat(v.(string), 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached price %s: %w", symbol, err)
	}
	return price, true, nil
}

// SetPrice caches price for the store's TTL.
func (s *Store) SetPrice(ctx context.Context, symbol string, price float64) error {
	_, err := s.exec(func() (interface{}, error) {
		return nil, s.client.Set(ctx, PriceKey(symbol), FormatPrice(price), s.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("set price %s: %w", symbol, err)
	}
	return nil
}

// FormatPrice is the wire form of a cached price.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
