package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// Event kinds published by the engine.
const (
	EventTradeOpened = "trade_opened"
	EventTradeClosed = "trade_closed"
	EventScan        = "scan"
)

// EventChannel is the pub/sub channel of an event kind.
func EventChannel(kind string) string { return "fx:events:" + kind }

// LatestKey holds the most recent payload of an event kind.
func LatestKey(kind string) string { return "fx:latest:" + kind }

// PublishEvent publishes v as JSON on the kind's channel and stores it as
// the latest value of that kind.
func (s *Store) PublishEvent(ctx context.Context, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	msg := string(payload)

	_, err = s.exec(func() (interface{}, error) {
		if err := s.client.Publish(ctx, EventChannel(kind), msg).Err(); err != nil {
			return nil, err
		}
		return nil, s.client.Set(ctx, LatestKey(kind), msg, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// LatestEvent returns the raw JSON of the last event of kind, or "" if none
// has been published.
func (s *Store) LatestEvent(ctx context.Context, kind string) (string, error) {
	v, err := s.exec(func() (interface{}, error) {
		return s.client.Get(ctx, LatestKey(kind)).Result()
	})
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest %s: %w", kind, err)
	}
	return v.(string), nil
}
