package model

import (
	"context"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the decision engine from concrete data providers
// (Yahoo Finance, Redis cache, test fakes).

// CandleSource fetches historical bars.
type CandleSource interface {
	// Fetch returns candles ascending by time. period and interval use the
	// provider notation ("1mo", "15m"). An empty slice is not an error.
	Fetch(ctx context.Context, symbol, period, interval string) ([]Candle, error)
}

// PriceSource returns the latest traded price of a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Classifier predicts the direction of the next bar.
type Classifier interface {
	// Train fits the model and returns hold-out accuracy. Too little data
	// yields the neutral accuracy 0.5 and leaves the model unfitted.
	Train(rows []EnrichedRow) float64

	// Predict returns the direction of the bar after the last row and the
	// probability assigned to it.
	Predict(rows []EnrichedRow) (Direction, float64, error)
}

// ClassifierFactory builds a fresh, untrained classifier per scan.
type ClassifierFactory func() Classifier
