package model

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable is returned when a symbol has no or too little history.
	ErrDataUnavailable = errors.New("no data")

	// ErrInsufficientTrainingData is returned by a classifier that could not be fitted.
	ErrInsufficientTrainingData = errors.New("insufficient training data")

	// ErrTradeNotFound is returned for close/lookup on an id that is not active.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrPriceUnavailable is returned when no live price could be obtained.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// ScanError wraps a per-symbol scan failure.
type ScanError struct {
	Symbol string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Symbol, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
