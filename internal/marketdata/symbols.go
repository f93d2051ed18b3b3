// Package marketdata fetches FX candles and quotes from Yahoo Finance and
// caches live prices.
package marketdata

import "strings"

// DefaultSymbols is the scanned universe.
var DefaultSymbols = []string{
	"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD",
	"USDCHF", "NZDUSD", "EURJPY", "GBPJPY", "AUDJPY",
	"CADJPY", "EURGBP", "EURAUD", "GBPAUD", "EURCAD",
}

// YahooSymbol maps a plain pair to Yahoo's ticker. Tickers that already
// carry a Yahoo suffix or prefix ("=X", "-USD", "=F", "^") pass through.
func YahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "=X") || strings.HasSuffix(s, "-USD") ||
		strings.HasSuffix(s, "=F") || strings.HasPrefix(s, "^") {
		return s
	}
	return s + "=X"
}

// NormalizeSymbol strips Yahoo decoration and upper-cases.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(s, "=X")
}
