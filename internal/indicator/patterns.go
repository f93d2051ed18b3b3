package indicator

import (
	"math"

	"forex-autopilot/internal/model"
)

// DetectPatterns sets the candlestick pattern flags on every row.
//
//   - doji: body at most 10% of the range
//   - hammer: lower shadow ≥ 2×body and upper shadow ≤ 0.5×body
//   - bullish engulfing: red bar followed by a green bar that opens at or
//     below the previous close and closes at or above the previous open
//   - bearish engulfing: the mirror image
func DetectPatterns(rows []model.EnrichedRow) {
	for i := range rows {
		c := rows[i].Candle
		body := c.Close - c.Open
		absBody := math.Abs(body)
		rng := c.High - c.Low
		lowerShadow := math.Min(c.Open, c.Close) - c.Low
		upperShadow := c.High - math.Max(c.Open, c.Close)

		rows[i].PatternDoji = absBody <= rng*0.1
		rows[i].PatternHammer = lowerShadow >= absBody*2 && upperShadow <= absBody*0.5

		if i == 0 {
			rows[i].PatternBullishEngulfing = false
			rows[i].PatternBearishEngulfing = false
			continue
		}
		p := rows[i-1].Candle
		prevBody := p.Close - p.Open
		rows[i].PatternBullishEngulfing = prevBody < 0 && body > 0 && c.Open <= p.Close && c.Close >= p.Open
		rows[i].PatternBearishEngulfing = prevBody > 0 && body < 0 && c.Open >= p.Close && c.Close <= p.Open
	}
}
