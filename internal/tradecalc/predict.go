package tradecalc

import "forex-autopilot/internal/model"

// PredictedCandle is a projected OHLC bar.
type PredictedCandle struct {
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	IsPrediction bool    `json:"is_prediction"`
}

// PredictNextCandle projects the next bar: the close moves ATR×confidence×0.5
// in the predicted direction, with wicks shaped by fixed ATR fractions.
func PredictNextCandle(latest model.EnrichedRow, dir model.Direction, confidence float64) PredictedCandle {
	close := latest.Close
	atr := latestATR(latest)
	movement := atr * confidence * 0.5

	var p PredictedCandle
	if dir == model.DirectionUp {
		p.Close = close + movement
		p.High = p.Close + atr*0.3
		p.Low = close - atr*0.2
	} else {
		p.Close = close - movement
		p.High = close + atr*0.2
		p.Low = p.Close - atr*0.3
	}
	p.Open = close

	return PredictedCandle{
		Open:         Round(p.Open, 5),
		High:         Round(p.High, 5),
		Low:          Round(p.Low, 5),
		Close:        Round(p.Close, 5),
		IsPrediction: true,
	}
}
