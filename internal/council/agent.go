package council

import "forex-autopilot/internal/model"

// AgentVote is one agent's opinion on the latest bar.
type AgentVote struct {
	Agent      string       `json:"agent"`
	Vote       model.Action `json:"vote"`
	Confidence float64      `json:"confidence"`
}

// Agent analyzes the most recent enriched row and casts a vote.
type Agent interface {
	Name() string
	Analyze(row model.EnrichedRow) AgentVote
}

// ────────────────────────────────────────────────────────────
// Trend
// ────────────────────────────────────────────────────────────

// TrendAgent counts bullish trend conditions across the moving averages
// and MACD.
type TrendAgent struct{}

func (TrendAgent) Name() string { return "Trend" }

func (a TrendAgent) Analyze(row model.EnrichedRow) AgentVote {
	var ema, sma, macd, signal float64
	if row.HasEMA {
		ema = row.EMA20
	}
	if row.HasSMA {
		sma = row.SMA50
	}
	if row.HasMACD {
		macd, signal = row.MACD, row.MACDSignal
	}

	score := 0
	if row.Close > ema {
		score++
	}
	if ema > sma {
		score++
	}
	if macd > signal {
		score++
	}
	if macd > 0 {
		score++
	}

	switch {
	case score >= 3:
		return AgentVote{Agent: a.Name(), Vote: model.ActionBuy, Confidence: 0.8}
	case score <= 1:
		return AgentVote{Agent: a.Name(), Vote: model.ActionSell, Confidence: 0.8}
	default:
		return AgentVote{Agent: a.Name(), Vote: model.ActionNeutral, Confidence: 0.5}
	}
}

// ────────────────────────────────────────────────────────────
// Volatility
// ────────────────────────────────────────────────────────────

// VolatilityAgent fades moves outside the Bollinger bands.
type VolatilityAgent struct{}

func (VolatilityAgent) Name() string { return "Volatility" }

func (a VolatilityAgent) Analyze(row model.EnrichedRow) AgentVote {
	high, low := row.Close, row.Close
	if row.HasBB {
		high, low = row.BBHigh, row.BBLow
	}

	switch {
	case row.Close < low:
		return AgentVote{Agent: a.Name(), Vote: model.ActionBuy, Confidence: 0.7}
	case row.Close > high:
		return AgentVote{Agent: a.Name(), Vote: model.ActionSell, Confidence: 0.7}
	default:
		return AgentVote{Agent: a.Name(), Vote: model.ActionNeutral, Confidence: 0.5}
	}
}

// ────────────────────────────────────────────────────────────
// Pattern
// ────────────────────────────────────────────────────────────

// PatternAgent votes on candlestick patterns. First match wins.
type PatternAgent struct{}

func (PatternAgent) Name() string { return "Pattern" }

func (a PatternAgent) Analyze(row model.EnrichedRow) AgentVote {
	switch {
	case row.PatternBullishEngulfing:
		return AgentVote{Agent: a.Name(), Vote: model.ActionBuy, Confidence: 0.9}
	case row.PatternHammer:
		return AgentVote{Agent: a.Name(), Vote: model.ActionBuy, Confidence: 0.85}
	case row.PatternBearishEngulfing:
		return AgentVote{Agent: a.Name(), Vote: model.ActionSell, Confidence: 0.9}
	case row.PatternDoji:
		return AgentVote{Agent: a.Name(), Vote: model.ActionNeutral, Confidence: 0.6}
	default:
		return AgentVote{Agent: a.Name(), Vote: model.ActionNeutral, Confidence: 0.5}
	}
}

// ────────────────────────────────────────────────────────────
// Momentum
// ────────────────────────────────────────────────────────────

// MomentumAgent reads RSI: extremes are contrarian, the middle bands
// follow the momentum.
type MomentumAgent struct{}

func (MomentumAgent) Name() string { return "Momentum" }

func (a MomentumAgent) Analyze(row model.EnrichedRow) AgentVote {
	rsi := row.RSIOr(50)

	switch {
	case rsi < 30:
		return AgentVote{Agent: a.Name(), Vote: model.ActionBuy, Confidence: 0.85}
	case rsi > 70:
		return AgentVote{Agent: a.Name(), Vote: model.ActionSell, Confidence: 0.85}
	case rsi > 50 && rsi < 70:
		return AgentVote{Agent: a.Name(), Vote: model.ActionBuy, Confidence: 0.6}
	case rsi > 30 && rsi < 50:
		return AgentVote{Agent: a.Name(), Vote: model.ActionSell, Confidence: 0.6}
	default:
		return AgentVote{Agent: a.Name(), Vote: model.ActionNeutral, Confidence: 0.5}
	}
}
