package indicator

import "forex-autopilot/internal/model"

// MACD is the difference between a fast and a slow EMA of closes, with a
// signal line that is an EMA of the MACD line itself.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	line float64
}

// NewMACD creates a MACD(fast, slow, signal), typically (12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(candle model.Candle) {
	m.fast.Update(candle)
	m.slow.Update(candle)
	if !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.UpdateValue(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Diff returns the histogram (MACD minus signal).
func (m *MACD) Diff() float64 { return m.line - m.signal.Value() }

// Ready is true once the signal line has warmed up.
func (m *MACD) Ready() bool { return m.signal.Ready() }
