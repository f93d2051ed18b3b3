// Package portfolio is the simulated trading account: the trade ledger with
// currency-aware P&L, its JSON snapshot, account statistics and the risk gate
// that decides whether new trades may be opened.
package portfolio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"forex-autopilot/internal/model"
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusWin    Status = "CLOSED_WIN"
	StatusLoss   Status = "CLOSED_LOSS"
	StatusManual Status = "CLOSED_MANUAL"
)

// IsLoss reports whether the status records a stop-out.
func (s Status) IsLoss() bool { return strings.Contains(string(s), "LOSS") }

// Closed reports whether the status is terminal.
func (s Status) Closed() bool { return s != StatusOpen }

// Trade is one simulated position. Open trades have nil ExitTime/ExitPrice.
type Trade struct {
	ID          string       `json:"trade_id"`
	Symbol      string       `json:"symbol"`
	Direction   model.Action `json:"direction"`
	EntryPrice  float64      `json:"entry_price"`
	StopLoss    float64      `json:"stop_loss"`
	TargetPrice float64      `json:"target_price"`
	LotSize     float64      `json:"lot_size"`
	Score       float64      `json:"score"`
	EntryTime   time.Time    `json:"entry_time"`
	ExitTime    *time.Time   `json:"exit_time"`
	ExitPrice   *float64     `json:"exit_price"`
	PnL         float64      `json:"pnl"`
	Status      Status       `json:"status"`
}

// snapshotTimeLayouts are accepted when decoding trade timestamps. Zone-less
// values are read as UTC.
var snapshotTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type snapshotTime struct{ time.Time }

func (st *snapshotTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range snapshotTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			st.Time = t
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognised format", s)
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as the zone-less ISO
// form older snapshots were written with.
func (t *Trade) UnmarshalJSON(data []byte) error {
	type plain Trade
	aux := struct {
		*plain
		EntryTime snapshotTime  `json:"entry_time"`
		ExitTime  *snapshotTime `json:"exit_time"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.EntryTime = aux.EntryTime.Time
	t.ExitTime = nil
	if aux.ExitTime != nil {
		exit := aux.ExitTime.Time
		t.ExitTime = &exit
	}
	return nil
}

// Units returns the position size in base-currency units.
func (t *Trade) Units() float64 { return t.LotSize * unitsPerLot }

// OpenRequest describes a trade to open.
type OpenRequest struct {
	Symbol    string
	Direction model.Action
	Entry     float64
	Stop      float64
	Target    float64
	Lots      float64
	Score     float64
}

// hit returns the terminal status if price touched the stop or target.
// The stop is checked first.
func (t *Trade) hit(price float64) (Status, bool) {
	if t.Direction == model.ActionBuy {
		switch {
		case price <= t.StopLoss:
			return StatusLoss, true
		case price >= t.TargetPrice:
			return StatusWin, true
		}
		return StatusOpen, false
	}
	switch {
	case price >= t.StopLoss:
		return StatusLoss, true
	case price <= t.TargetPrice:
		return StatusWin, true
	}
	return StatusOpen, false
}

// clone returns a deep copy safe to hand out of the ledger lock.
func (t *Trade) clone() Trade {
	c := *t
	if t.ExitTime != nil {
		et := *t.ExitTime
		c.ExitTime = &et
	}
	if t.ExitPrice != nil {
		ep := *t.ExitPrice
		c.ExitPrice = &ep
	}
	return c
}
