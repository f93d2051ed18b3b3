// Package council runs a fixed set of rule-based agents over the latest
// enriched bar and aggregates their votes into a single verdict.
package council

import (
	"github.com/shopspring/decimal"

	"forex-autopilot/internal/model"
)

// quorum is the minimum summed confidence a side needs to win.
var quorum = decimal.NewFromFloat(1.5)

// Verdict is the aggregated decision of the council.
type Verdict struct {
	Consensus model.Action         `json:"consensus"`
	Strength  float64              `json:"strength"`
	Votes     map[string]AgentVote `json:"votes"`
}

// Council holds the agents in evaluation order.
type Council struct {
	agents []Agent
}

// New creates a council with the four standard agents.
func New() *Council {
	return &Council{agents: []Agent{TrendAgent{}, VolatilityAgent{}, PatternAgent{}, MomentumAgent{}}}
}

// NewWithAgents creates a council from an explicit agent list.
func NewWithAgents(agents ...Agent) *Council {
	return &Council{agents: agents}
}

// Decide runs every agent on the row and aggregates the result.
func (c *Council) Decide(row model.EnrichedRow) Verdict {
	votes := make(map[string]AgentVote, len(c.agents))
	for _, a := range c.agents {
		votes[a.Name()] = a.Analyze(row)
	}
	return Aggregate(votes)
}

// Aggregate derives the verdict from the votes alone. Strength is the
// winning side's summed confidence divided by four, rounded to 2 dp.
// Confidences are summed as decimals so the result does not depend on
// map iteration order.
func Aggregate(votes map[string]AgentVote) Verdict {
	buy, sell := decimal.Zero, decimal.Zero
	for _, v := range votes {
		conf := decimal.NewFromFloat(v.Confidence)
		switch v.Vote {
		case model.ActionBuy:
			buy = buy.Add(conf)
		case model.ActionSell:
			sell = sell.Add(conf)
		}
	}

	verdict := Verdict{Consensus: model.ActionNeutral, Strength: 0.5, Votes: votes}
	switch {
	case buy.GreaterThan(sell) && buy.GreaterThan(quorum):
		verdict.Consensus = model.ActionBuy
		verdict.Strength = strength(buy)
	case sell.GreaterThan(buy) && sell.GreaterThan(quorum):
		verdict.Consensus = model.ActionSell
		verdict.Strength = strength(sell)
	}
	return verdict
}

func strength(sum decimal.Decimal) float64 {
	s, _ := sum.Div(decimal.NewFromInt(4)).Round(2).Float64()
	if s > 1 {
		s = 1
	}
	return s
}
