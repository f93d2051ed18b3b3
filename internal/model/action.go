package model

// Action is a directional opinion or trade side.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionNeutral Action = "NEUTRAL"
)

// Direction is the classifier's binary prediction for the next bar.
type Direction int

const (
	DirectionDown Direction = 0
	DirectionUp   Direction = 1
)

// String returns "UP" or "DOWN".
func (d Direction) String() string {
	if d == DirectionUp {
		return "UP"
	}
	return "DOWN"
}

// Action maps the prediction to the trade side it implies.
func (d Direction) Action() Action {
	if d == DirectionUp {
		return ActionBuy
	}
	return ActionSell
}
