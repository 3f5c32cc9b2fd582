package strategy

import "quantbroker/internal/domain"

// ActionType defines the type of trading action
type ActionType int

const (
	ActionBuy  ActionType = iota + 1
	ActionSell // Sell
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Action represents a decision made by the strategy
type Action struct {
	Type       ActionType
	Instrument string
	Price      float64
	Size       float64
}

// Env is what a strategy sees on each step.
type Env struct {
	Broker domain.Broker
	Feeds  map[string]domain.Feed
}

// Bar returns the current bar of an instrument.
func (e Env) Bar(instrument string) (domain.Bar, bool) {
	f, ok := e.Feeds[instrument]
	if !ok {
		return domain.Bar{}, false
	}
	return f.Current()
}

// Strategy is the interface that all trading strategies must implement.
// It is called synchronously by the Runner.
type Strategy interface {
	// Next is called once per step after the broker processed the bar.
	Next(env Env)
	// NotifyOrder receives every order snapshot the broker emitted.
	NotifyOrder(o *domain.Order)
}

// OpenStrategy is implemented by strategies that trade the opening price.
// With cheat-on-open the Runner calls NextOpen before the broker matches.
type OpenStrategy interface {
	NextOpen(env Env)
}
