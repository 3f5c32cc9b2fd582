package domain

import "context"

// Broker is the contract every broker variant exposes to a strategy driver.
type Broker interface {
	Start(ctx context.Context) error
	Stop()

	// Submit places the order. The returned order may already be Rejected.
	Submit(o *Order) *Order
	// Cancel reports whether a cancel was applied (backtest) or dispatched (live).
	Cancel(o *Order) bool

	Cash() float64
	Value() float64
	// Position never returns nil semantics: unknown instruments yield a flat position.
	Position(instrument string) Position

	// Next advances one bar or tick.
	Next()

	// Notification pops the oldest order snapshot, nil when the queue is empty.
	Notification() *Order
	HasNotifications() bool
}

// Payload is a venue-neutral key-value message exchanged with a Store.
type Payload map[string]any

// EventKey tags a pushed Payload. Untagged events are order updates.
const (
	EventKey      = "event"
	EventOrder    = "order"
	EventBalance  = "balance"
	EventPosition = "position"
)

// Store is a thin client for one venue API.
// Errors come back either as a returned error or as an "error" field.
type Store interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool

	CreateOrder(ctx context.Context, req Payload) (Payload, error)
	CancelOrder(ctx context.Context, req Payload) (Payload, error)
	FetchOrder(ctx context.Context, req Payload) (Payload, error)
	FetchBalance(ctx context.Context) (Payload, error)
	Positions(ctx context.Context) ([]Payload, error)

	// Events delivers push callbacks. A nil channel means polling only.
	Events() <-chan Payload
}

// Observer receives order and account updates from a broker.
// Implementations must not block.
type Observer interface {
	OnOrder(o *Order)
	OnAccount(cash, value float64)
}
