package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure between a broker and its venue
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "create_order")
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// VenueError is a business rejection reported by a venue in its payload.
// The order it concerns is final, so it is never retried.
type VenueError struct {
	Code    string
	Message string
}

func (e *VenueError) Error() string {
	if e.Code == "" {
		return "venue: " + e.Message
	}
	return "venue [" + e.Code + "]: " + e.Message
}

func (e *VenueError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidTransition is returned when an order status change is not in the state table.
	ErrInvalidTransition = errors.New("invalid order transition")

	// ErrOrderNotFound is returned when a ref or venue id is unknown.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientCash is returned by the submission pre-check.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrInvalidPrice marks market data that cannot be matched against.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrUnknownInstrument is returned for orders on an instrument without a feed.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrNotConnected is returned when a live broker has no session. It's usually retriable.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectTimeout is returned when a session is not established in time.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
