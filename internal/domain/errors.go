package domain

import (
	"errors"
	"fmt"
)

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

// NetworkError represents a feed transport failure. Workers recover from it by redialing.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "subscribe", "read")
	Venue     string
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	if e.Venue == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Venue + " " + e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(venue, op string, err error) *NetworkError {
	return &NetworkError{Op: op, Venue: venue, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(venue, op string, err error) *NetworkError {
	return &NetworkError{Op: op, Venue: venue, Err: err, Retriable: false}
}

// ParseError is a feed payload that carried no usable price. Always skipped.
type ParseError struct {
	Venue  string
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error [" + e.Venue + "]: " + e.Reason
}

func (e *ParseError) IsRetriable() bool {
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

// ExecutionFault is a failed or timed out order placement.
// It is reported to the caller and never retried by the dispatcher.
type ExecutionFault struct {
	Outcome Outcome
	Status  int // HTTP status, 0 when the request never completed
	Err     error
}

func (e *ExecutionFault) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("execution %s (status %d): %v", e.Outcome, e.Status, e.Err)
	}
	return fmt.Sprintf("execution %s: %v", e.Outcome, e.Err)
}

func (e *ExecutionFault) IsRetriable() bool {
	return false
}

func (e *ExecutionFault) Unwrap() error {
	return e.Err
}

// RiskHaltError carries the risk figures at the moment the kill-switch fired.
type RiskHaltError struct {
	DailyPnL float64
	Limit    float64 // negative loss threshold that was breached
}

func (e *RiskHaltError) Error() string {
	return fmt.Sprintf("%s: daily pnl %.4f <= limit %.4f", ErrRiskHalt.Error(), e.DailyPnL, e.Limit)
}

func (e *RiskHaltError) Is(target error) bool {
	return target == ErrRiskHalt
}

var (
	// ErrRiskHalt is returned once the daily loss cap is breached. Terminal.
	ErrRiskHalt = errors.New("risk halt")

	// ErrInvalidPrice is returned when a signal carries a non-positive or non-finite limit price.
	ErrInvalidPrice = errors.New("invalid limit price")

	// ErrBackpressure is reported when the signal sink cannot accept a signal.
	ErrBackpressure = errors.New("signal channel backpressure")

	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
