package domain

import (
	"time"
)

// Direction is the side of a corrective trade on the tracked venue.
type Direction int

const (
	DirectionBuy Direction = iota + 1
	DirectionSell
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "BUY"
	case DirectionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the direction as BUY or SELL in JSON and logs.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Sign is +1 for buys and -1 for sells.
func (d Direction) Sign() float64 {
	if d == DirectionSell {
		return -1
	}
	return 1
}

// TradeSignal is produced once by the detector and consumed once by the orchestrator.
type TradeSignal struct {
	Direction       Direction `json:"direction"`
	LimitPrice      float64   `json:"limit_price"`      // tracked price at detection time
	OracleReference float64   `json:"oracle_reference"` // reference price at detection time
	CreatedAt       time.Time `json:"created_at"`
}

// Lag returns |reference - limit| / limit, or 0 for a non-positive limit.
func (s TradeSignal) Lag() float64 {
	if s.LimitPrice <= 0 {
		return 0
	}
	diff := s.OracleReference - s.LimitPrice
	if diff < 0 {
		diff = -diff
	}
	return diff / s.LimitPrice
}

// Outcome of a single order placement.
type Outcome string

const (
	OutcomeFilled   Outcome = "FILLED"
	OutcomeFailed   Outcome = "FAILED"
	OutcomeTimedOut Outcome = "TIMED_OUT"
)

// Order is the venue-neutral order handed to the execution protocol.
type Order struct {
	AssetID string
	Side    Direction
	Size    float64
	Price   float64
}

// ExecutionResult is what the dispatcher reports for every order.
type ExecutionResult struct {
	Outcome      Outcome       `json:"outcome"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	OrderID      string        `json:"order_id,omitempty"`
	FilledSize   float64       `json:"filled_size"`
	AvgPrice     float64       `json:"avg_price"`
	LatencyFault bool          `json:"latency_fault"` // elapsed reached the latency budget
	Err          error         `json:"-"`             // *ExecutionFault for Failed and TimedOut
}

// ErrorText returns the fault message, or "" for a clean result.
func (r ExecutionResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Filled reports whether the venue confirmed a fill.
func (r ExecutionResult) Filled() bool {
	return r.Outcome == OutcomeFilled && r.FilledSize > 0
}

// RealizedPnL marks a confirmed fill against the oracle reference the signal was raised on.
// Unconfirmed results contribute nothing.
func (r ExecutionResult) RealizedPnL(sig TradeSignal, feeBps float64) float64 {
	if !r.Filled() {
		return 0
	}
	gross := sig.Direction.Sign() * (sig.OracleReference - r.AvgPrice) * r.FilledSize
	fee := r.AvgPrice * r.FilledSize * feeBps / 10_000
	return gross - fee
}
