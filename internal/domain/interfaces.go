package domain

import (
	"context"
)

// FeedWorker defines the interface for venue price connectors
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// PriceWriter is the single-writer capability on one price cell.
type PriceWriter interface {
	Store(price float64)
}

// PriceReader is the read capability on one price cell.
type PriceReader interface {
	Load() float64
}

// Executor places one sized order for a signal and reports the outcome.
type Executor interface {
	Execute(ctx context.Context, sig TradeSignal, size float64) ExecutionResult
}

// TradeReporter receives a report after every dispatched order. Failures are logged, never fatal.
type TradeReporter interface {
	Report(ctx context.Context, rep TradeReport) error
}
