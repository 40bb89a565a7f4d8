// Package state holds the lock-free price cells shared by the feed workers and the detector.
//
// Each price is an IEEE-754 double kept as its bit pattern in an atomic.Uint64.
// Go has no atomic float type, and sync/atomic operations are sequentially
// consistent, which covers the release-store / acquire-load pairing the
// detector relies on: a reader never sees a torn value and always sees a value
// at least as fresh as the last store it synchronized with. Nothing orders the
// two cells relative to each other.
package state

import (
	"math"
	"sync/atomic"
	"time"

	"lagarb/internal/domain"
)

// Cell is a single price. Zero means the feed is still warming up.
// Exactly one goroutine may Store; any number may Load.
type Cell struct {
	bits atomic.Uint64
}

// Store publishes a new price.
func (c *Cell) Store(price float64) {
	c.bits.Store(math.Float64bits(price))
}

// Load returns the most recently published price.
func (c *Cell) Load() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Prices owns the tracked and reference cells.
type Prices struct {
	tracked   Cell
	reference Cell
}

// NewPrices returns both cells in the warming-up state.
func NewPrices() *Prices {
	return &Prices{}
}

// Tracked returns the cell for the venue where orders are placed.
func (p *Prices) Tracked() *Cell { return &p.tracked }

// Reference returns the cell for the independent reference source.
func (p *Prices) Reference() *Cell { return &p.reference }

// Snapshot reads both cells.
func (p *Prices) Snapshot() domain.PriceSnapshot {
	return domain.PriceSnapshot{
		Tracked:   p.tracked.Load(),
		Reference: p.reference.Load(),
		At:        time.Now(),
	}
}

var (
	_ domain.PriceWriter = (*Cell)(nil)
	_ domain.PriceReader = (*Cell)(nil)
)
