package state

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_ZeroIsWarmingUp(t *testing.T) {
	p := NewPrices()

	snap := p.Snapshot()
	assert.Zero(t, snap.Tracked)
	assert.Zero(t, snap.Reference)
	assert.False(t, snap.Ready())

	p.Tracked().Store(0.52)
	assert.False(t, p.Snapshot().Ready())

	p.Reference().Store(0.55)
	snap = p.Snapshot()
	assert.True(t, snap.Ready())
	assert.Equal(t, 0.52, snap.Tracked)
	assert.Equal(t, 0.55, snap.Reference)
}

func TestCell_RoundTripsBitPattern(t *testing.T) {
	var c Cell
	for _, v := range []float64{1e-300, 60000.123456789, math.MaxFloat64, math.SmallestNonzeroFloat64} {
		c.Store(v)
		assert.Equal(t, v, c.Load())
	}
}

func TestCell_IndependentCells(t *testing.T) {
	p := NewPrices()
	p.Tracked().Store(100)
	p.Reference().Store(106)

	assert.Equal(t, 100.0, p.Tracked().Load())
	assert.Equal(t, 106.0, p.Reference().Load())
}

// One writer and many readers: readers must only ever observe values the writer stored.
func TestCell_NoTornReads(t *testing.T) {
	var c Cell
	const a, b = 1.0000000001, 987654321.5
	c.Store(a)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan float64, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if v := c.Load(); v != a && v != b {
					select {
					case errs <- v:
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 100000; i++ {
		if i%2 == 0 {
			c.Store(b)
		} else {
			c.Store(a)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case v := <-errs:
		require.Failf(t, "torn read", "observed %v", v)
	default:
	}
}
