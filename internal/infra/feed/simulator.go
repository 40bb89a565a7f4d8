package feed

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

// SimulatorOptions configures a random-walk price source.
type SimulatorOptions struct {
	Venue    string
	Start    float64
	Step     float64 // maximum absolute move per tick
	Interval time.Duration
	Seed     uint64
}

// Simulator publishes a bounded random walk. It stands in for a reference
// oracle when no real source is configured.
type Simulator struct {
	opts    SimulatorOptions
	out     domain.PriceWriter
	metrics *infra.Metrics
	rng     *rand.Rand
	logger  *slog.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSimulator creates a simulator writing into out.
func NewSimulator(opts SimulatorOptions, out domain.PriceWriter, metrics *infra.Metrics) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	return &Simulator{
		opts:    opts,
		out:     out,
		metrics: metrics,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		logger:  slog.Default().With("module", "feed", "venue", opts.Venue),
	}
}

// Connect starts the walk.
func (s *Simulator) Connect(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.setRunning(true)
	s.logger.Info("Starting simulated price feed", slog.Float64("start", s.opts.Start))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.setRunning(false)

		price := s.opts.Start
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		for {
			price = s.next(price)
			s.out.Store(price)
			s.metrics.SetPrice(s.opts.Venue, price)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// next moves price by a uniform step in [-Step/2, Step/2), never reaching zero.
func (s *Simulator) next(price float64) float64 {
	p := price + (s.rng.Float64()-0.5)*s.opts.Step
	if p <= 0 {
		return price
	}
	return p
}

func (s *Simulator) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
	s.metrics.SetFeedConnected(s.opts.Venue, v)
}

func (s *Simulator) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Disconnect stops the walk.
func (s *Simulator) Disconnect() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

var _ domain.FeedWorker = (*Simulator)(nil)
