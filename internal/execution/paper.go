package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

// Paper is a simulated venue: every valid order fills in full at its limit price
// after a fixed round-trip latency.
type Paper struct {
	latency       time.Duration
	latencyBudget time.Duration
	seq           atomic.Uint64
	metrics       *infra.Metrics
	logger        *slog.Logger
}

// NewPaper creates a paper venue with the given simulated latency.
func NewPaper(latency, latencyBudget time.Duration, metrics *infra.Metrics) *Paper {
	return &Paper{
		latency:       latency,
		latencyBudget: latencyBudget,
		metrics:       metrics,
		logger:        slog.Default().With("module", "paper_execution"),
	}
}

func (p *Paper) Execute(ctx context.Context, sig domain.TradeSignal, size float64) domain.ExecutionResult {
	start := time.Now()
	res := p.fill(ctx, sig, size)
	res.Elapsed = time.Since(start)
	res.LatencyFault = p.latencyBudget > 0 && res.Elapsed >= p.latencyBudget
	p.metrics.RecordExecution(string(res.Outcome), res.Elapsed, res.LatencyFault)

	p.logger.Info("Paper order processed",
		slog.String("outcome", string(res.Outcome)),
		slog.String("side", sig.Direction.String()),
		slog.Float64("size", size),
		slog.Float64("price", sig.LimitPrice),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res
}

func (p *Paper) fill(ctx context.Context, sig domain.TradeSignal, size float64) domain.ExecutionResult {
	if !(sig.LimitPrice > 0) || math.IsInf(sig.LimitPrice, 0) {
		return failed(domain.OutcomeFailed, 0, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, sig.LimitPrice))
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return failed(domain.OutcomeFailed, 0, fmt.Errorf("invalid order size %v", size))
	}

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				return failed(domain.OutcomeTimedOut, 0, err)
			}
			return failed(domain.OutcomeFailed, 0, err)
		case <-timer.C:
		}
	}

	return domain.ExecutionResult{
		Outcome:    domain.OutcomeFilled,
		OrderID:    fmt.Sprintf("paper-%d", p.seq.Add(1)),
		FilledSize: size,
		AvgPrice:   sig.LimitPrice,
	}
}
