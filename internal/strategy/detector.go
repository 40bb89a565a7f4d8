package strategy

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

// DetectorConfig holds the detection thresholds and pacing.
type DetectorConfig struct {
	Threshold    float64       // fractional lag that triggers a signal
	Cooldown     time.Duration // pause after every emitted signal
	Warmup       time.Duration // pause while either feed has no price yet
	PollInterval time.Duration // pause between quiet polls; 0 yields instead
}

// Detector compares the tracked and reference prices and emits a signal when they diverge.
type Detector struct {
	tracked   domain.PriceReader
	reference domain.PriceReader
	cfg       DetectorConfig
	metrics   *infra.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// NewDetector creates a detector over the two price cells.
func NewDetector(tracked, reference domain.PriceReader, cfg DetectorConfig, metrics *infra.Metrics) *Detector {
	return &Detector{
		tracked:   tracked,
		reference: reference,
		cfg:       cfg,
		metrics:   metrics,
		now:       time.Now,
		logger:    slog.Default().With("module", "detector"),
	}
}

// Evaluate returns the trade direction and lag when |reference-tracked|/tracked exceeds threshold.
// Buy when the tracked venue is cheap, sell when it is rich.
func Evaluate(tracked, reference, threshold float64) (domain.Direction, float64, bool) {
	if tracked <= 0 || reference <= 0 {
		return 0, 0, false
	}
	diff := reference - tracked
	if diff < 0 {
		diff = -diff
	}
	lag := diff / tracked
	if lag <= threshold {
		return 0, lag, false
	}
	if tracked < reference {
		return domain.DirectionBuy, lag, true
	}
	return domain.DirectionSell, lag, true
}

// Run polls until ctx is done. At most one signal is emitted per cooldown window;
// a divergence that persists through the cooldown is signalled again.
func (d *Detector) Run(ctx context.Context, out chan<- domain.TradeSignal) {
	d.logger.Info("Arbitrage detector started",
		slog.Float64("threshold", d.cfg.Threshold),
		slog.Duration("cooldown", d.cfg.Cooldown),
	)

	for {
		if ctx.Err() != nil {
			d.logger.Info("Arbitrage detector stopping")
			return
		}

		tracked := d.tracked.Load()
		reference := d.reference.Load()
		if tracked == 0 || reference == 0 {
			if !sleep(ctx, d.cfg.Warmup) {
				return
			}
			continue
		}

		dir, lag, ok := Evaluate(tracked, reference, d.cfg.Threshold)
		if ok {
			sig := domain.TradeSignal{
				Direction:       dir,
				LimitPrice:      tracked,
				OracleReference: reference,
				CreatedAt:       d.now(),
			}
			d.logger.Warn("Arbitrage opportunity detected",
				slog.String("direction", dir.String()),
				slog.Float64("lag_pct", lag*100),
				slog.Float64("tracked", tracked),
				slog.Float64("reference", reference),
			)
			d.metrics.RecordSignal(dir.String(), lag)

			if !d.emit(ctx, out, sig) {
				return
			}
			if !sleep(ctx, d.cfg.Cooldown) {
				return
			}
			continue
		}

		if d.cfg.PollInterval > 0 {
			if !sleep(ctx, d.cfg.PollInterval) {
				return
			}
		} else {
			runtime.Gosched()
		}
	}
}

// emit blocks while the channel is full. It returns false only when ctx ends first.
func (d *Detector) emit(ctx context.Context, out chan<- domain.TradeSignal, sig domain.TradeSignal) bool {
	select {
	case out <- sig:
		return true
	default:
	}

	d.metrics.RecordBackpressure()
	d.logger.Warn("Signal channel full, waiting for consumer", slog.Any("error", domain.ErrBackpressure))

	select {
	case out <- sig:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d or ctx; false means ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
