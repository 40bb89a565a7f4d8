// Package engine wires feeds, detection, risk and execution into one pipeline.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/state"
)

// SignalSource produces trade signals until ctx is cancelled.
type SignalSource interface {
	Run(ctx context.Context, out chan<- domain.TradeSignal)
}

// RiskGate sizes signals and books realized PnL. Only the consumption loop calls it.
type RiskGate interface {
	ProcessSignal(sig domain.TradeSignal) (float64, error)
	RecordTradeResult(pnl float64)
	Snapshot() domain.RiskSnapshot
}

// Config holds the orchestrator knobs.
type Config struct {
	SignalBuffer int
	FeeBps       float64
	DumpPath     string // state dump written on panic
}

// Status is the externally visible engine state.
type Status struct {
	StartedAt        time.Time            `json:"started_at"`
	Prices           domain.PriceSnapshot `json:"prices"`
	Risk             domain.RiskSnapshot  `json:"risk"`
	Feeds            map[string]bool      `json:"feeds"`
	SignalsProcessed uint64               `json:"signals_processed"`
	SignalsRejected  uint64               `json:"signals_rejected"`
	TradesFilled     uint64               `json:"trades_filled"`
	LastTrade        *domain.TradeReport  `json:"last_trade,omitempty"`
}

// Orchestrator starts the feed workers and the detector, then drains signals
// one at a time through risk and execution. At most one order is ever in flight.
type Orchestrator struct {
	cfg       Config
	prices    *state.Prices
	feeds     map[string]domain.FeedWorker
	detector  SignalSource
	risk      RiskGate
	executor  domain.Executor
	reporters []domain.TradeReporter

	// loop-owned counters; published to readers through status
	processed uint64
	rejected  uint64
	filled    uint64
	lastTrade *domain.TradeReport
	startedAt time.Time

	status atomic.Pointer[Status]
	logger *slog.Logger
}

// NewOrchestrator creates a new orchestrator. feeds is keyed by venue name.
func NewOrchestrator(
	cfg Config,
	prices *state.Prices,
	feeds map[string]domain.FeedWorker,
	detector SignalSource,
	risk RiskGate,
	executor domain.Executor,
	reporters []domain.TradeReporter,
) *Orchestrator {
	if cfg.SignalBuffer <= 0 {
		cfg.SignalBuffer = 100
	}
	if cfg.DumpPath == "" {
		cfg.DumpPath = "panic_dump.json"
	}

	o := &Orchestrator{
		cfg:       cfg,
		prices:    prices,
		feeds:     feeds,
		detector:  detector,
		risk:      risk,
		executor:  executor,
		reporters: reporters,
		startedAt: time.Now(),
		logger:    slog.Default().With("module", "orchestrator"),
	}
	o.publish()
	return o
}

// Run blocks until ctx is cancelled (returns nil) or the risk manager halts
// (returns an error matching domain.ErrRiskHalt).
// A panic in the loop dumps state to Config.DumpPath before propagating.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			if err := o.DumpState(o.cfg.DumpPath); err != nil {
				o.logger.Error("Failed to write state dump", slog.Any("error", err))
			}
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for venue, w := range o.feeds {
		if err := w.Connect(ctx); err != nil {
			o.disconnectAll()
			return fmt.Errorf("connect feed %s: %w", venue, err)
		}
	}
	defer o.disconnectAll()

	signals := make(chan domain.TradeSignal, o.cfg.SignalBuffer)
	detCtx, stopDetector := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.detector.Run(detCtx, signals)
	}()
	defer func() {
		stopDetector()
		wg.Wait()
	}()

	o.logger.Info("Engine started, waiting for price warm-up",
		slog.Int("signal_buffer", o.cfg.SignalBuffer),
		slog.Int("feeds", len(o.feeds)),
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Engine stopping...")
			return nil
		case sig := <-signals:
			if err := o.handleSignal(ctx, sig); err != nil {
				return err
			}
		}
	}
}

// handleSignal runs one signal through risk and execution. Only a risk halt is returned.
func (o *Orchestrator) handleSignal(ctx context.Context, sig domain.TradeSignal) error {
	o.processed++
	defer o.publish()

	o.logger.Debug("Processing signal",
		slog.String("direction", sig.Direction.String()),
		slog.Float64("lag_pct", sig.Lag()*100),
		slog.Duration("queued", time.Since(sig.CreatedAt)),
	)

	size, err := o.risk.ProcessSignal(sig)
	if err != nil {
		if errors.Is(err, domain.ErrRiskHalt) {
			o.logger.Error("Risk halt, stopping engine", slog.Any("error", err))
			return err
		}
		o.rejected++
		o.logger.Warn("Signal dropped", slog.Any("error", err), slog.Any("signal", sig))
		return nil
	}

	res := o.executor.Execute(ctx, sig, size)

	var pnl float64
	if res.Filled() {
		pnl = res.RealizedPnL(sig, o.cfg.FeeBps)
		o.risk.RecordTradeResult(pnl)
		o.filled++
	}

	rep := domain.TradeReport{
		Signal:   sig,
		Size:     size,
		Result:   res,
		Error:    res.ErrorText(),
		PnL:      pnl,
		Risk:     o.risk.Snapshot(),
		Reported: time.Now(),
	}
	o.lastTrade = &rep

	for _, r := range o.reporters {
		if err := r.Report(ctx, rep); err != nil {
			o.logger.Warn("Trade report failed", slog.Any("error", err))
		}
	}
	return nil
}

func (o *Orchestrator) disconnectAll() {
	for _, w := range o.feeds {
		w.Disconnect()
	}
}

func (o *Orchestrator) publish() {
	o.status.Store(&Status{
		StartedAt:        o.startedAt,
		Risk:             o.risk.Snapshot(),
		SignalsProcessed: o.processed,
		SignalsRejected:  o.rejected,
		TradesFilled:     o.filled,
		LastTrade:        o.lastTrade,
	})
}

// Snapshot returns the latest published status with live prices and feed health.
// Safe to call from any goroutine.
func (o *Orchestrator) Snapshot() Status {
	st := *o.status.Load()
	st.Prices = o.prices.Snapshot()
	st.Feeds = make(map[string]bool, len(o.feeds))
	for venue, w := range o.feeds {
		st.Feeds[venue] = w.IsConnected()
	}
	return st
}

// DumpState writes the current status to a file for post-mortem.
func (o *Orchestrator) DumpState(filename string) error {
	o.logger.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(o.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("write state dump: %w", err)
	}
	return nil
}
