package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/risk"
	"lagarb/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	connectErr   error
	connected    atomic.Bool
	disconnected atomic.Int32
}

func (f *fakeFeed) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeFeed) Disconnect() {
	f.connected.Store(false)
	f.disconnected.Add(1)
}

func (f *fakeFeed) IsConnected() bool { return f.connected.Load() }

// scriptedSource emits its signals in order, then idles until cancelled.
type scriptedSource struct {
	signals []domain.TradeSignal
}

func (s *scriptedSource) Run(ctx context.Context, out chan<- domain.TradeSignal) {
	for _, sig := range s.signals {
		select {
		case out <- sig:
		case <-ctx.Done():
			return
		}
	}
	<-ctx.Done()
}

type fakeExecutor struct {
	mu      sync.Mutex
	results []domain.ExecutionResult
	calls   []float64
	panics  bool
}

func (e *fakeExecutor) Execute(ctx context.Context, sig domain.TradeSignal, size float64) domain.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panics {
		panic("venue exploded")
	}
	e.calls = append(e.calls, size)
	if len(e.results) == 0 {
		return domain.ExecutionResult{Outcome: domain.OutcomeFilled, FilledSize: size, AvgPrice: sig.LimitPrice}
	}
	res := e.results[0]
	e.results = e.results[1:]
	return res
}

func (e *fakeExecutor) sizes() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.calls...)
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []domain.TradeReport
	err     error
}

func (r *fakeReporter) Report(ctx context.Context, rep domain.TradeReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return r.err
}

func (r *fakeReporter) all() []domain.TradeReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TradeReport(nil), r.reports...)
}

func buy(limit, oracle float64) domain.TradeSignal {
	return domain.TradeSignal{Direction: domain.DirectionBuy, LimitPrice: limit, OracleReference: oracle, CreatedAt: time.Now()}
}

type harness struct {
	orch     *Orchestrator
	feed     *fakeFeed
	exec     *fakeExecutor
	reporter *fakeReporter
	risk     *risk.Manager
}

func newHarness(t *testing.T, capital float64, signals []domain.TradeSignal, exec *fakeExecutor) *harness {
	t.Helper()
	rm, err := risk.NewManager(capital, risk.Limits{MaxTradeFraction: 0.02, LossCapFraction: 0.5}, nil)
	require.NoError(t, err)

	h := &harness{feed: &fakeFeed{}, exec: exec, reporter: &fakeReporter{}, risk: rm}
	h.orch = NewOrchestrator(
		Config{SignalBuffer: 4, DumpPath: filepath.Join(t.TempDir(), "dump.json")},
		state.NewPrices(),
		map[string]domain.FeedWorker{"tracked": h.feed},
		&scriptedSource{signals: signals},
		rm,
		exec,
		[]domain.TradeReporter{h.reporter},
	)
	return h
}

func (h *harness) start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.orch.Run(ctx) }()
	return errCh
}

func TestOrchestrator_ProcessesSignalsAndStopsOnCancel(t *testing.T) {
	h := newHarness(t, 50, []domain.TradeSignal{buy(100, 106), buy(100, 106)}, &fakeExecutor{})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := h.start(ctx)

	require.Eventually(t, func() bool { return len(h.reporter.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}

	sizes := h.exec.sizes()
	require.Len(t, sizes, 2)
	assert.InDelta(t, 0.01, sizes[0], 1e-12)

	reps := h.reporter.all()
	// 0.01 * (106 - 100) booked on the first fill
	assert.InDelta(t, 0.06, reps[0].PnL, 1e-9)
	assert.InDelta(t, 50.06, reps[0].Risk.TotalCapital, 1e-9)

	st := h.orch.Snapshot()
	assert.Equal(t, uint64(2), st.SignalsProcessed)
	assert.Equal(t, uint64(2), st.TradesFilled)
	assert.NotNil(t, st.LastTrade)
	assert.Equal(t, int32(1), h.feed.disconnected.Load())
}

func TestOrchestrator_HaltEndsRun(t *testing.T) {
	// First fill loses 500 on capital 1000, breaching the 50% cap.
	exec := &fakeExecutor{results: []domain.ExecutionResult{
		{Outcome: domain.OutcomeFilled, FilledSize: 0.2, AvgPrice: 2606},
	}}
	h := newHarness(t, 1000, []domain.TradeSignal{buy(100, 106), buy(100, 106), buy(100, 106)}, exec)
	errCh := h.start(context.Background())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, domain.ErrRiskHalt)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not halt")
	}

	assert.Len(t, h.exec.sizes(), 1, "no order after the kill-switch")
	assert.Equal(t, risk.StateHalted, h.risk.State())
	assert.True(t, h.orch.Snapshot().Risk.Halted)
	assert.Equal(t, int32(1), h.feed.disconnected.Load())
}

func TestOrchestrator_DropsInvalidSignals(t *testing.T) {
	h := newHarness(t, 50, []domain.TradeSignal{buy(0, 106), buy(100, 106)}, &fakeExecutor{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	require.Eventually(t, func() bool { return len(h.reporter.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.orch.Snapshot().SignalsProcessed == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), h.orch.Snapshot().SignalsRejected)
	assert.Len(t, h.exec.sizes(), 1)
}

func TestOrchestrator_UnfilledResultsBookNoPnL(t *testing.T) {
	fault := &domain.ExecutionFault{Outcome: domain.OutcomeTimedOut, Err: context.DeadlineExceeded}
	exec := &fakeExecutor{results: []domain.ExecutionResult{
		{Outcome: domain.OutcomeTimedOut, Err: fault},
		{Outcome: domain.OutcomeFailed, Err: &domain.ExecutionFault{Outcome: domain.OutcomeFailed, Status: 500, Err: errors.New("boom")}},
	}}
	h := newHarness(t, 50, []domain.TradeSignal{buy(100, 106), buy(100, 106)}, exec)
	h.reporter.err = errors.New("journal down")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	require.Eventually(t, func() bool { return len(h.reporter.all()) == 2 }, 2*time.Second, 5*time.Millisecond)

	reps := h.reporter.all()
	assert.Zero(t, reps[0].PnL)
	assert.Equal(t, "execution TIMED_OUT: context deadline exceeded", reps[0].Error)
	assert.Equal(t, 50.0, reps[1].Risk.TotalCapital)
	assert.Zero(t, h.risk.Snapshot().DailyPnL)
}

func TestOrchestrator_FeedConnectFailure(t *testing.T) {
	h := newHarness(t, 50, nil, &fakeExecutor{})
	h.feed.connectErr = domain.ErrConnectionFailed

	err := h.orch.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectionFailed)
	assert.Empty(t, h.exec.sizes())
}

func TestOrchestrator_PanicDumpsState(t *testing.T) {
	h := newHarness(t, 50, []domain.TradeSignal{buy(100, 106)}, &fakeExecutor{panics: true})

	assert.Panics(t, func() { _ = h.orch.Run(context.Background()) })

	b, err := os.ReadFile(h.orch.cfg.DumpPath)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(b, &st))
	assert.Equal(t, 50.0, st.Risk.TotalCapital)
	assert.Contains(t, st.Feeds, "tracked")
}

func TestOrchestrator_DumpState(t *testing.T) {
	h := newHarness(t, 50, nil, &fakeExecutor{})
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, h.orch.DumpState(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"total_capital": 50`)

	assert.Error(t, h.orch.DumpState(filepath.Join(t.TempDir(), "missing", "state.json")))
}
