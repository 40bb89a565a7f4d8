package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/engine"
	"lagarb/internal/execution"
	"lagarb/internal/infra"
	"lagarb/internal/infra/feed"
	"lagarb/internal/infra/redisfeed"
	"lagarb/internal/infra/storage"
	"lagarb/internal/risk"
	"lagarb/internal/state"
	"lagarb/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Metrics   *infra.Metrics
	Journal   *storage.Journal
	Publisher *redisfeed.Publisher
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger and opens the optional sinks.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("Bootstrapping lag arbitrage engine",
		slog.String("app", cfg.App.Name),
		slog.String("mode", cfg.Execution.Mode),
		slog.String("tracked", cfg.Venues.Tracked.Name),
		slog.String("reference", cfg.Venues.Reference.Name),
	)

	b.Metrics = infra.NewMetrics()

	if cfg.Storage.JournalPath != "" {
		journal, err := storage.NewJournal(cfg.Storage.JournalPath)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("Trade journal ready", slog.String("path", cfg.Storage.JournalPath))
	}

	if cfg.Redis.Addr != "" {
		pub := redisfeed.NewPublisher(cfg)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pub.Ping(pingCtx); err != nil {
			// Reports are best-effort; keep the publisher so it recovers when Redis does.
			slog.Warn("Redis unreachable at startup", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
		}
		b.Publisher = pub
	}

	return nil
}

// Reporters lists the configured trade report sinks.
func (b *Bootstrap) Reporters() []domain.TradeReporter {
	var out []domain.TradeReporter
	if b.Journal != nil {
		out = append(out, b.Journal)
	}
	if b.Publisher != nil {
		out = append(out, b.Publisher)
	}
	return out
}

// BuildEngine assembles prices, feeds, detector, risk manager and executor.
func (b *Bootstrap) BuildEngine() (*engine.Orchestrator, error) {
	cfg := b.Config
	prices := state.NewPrices()

	tracked, err := feed.New(cfg, cfg.Venues.Tracked, prices.Tracked(), b.Metrics)
	if err != nil {
		return nil, err
	}
	reference, err := feed.New(cfg, cfg.Venues.Reference, prices.Reference(), b.Metrics)
	if err != nil {
		return nil, err
	}
	feeds := map[string]domain.FeedWorker{
		cfg.Venues.Tracked.Name:   tracked,
		cfg.Venues.Reference.Name: reference,
	}
	if len(feeds) != 2 {
		return nil, &domain.ConfigError{Field: "venues", Err: errors.New("tracked and reference venues need distinct names")}
	}

	detector := strategy.NewDetector(prices.Tracked(), prices.Reference(), strategy.DetectorConfig{
		Threshold:    cfg.Strategy.LagThreshold,
		Cooldown:     cfg.Cooldown(),
		Warmup:       cfg.Warmup(),
		PollInterval: cfg.PollInterval(),
	}, b.Metrics)

	riskManager, err := risk.NewManager(cfg.Strategy.InitialCapital, risk.Limits{
		MaxTradeFraction: cfg.Strategy.MaxTradeFraction,
		LossCapFraction:  cfg.Strategy.LossCapFraction,
	}, b.Metrics)
	if err != nil {
		return nil, err
	}

	executor, err := b.newExecutor()
	if err != nil {
		return nil, err
	}

	return engine.NewOrchestrator(
		engine.Config{
			SignalBuffer: cfg.Strategy.SignalBuffer,
			FeeBps:       cfg.Execution.FeeBps,
			DumpPath:     cfg.Ops.DumpPath,
		},
		prices,
		feeds,
		detector,
		riskManager,
		executor,
		b.Reporters(),
	), nil
}

func (b *Bootstrap) newExecutor() (domain.Executor, error) {
	cfg := b.Config
	switch cfg.Execution.Mode {
	case infra.ModePaper:
		slog.Warn("Paper trading: orders are simulated")
		return execution.NewPaper(
			cfg.PaperLatency(),
			cfg.LatencyBudget(),
			b.Metrics,
		), nil
	case infra.ModeLive:
		var signer execution.Signer = execution.NopSigner{}
		if cfg.Execution.APIKey != "" {
			signer = execution.NewHMACSigner(cfg.Execution.APIKey, cfg.Execution.APISecret, cfg.Execution.APIPassphrase)
		}
		execution.Warmup()
		return execution.NewDispatcher(execution.Options{
			BaseURL:             cfg.Execution.RestURL,
			OrderPath:           cfg.Execution.OrderPath,
			AssetID:             cfg.Venues.Tracked.AssetID,
			Timeout:             cfg.OrderTimeout(),
			LatencyBudget:       cfg.LatencyBudget(),
			MaxIdleConnsPerHost: cfg.Execution.MaxIdleConnsPerHost,
		}, signer, b.Metrics), nil
	default:
		return nil, &domain.ConfigError{Field: "execution.mode", Err: fmt.Errorf("unknown mode %q", cfg.Execution.Mode)}
	}
}

// statusRecentTrades is how many journal rows /status shows.
const statusRecentTrades = 10

// JournalStatus summarizes the trade journal.
type JournalStatus struct {
	RealizedPnL  string               `json:"realized_pnl"`
	RecentTrades []domain.TradeRecord `json:"recent_trades"`
	Error        string               `json:"error,omitempty"`
}

// StatusView is the /status payload: the engine snapshot plus the journal summary.
type StatusView struct {
	engine.Status
	Journal *JournalStatus `json:"journal,omitempty"`
}

// StatusFunc builds the ops server status callback for orch.
func (b *Bootstrap) StatusFunc(orch *engine.Orchestrator) infra.StatusFunc {
	return func() any {
		view := StatusView{Status: orch.Snapshot()}
		if b.Journal == nil {
			return view
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		js := &JournalStatus{}
		if pnl, err := b.Journal.RealizedPnL(ctx); err != nil {
			js.Error = err.Error()
		} else {
			js.RealizedPnL = pnl.String()
		}
		if recs, err := b.Journal.Recent(ctx, statusRecentTrades); err != nil {
			js.Error = err.Error()
		} else {
			js.RecentTrades = recs
		}
		view.Journal = js
		return view
	}
}

// Close releases the journal and Redis connections.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("Failed to close journal", slog.Any("error", err))
		}
	}
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			slog.Warn("Failed to close redis publisher", slog.Any("error", err))
		}
	}
}
