package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

const pollAttempts = 3

// PollerOptions configures an HTTP polling price source.
type PollerOptions struct {
	Venue      string
	URL        string
	APIKey     string
	PriceField string
	Interval   time.Duration
	Timeout    time.Duration
	RetryDelay time.Duration // first retry delay, doubled per attempt
}

// Poller mirrors a polled JSON endpoint into one price cell.
// Fetch failures are logged and retried on the next tick.
type Poller struct {
	opts       PollerOptions
	out        domain.PriceWriter
	metrics    *infra.Metrics
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPoller creates a poller writing into out.
func NewPoller(opts PollerOptions, out domain.PriceWriter, metrics *infra.Metrics) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.PriceField == "" {
		opts.PriceField = "price"
	}
	return &Poller{
		opts:       opts,
		out:        out,
		metrics:    metrics,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     slog.Default().With("module", "feed", "venue", opts.Venue),
	}
}

// Connect fetches once and then polls in the background.
func (p *Poller) Connect(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Price polling panic recovered", slog.Any("panic", r))
			}
		}()

		if err := p.fetch(ctx); err != nil {
			p.logger.Warn("Initial price fetch failed", slog.Any("error", err))
		}

		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Price polling stopped")
				return
			case <-ticker.C:
				if err := p.fetch(ctx); err != nil {
					p.logger.Warn("Price fetch failed", slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// fetch tries up to pollAttempts times with exponential backoff.
func (p *Poller) fetch(ctx context.Context) error {
	var lastErr error
	for i := 0; i < pollAttempts; i++ {
		if i > 0 {
			delay := p.opts.RetryDelay << uint(i-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			p.metrics.RecordReconnect(p.opts.Venue)
		}

		err := p.doFetch(ctx)
		if err == nil {
			p.setConnected(true)
			return nil
		}
		lastErr = err
		p.logger.Debug("Price fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	p.setConnected(false)
	return lastErr
}

func (p *Poller) doFetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(p.opts.Venue, "poll", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NewNetworkError(p.opts.Venue, "poll", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError(p.opts.Venue, "read", err)
	}

	price, err := ExtractPrice(p.opts.Venue, body, p.opts.PriceField)
	if err != nil {
		p.metrics.RecordParseError(p.opts.Venue)
		return err
	}

	p.out.Store(price)
	p.metrics.SetPrice(p.opts.Venue, price)
	return nil
}

func (p *Poller) setConnected(ok bool) {
	p.mu.Lock()
	changed := p.connected != ok
	p.connected = ok
	p.mu.Unlock()
	if changed {
		p.metrics.SetFeedConnected(p.opts.Venue, ok)
	}
}

// IsConnected reports whether the last fetch succeeded.
func (p *Poller) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Disconnect stops polling.
func (p *Poller) Disconnect() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
}

var _ domain.FeedWorker = (*Poller)(nil)
