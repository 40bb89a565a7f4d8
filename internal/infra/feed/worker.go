package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	defaultBackoff          = 1 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadTimeout      = 60 * time.Second
	pongWriteTimeout        = 5 * time.Second
)

// WorkerOptions configures a websocket price worker.
type WorkerOptions struct {
	Venue            string
	URL              string
	AssetID          string
	Channel          string
	PriceField       string
	Backoff          time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
}

// subscribeRequest is the one message sent after every successful dial.
type subscribeRequest struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// Worker mirrors a venue's streamed price into one price cell.
// It redials forever after a fixed backoff and never reports errors to its caller.
type Worker struct {
	opts    WorkerOptions
	out     domain.PriceWriter
	metrics *infra.Metrics
	logger  *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a websocket worker writing into out.
func NewWorker(opts WorkerOptions, out domain.PriceWriter, metrics *infra.Metrics) *Worker {
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.Channel == "" {
		opts.Channel = "market"
	}
	if opts.PriceField == "" {
		opts.PriceField = "price"
	}
	return &Worker{
		opts:    opts,
		out:     out,
		metrics: metrics,
		logger:  slog.Default().With("module", "feed", "venue", opts.Venue),
	}
}

// Connect starts the connection loop in the background.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.logger.Info("Connecting to feed", slog.String("url", w.opts.URL))
		if err := w.connect(ctx); err != nil {
			if domain.IsRetriable(err) {
				w.logger.Warn("Feed connection failed", slog.Any("error", err))
			} else {
				// Still redialed; a rejected handshake usually needs operator action.
				w.logger.Error("Feed rejected connection", slog.Any("error", err))
			}
		} else {
			err := w.readLoop(ctx)
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("Feed disconnected", slog.Any("error", err), slog.Duration("backoff", w.opts.Backoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.Backoff):
			w.metrics.RecordReconnect(w.opts.Venue)
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return domain.NewFatalNetworkError(w.opts.Venue, "dial", fmt.Errorf("handshake status %d: %w", resp.StatusCode, err))
		}
		return domain.NewNetworkError(w.opts.Venue, "dial", err)
	}

	conn.SetPingHandler(func(payload string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(pongWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return domain.NewNetworkError(w.opts.Venue, "subscribe", err)
	}

	w.metrics.SetFeedConnected(w.opts.Venue, true)
	w.logger.Info("Feed connected", slog.String("asset", w.opts.AssetID))
	return nil
}

func (w *Worker) subscribe() error {
	b, err := json.Marshal(subscribeRequest{
		AssetIDs: []string{w.opts.AssetID},
		Type:     w.opts.Channel,
	})
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *Worker) readLoop(ctx context.Context) error {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return domain.ErrConnectionFailed
	}

	// Unblocks ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer w.closeConnection()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return domain.NewNetworkError(w.opts.Venue, "read", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		w.handleMessage(msg)
	}
}

func (w *Worker) handleMessage(msg []byte) {
	price, err := ExtractPrice(w.opts.Venue, msg, w.opts.PriceField)
	if err != nil {
		w.metrics.RecordParseError(w.opts.Venue)
		return
	}
	w.out.Store(price)
	w.metrics.SetPrice(w.opts.Venue, price)
	w.logger.Debug("Price update", slog.Float64("price", price))
}

// IsConnected reports whether a stream is currently open.
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	if w.connected {
		w.metrics.SetFeedConnected(w.opts.Venue, false)
	}
	w.connected = false
}

// Disconnect stops the loop and waits for it to exit.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

var _ domain.FeedWorker = (*Worker)(nil)
