// Package execution places orders on the tracked venue and reports what actually happened.
package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxResponseBytes = 64 << 10
	sizeDecimals     = 8
)

// Options configures the live dispatcher.
type Options struct {
	BaseURL             string
	OrderPath           string
	AssetID             string
	Timeout             time.Duration // whole round trip
	LatencyBudget       time.Duration // elapsed at or above this is a latency fault
	MaxIdleConnsPerHost int
}

type orderPayload struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"`
	Size    string `json:"size"`
	Price   string `json:"price"`
}

type createOrderRequest struct {
	Action string       `json:"action"`
	Order  orderPayload `json:"order"`
}

type createOrderResponse struct {
	Success    bool                `json:"success"`
	OrderID    string              `json:"orderID"`
	Status     string              `json:"status"`
	ErrorMsg   string              `json:"errorMsg"`
	FilledSize decimal.NullDecimal `json:"filledSize"`
	AvgPrice   decimal.NullDecimal `json:"avgPrice"`
}

// Dispatcher submits one limit order per call over a pooled keep-alive client.
// Orders are never retried; every failure comes back as a typed result.
type Dispatcher struct {
	opts       Options
	endpoint   string
	httpClient *http.Client
	signer     Signer
	metrics    *infra.Metrics
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil signer sends requests unsigned.
func NewDispatcher(opts Options, signer Signer, metrics *infra.Metrics) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}
	if signer == nil {
		signer = NopSigner{}
	}

	return &Dispatcher{
		opts:     opts,
		endpoint: strings.TrimRight(opts.BaseURL, "/") + opts.OrderPath,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        opts.MaxIdleConnsPerHost,
				MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		signer:  signer,
		metrics: metrics,
		logger:  slog.Default().With("module", "dispatcher"),
	}
}

// Execute places a limit order for size units at the signal's limit price.
func (d *Dispatcher) Execute(ctx context.Context, sig domain.TradeSignal, size float64) domain.ExecutionResult {
	start := time.Now()
	res := d.place(ctx, domain.Order{
		AssetID: d.opts.AssetID,
		Side:    sig.Direction,
		Size:    size,
		Price:   sig.LimitPrice,
	})
	return d.finish(res, time.Since(start))
}

func (d *Dispatcher) place(ctx context.Context, order domain.Order) domain.ExecutionResult {
	body, size, err := encodeOrder(order)
	if err != nil {
		return failed(domain.OutcomeFailed, 0, err)
	}
	order.Size = size

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(domain.OutcomeFailed, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := d.signer.Sign(req, body); err != nil {
		return failed(domain.OutcomeFailed, 0, fmt.Errorf("sign order: %w", err))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return failed(domain.OutcomeTimedOut, 0, err)
		}
		return failed(domain.OutcomeFailed, 0, err)
	}
	defer resp.Body.Close()

	buf := acquireBuffer()
	defer releaseBuffer(buf)
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		if isTimeout(err) {
			return failed(domain.OutcomeTimedOut, resp.StatusCode, err)
		}
		return failed(domain.OutcomeFailed, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(domain.OutcomeFailed, resp.StatusCode, fmt.Errorf("venue rejected order: %s", strings.TrimSpace(buf.String())))
	}

	var out createOrderResponse
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return failed(domain.OutcomeFailed, resp.StatusCode, fmt.Errorf("decode order response: %w", err))
	}
	return interpret(out, order, resp.StatusCode)
}

// interpret maps the venue response onto an outcome. Only a matched order is a fill;
// resting, delayed or unmatched orders have produced no position and count as Failed.
func interpret(out createOrderResponse, order domain.Order, status int) domain.ExecutionResult {
	if !out.Success {
		msg := out.ErrorMsg
		if msg == "" {
			msg = "order not accepted"
		}
		return failed(domain.OutcomeFailed, status, errors.New(msg))
	}

	switch strings.ToLower(out.Status) {
	case "matched", "filled":
	default:
		res := failed(domain.OutcomeFailed, status, fmt.Errorf("order not filled: status %q", out.Status))
		res.OrderID = out.OrderID
		return res
	}

	res := domain.ExecutionResult{
		Outcome:    domain.OutcomeFilled,
		OrderID:    out.OrderID,
		FilledSize: order.Size,
		AvgPrice:   order.Price,
	}
	if out.FilledSize.Valid {
		if !out.FilledSize.Decimal.IsPositive() {
			res := failed(domain.OutcomeFailed, status, errors.New("order matched with zero fill"))
			res.OrderID = out.OrderID
			return res
		}
		// never book more than was submitted
		res.FilledSize = math.Min(out.FilledSize.Decimal.InexactFloat64(), order.Size)
	}
	if out.AvgPrice.Valid && out.AvgPrice.Decimal.IsPositive() {
		res.AvgPrice = out.AvgPrice.Decimal.InexactFloat64()
	}
	return res
}

func (d *Dispatcher) finish(res domain.ExecutionResult, elapsed time.Duration) domain.ExecutionResult {
	res.Elapsed = elapsed
	res.LatencyFault = d.opts.LatencyBudget > 0 && elapsed >= d.opts.LatencyBudget
	d.metrics.RecordExecution(string(res.Outcome), elapsed, res.LatencyFault)

	if res.LatencyFault {
		d.logger.Warn("Latency budget exceeded",
			slog.Duration("elapsed", elapsed),
			slog.Duration("budget", d.opts.LatencyBudget),
		)
	}
	if res.Outcome == domain.OutcomeFilled {
		d.logger.Info("Trade executed",
			slog.String("order_id", res.OrderID),
			slog.Float64("filled_size", res.FilledSize),
			slog.Float64("avg_price", res.AvgPrice),
			slog.Duration("elapsed", elapsed),
		)
	} else {
		d.logger.Warn("Order not filled",
			slog.String("outcome", string(res.Outcome)),
			slog.Any("error", res.Err),
			slog.Duration("elapsed", elapsed),
		)
	}
	return res
}

// encodeOrder renders the wire payload and returns the size actually sent,
// truncated to sizeDecimals.
func encodeOrder(order domain.Order) ([]byte, float64, error) {
	if !(order.Price > 0) || math.IsInf(order.Price, 0) {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, order.Price)
	}
	if !(order.Size > 0) || math.IsInf(order.Size, 0) {
		return nil, 0, fmt.Errorf("invalid order size %v", order.Size)
	}
	size := decimal.NewFromFloat(order.Size).Truncate(sizeDecimals)
	if !size.IsPositive() {
		return nil, 0, fmt.Errorf("order size %v rounds to zero", order.Size)
	}

	body, err := json.Marshal(createOrderRequest{
		Action: "CREATE_ORDER",
		Order: orderPayload{
			AssetID: order.AssetID,
			Side:    order.Side.String(),
			Size:    size.String(),
			Price:   decimal.NewFromFloat(order.Price).String(),
		},
	})
	if err != nil {
		return nil, 0, err
	}
	return body, size.InexactFloat64(), nil
}

func failed(outcome domain.Outcome, status int, err error) domain.ExecutionResult {
	return domain.ExecutionResult{
		Outcome: outcome,
		Err:     &domain.ExecutionFault{Outcome: outcome, Status: status, Err: err},
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
