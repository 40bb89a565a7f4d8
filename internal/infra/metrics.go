package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics wraps the Prometheus collectors of the pipeline.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	price            *prometheus.GaugeVec
	feedConnected    *prometheus.GaugeVec
	feedReconnects   *prometheus.CounterVec
	feedParseErrors  *prometheus.CounterVec
	signals          *prometheus.CounterVec
	signalLag        prometheus.Histogram
	backpressure     prometheus.Counter
	executions       *prometheus.CounterVec
	executionLatency prometheus.Histogram
	latencyFaults    prometheus.Counter
	riskRejections   *prometheus.CounterVec
	capital          prometheus.Gauge
	dailyPnL         prometheus.Gauge
	halted           prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagarb_price",
			Help: "Last price stored per cell",
		}, []string{"cell"}),
		feedConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagarb_feed_connected",
			Help: "1 while the venue stream is connected",
		}, []string{"venue"}),
		feedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagarb_feed_reconnects_total",
			Help: "Feed redial attempts after a transport failure",
		}, []string{"venue"}),
		feedParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagarb_feed_parse_errors_total",
			Help: "Inbound feed messages skipped without a usable price",
		}, []string{"venue"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagarb_signals_total",
			Help: "Trade signals emitted by the detector",
		}, []string{"direction"}),
		signalLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lagarb_signal_lag_ratio",
			Help:    "Relative lag at signal emission",
			Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
		}),
		backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lagarb_signal_backpressure_total",
			Help: "Signals that found the channel full",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagarb_executions_total",
			Help: "Dispatched orders by outcome",
		}, []string{"outcome"}),
		executionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lagarb_execution_latency_seconds",
			Help:    "Order round trip latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.25, 0.5, 1},
		}),
		latencyFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lagarb_execution_latency_faults_total",
			Help: "Orders whose round trip reached the latency budget",
		}),
		riskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagarb_risk_rejections_total",
			Help: "Signals rejected by the risk manager",
		}, []string{"reason"}),
		capital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lagarb_total_capital",
			Help: "Current total capital",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lagarb_daily_pnl",
			Help: "Running daily profit and loss",
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lagarb_risk_halted",
			Help: "1 once the kill-switch fired",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.price,
		m.feedConnected,
		m.feedReconnects,
		m.feedParseErrors,
		m.signals,
		m.signalLag,
		m.backpressure,
		m.executions,
		m.executionLatency,
		m.latencyFaults,
		m.riskRejections,
		m.capital,
		m.dailyPnL,
		m.halted,
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetPrice(cell string, price float64) {
	if m == nil {
		return
	}
	m.price.WithLabelValues(cell).Set(price)
}

// SetFeedConnected sets the connection gauge of a venue.
func (m *Metrics) SetFeedConnected(venue string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.feedConnected.WithLabelValues(venue).Set(v)
}

func (m *Metrics) RecordReconnect(venue string) {
	if m == nil {
		return
	}
	m.feedReconnects.WithLabelValues(venue).Inc()
}

func (m *Metrics) RecordParseError(venue string) {
	if m == nil {
		return
	}
	m.feedParseErrors.WithLabelValues(venue).Inc()
}

// RecordSignal counts an emitted signal and its lag.
func (m *Metrics) RecordSignal(direction string, lag float64) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(direction).Inc()
	m.signalLag.Observe(lag)
}

func (m *Metrics) RecordBackpressure() {
	if m == nil {
		return
	}
	m.backpressure.Inc()
}

// RecordExecution counts an order by outcome and observes its latency.
func (m *Metrics) RecordExecution(outcome string, elapsed time.Duration, latencyFault bool) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.executionLatency.Observe(elapsed.Seconds())
	if latencyFault {
		m.latencyFaults.Inc()
	}
}

func (m *Metrics) RecordRiskRejection(reason string) {
	if m == nil {
		return
	}
	m.riskRejections.WithLabelValues(reason).Inc()
}

// SetRisk publishes the risk manager figures.
func (m *Metrics) SetRisk(capital, dailyPnL float64, halted bool) {
	if m == nil {
		return
	}
	m.capital.Set(capital)
	m.dailyPnL.Set(dailyPnL)
	if halted {
		m.halted.Set(1)
	} else {
		m.halted.Set(0)
	}
}
