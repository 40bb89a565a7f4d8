package infra

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc returns a JSON-encodable view of the running engine.
type StatusFunc func() any

// OpsServer exposes health, Prometheus metrics, a status snapshot and pprof.
// Bind it to localhost.
type OpsServer struct {
	addr    string
	metrics *Metrics
	status  StatusFunc
	srv     *http.Server
	logger  *slog.Logger
}

// NewOpsServer builds the server. An empty addr disables it.
func NewOpsServer(addr string, metrics *Metrics, status StatusFunc) *OpsServer {
	s := &OpsServer{
		addr:    addr,
		metrics: metrics,
		status:  status,
		logger:  slog.Default().With("module", "ops_server"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *OpsServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		})).Methods(http.MethodGet)
	}

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	return r
}

func (s *OpsServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.logger.Warn("Failed to encode status", slog.Any("error", err))
	}
}

// Start serves in the background until ctx is done.
func (s *OpsServer) Start(ctx context.Context) {
	if s.addr == "" {
		s.logger.Info("Ops server disabled: empty addr")
		return
	}

	go func() {
		s.logger.Info("Ops server starting", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ops server failed", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Ops server shutdown error", slog.Any("error", err))
		}
	}()
}
