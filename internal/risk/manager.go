// Package risk sizes positions and enforces the daily loss kill-switch.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

// State of the kill-switch state machine.
type State int

const (
	StateRunning State = iota
	StateHalted        // terminal
)

func (s State) String() string {
	if s == StateHalted {
		return "HALTED"
	}
	return "RUNNING"
}

// Limits are the strategy risk parameters.
type Limits struct {
	MaxTradeFraction float64 // fraction of capital committed per trade
	LossCapFraction  float64 // fraction of capital the daily loss may reach before halting
}

// Manager holds the running capital and daily PnL.
// It is not safe for concurrent use; the orchestrator serializes all calls.
// There is no daily rollover: DailyPnL accumulates for the life of the process.
type Manager struct {
	limits       Limits
	totalCapital float64
	dailyPnL     float64
	state        State
	metrics      *infra.Metrics
	logger       *slog.Logger
}

// NewManager starts in the Running state with the given capital.
func NewManager(initialCapital float64, limits Limits, metrics *infra.Metrics) (*Manager, error) {
	if !(initialCapital > 0) || math.IsInf(initialCapital, 0) {
		return nil, &domain.ConfigError{Field: "initial_capital", Err: fmt.Errorf("must be positive, got %v", initialCapital)}
	}
	if !(limits.MaxTradeFraction > 0 && limits.MaxTradeFraction <= 1) {
		return nil, &domain.ConfigError{Field: "max_trade_fraction", Err: fmt.Errorf("must be in (0, 1], got %v", limits.MaxTradeFraction)}
	}
	if !(limits.LossCapFraction > 0 && limits.LossCapFraction <= 1) {
		return nil, &domain.ConfigError{Field: "loss_cap_fraction", Err: fmt.Errorf("must be in (0, 1], got %v", limits.LossCapFraction)}
	}

	m := &Manager{
		limits:       limits,
		totalCapital: initialCapital,
		metrics:      metrics,
		logger:       slog.Default().With("module", "risk"),
	}
	m.publish()
	return m, nil
}

// ProcessSignal returns the position size for sig, or an error when the trade is refused.
// A *domain.RiskHaltError (errors.Is ErrRiskHalt) is final: every later call fails the same way.
func (m *Manager) ProcessSignal(sig domain.TradeSignal) (float64, error) {
	limit := -(m.limits.LossCapFraction * m.totalCapital)

	if m.state == StateHalted || m.dailyPnL <= limit {
		if m.state != StateHalted {
			m.state = StateHalted
			m.publish()
			m.logger.Error("RISK HALT: max daily loss reached, no more trades",
				slog.Float64("daily_pnl", m.dailyPnL),
				slog.Float64("limit", limit),
				slog.Float64("loss_cap_pct", m.limits.LossCapFraction*100),
			)
		}
		m.metrics.RecordRiskRejection("halt")
		return 0, &domain.RiskHaltError{DailyPnL: m.dailyPnL, Limit: limit}
	}

	if !(sig.LimitPrice > 0) || math.IsInf(sig.LimitPrice, 0) {
		m.metrics.RecordRiskRejection("invalid_price")
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, sig.LimitPrice)
	}

	dollarRisk := m.totalCapital * m.limits.MaxTradeFraction
	return dollarRisk / sig.LimitPrice, nil
}

// RecordTradeResult books realized PnL into both the daily figure and total capital.
func (m *Manager) RecordTradeResult(pnl float64) {
	m.dailyPnL += pnl
	m.totalCapital += pnl
	m.publish()
	m.logger.Info("Trade result recorded",
		slog.Float64("pnl", pnl),
		slog.Float64("total_capital", m.totalCapital),
		slog.Float64("daily_pnl", m.dailyPnL),
	)
}

// State returns the kill-switch state.
func (m *Manager) State() State {
	return m.state
}

// Snapshot copies the current figures.
func (m *Manager) Snapshot() domain.RiskSnapshot {
	return domain.RiskSnapshot{
		TotalCapital:     m.totalCapital,
		DailyPnL:         m.dailyPnL,
		LossCapFraction:  m.limits.LossCapFraction,
		MaxTradeFraction: m.limits.MaxTradeFraction,
		Halted:           m.state == StateHalted,
	}
}

func (m *Manager) publish() {
	m.metrics.SetRisk(m.totalCapital, m.dailyPnL, m.state == StateHalted)
}
