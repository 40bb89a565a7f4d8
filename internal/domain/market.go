package domain

import "time"

// PriceSnapshot is a point-in-time read of both price cells.
// The two values may have been sampled at slightly different instants.
type PriceSnapshot struct {
	Tracked   float64   `json:"tracked"`
	Reference float64   `json:"reference"`
	At        time.Time `json:"at"`
}

// Ready reports whether both feeds have delivered a first price.
func (p PriceSnapshot) Ready() bool {
	return p.Tracked != 0 && p.Reference != 0
}

// RiskSnapshot is a copy of the risk manager state for external readers.
type RiskSnapshot struct {
	TotalCapital     float64 `json:"total_capital"`
	DailyPnL         float64 `json:"daily_pnl"`
	LossCapFraction  float64 `json:"loss_cap_fraction"`
	MaxTradeFraction float64 `json:"max_trade_fraction"`
	Halted           bool    `json:"halted"`
}

// TradeReport is emitted after every dispatched order.
type TradeReport struct {
	Signal   TradeSignal     `json:"signal"`
	Size     float64         `json:"size"`
	Result   ExecutionResult `json:"result"`
	Error    string          `json:"error,omitempty"`
	PnL      float64         `json:"pnl"`
	Risk     RiskSnapshot    `json:"risk"`
	Reported time.Time       `json:"reported_at"`
}
