package domain

import (
	"time"
)

// TradeRecord is one row of the append-only trade journal.
// It is an audit trail; risk state is never rebuilt from it.
type TradeRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Direction       string    `gorm:"size:8" json:"direction"`
	LimitPrice      string    `json:"limit_price"` // decimal string
	OracleReference string    `json:"oracle_reference"`
	Size            string    `json:"size"`
	Outcome         string    `gorm:"size:16;index" json:"outcome"`
	OrderID         string    `gorm:"index" json:"order_id"`
	FilledSize      string    `json:"filled_size"`
	AvgPrice        string    `json:"avg_price"`
	ElapsedMicros   int64     `json:"elapsed_us"`
	LatencyFault    bool      `json:"latency_fault"`
	Error           string    `json:"error,omitempty"`
	PnL             string    `gorm:"column:pnl" json:"pnl"`
	TotalCapital    string    `json:"total_capital"`
	DailyPnL        string    `gorm:"column:daily_pnl" json:"daily_pnl"`
	SignalAt        time.Time `json:"signal_at"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}
