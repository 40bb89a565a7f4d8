package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "BUY", DirectionBuy.String())
	assert.Equal(t, "SELL", DirectionSell.String())
	assert.Equal(t, "UNKNOWN", Direction(0).String())
}

func TestTradeSignal_Lag(t *testing.T) {
	sig := TradeSignal{Direction: DirectionBuy, LimitPrice: 100, OracleReference: 106, CreatedAt: time.Now()}
	assert.InDelta(t, 0.06, sig.Lag(), 1e-12)

	sig = TradeSignal{LimitPrice: 100, OracleReference: 94}
	assert.InDelta(t, 0.06, sig.Lag(), 1e-12)

	assert.Zero(t, TradeSignal{LimitPrice: 0, OracleReference: 10}.Lag())
}

func TestExecutionResult_RealizedPnL(t *testing.T) {
	buy := TradeSignal{Direction: DirectionBuy, LimitPrice: 100, OracleReference: 106}
	sell := TradeSignal{Direction: DirectionSell, LimitPrice: 106, OracleReference: 100}

	t.Run("buy fill marks up to reference", func(t *testing.T) {
		res := ExecutionResult{Outcome: OutcomeFilled, FilledSize: 2, AvgPrice: 100}
		assert.InDelta(t, 12.0, res.RealizedPnL(buy, 0), 1e-9)
	})

	t.Run("sell fill marks down to reference", func(t *testing.T) {
		res := ExecutionResult{Outcome: OutcomeFilled, FilledSize: 2, AvgPrice: 106}
		assert.InDelta(t, 12.0, res.RealizedPnL(sell, 0), 1e-9)
	})

	t.Run("fee is charged on notional", func(t *testing.T) {
		res := ExecutionResult{Outcome: OutcomeFilled, FilledSize: 1, AvgPrice: 100}
		// 6 gross, 100 * 1 * 10bps = 0.1 fee
		assert.InDelta(t, 5.9, res.RealizedPnL(buy, 10), 1e-9)
	})

	t.Run("unfilled results carry no pnl", func(t *testing.T) {
		for _, res := range []ExecutionResult{
			{Outcome: OutcomeFailed, FilledSize: 2, AvgPrice: 100},
			{Outcome: OutcomeTimedOut},
			{Outcome: OutcomeFilled, FilledSize: 0, AvgPrice: 100},
		} {
			assert.Zero(t, res.RealizedPnL(buy, 10))
		}
	})
}

func TestTradeReport_JSON(t *testing.T) {
	rep := TradeReport{
		Signal: TradeSignal{Direction: DirectionSell, LimitPrice: 106, OracleReference: 100},
		Size:   1,
		Result: ExecutionResult{
			Outcome: OutcomeTimedOut,
			Err:     &ExecutionFault{Outcome: OutcomeTimedOut, Err: ErrConnectionFailed},
		},
	}
	rep.Error = rep.Result.ErrorText()

	b, err := json.Marshal(rep)
	assert.NoError(t, err)
	assert.Contains(t, string(b), `"direction":"SELL"`)
	assert.Contains(t, string(b), `"outcome":"TIMED_OUT"`)
	assert.Contains(t, string(b), `"error":"execution TIMED_OUT: connection failed"`)
	assert.Empty(t, ExecutionResult{Outcome: OutcomeFilled}.ErrorText())
}
