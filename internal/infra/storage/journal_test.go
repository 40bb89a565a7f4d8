package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"lagarb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "data", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func report(outcome domain.Outcome, pnl float64) domain.TradeReport {
	return domain.TradeReport{
		Signal: domain.TradeSignal{
			Direction:       domain.DirectionBuy,
			LimitPrice:      0.5,
			OracleReference: 0.53,
			CreatedAt:       time.Now(),
		},
		Size: 20,
		Result: domain.ExecutionResult{
			Outcome:    outcome,
			Elapsed:    42 * time.Millisecond,
			OrderID:    "0xabc",
			FilledSize: 20,
			AvgPrice:   0.5,
		},
		PnL:      pnl,
		Risk:     domain.RiskSnapshot{TotalCapital: 50.6, DailyPnL: 0.6},
		Reported: time.Now(),
	}
}

func TestJournal_ReportAndRecent(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Report(ctx, report(domain.OutcomeFilled, 0.6)))

	failed := report(domain.OutcomeTimedOut, 0)
	failed.Result.Err = &domain.ExecutionFault{Outcome: domain.OutcomeTimedOut, Err: context.DeadlineExceeded}
	require.NoError(t, j.Report(ctx, failed))

	recs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "TIMED_OUT", recs[0].Outcome)
	assert.Equal(t, "execution TIMED_OUT: context deadline exceeded", recs[0].Error)

	first := recs[1]
	assert.Equal(t, "BUY", first.Direction)
	assert.Equal(t, "0.5", first.LimitPrice)
	assert.Equal(t, "0.53", first.OracleReference)
	assert.Equal(t, "20", first.Size)
	assert.Equal(t, "0.6", first.PnL)
	assert.Equal(t, "50.6", first.TotalCapital)
	assert.Equal(t, int64(42000), first.ElapsedMicros)
	assert.False(t, first.CreatedAt.IsZero())

	recs, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestJournal_RealizedPnL(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Report(ctx, report(domain.OutcomeFilled, 0.1)))
	require.NoError(t, j.Report(ctx, report(domain.OutcomeFilled, 0.2)))
	require.NoError(t, j.Report(ctx, report(domain.OutcomeFailed, 5)))

	total, err := j.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.3", total.String())
}

func TestJournal_ColumnNames(t *testing.T) {
	j := setupJournal(t)
	m := j.db.Migrator()

	for _, col := range []string{"pnl", "daily_pnl", "total_capital", "limit_price"} {
		assert.True(t, m.HasColumn(&domain.TradeRecord{}, col), col)
	}
}

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "0.1", decimalString(0.1))
	assert.Equal(t, "-12.5", decimalString(-12.5))
	assert.Equal(t, "0", decimalString(math.NaN()))
	assert.Equal(t, "0", decimalString(math.Inf(-1)))
}
