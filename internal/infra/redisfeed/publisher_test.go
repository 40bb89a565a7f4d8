package redisfeed

import (
	"context"
	"testing"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &infra.Config{}
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Channel = "lagarb:trades"

	p := NewPublisher(cfg)
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func sampleReport(pnl float64) domain.TradeReport {
	return domain.TradeReport{
		Signal: domain.TradeSignal{Direction: domain.DirectionBuy, LimitPrice: 100, OracleReference: 106},
		Size:   0.01,
		Result: domain.ExecutionResult{Outcome: domain.OutcomeFilled, FilledSize: 0.01, AvgPrice: 100},
		PnL:    pnl,
	}
}

func TestPublisher_Report(t *testing.T) {
	p, mr := newTestPublisher(t)
	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(ctx, "lagarb:trades")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Report(ctx, sampleReport(0.06)))

	select {
	case msg := <-sub.Channel():
		var got struct {
			Signal struct {
				Direction string `json:"direction"`
			} `json:"signal"`
			Result struct {
				Outcome string `json:"outcome"`
			} `json:"result"`
			PnL float64 `json:"pnl"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "BUY", got.Signal.Direction)
		assert.Equal(t, string(domain.OutcomeFilled), got.Result.Outcome)
		assert.InDelta(t, 0.06, got.PnL, 1e-12)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	last, err := mr.Get("lagarb:trades:last")
	require.NoError(t, err)
	assert.Contains(t, last, `"pnl":0.06`)
}

func TestPublisher_RecentIsCapped(t *testing.T) {
	p, mr := newTestPublisher(t)
	ctx := context.Background()

	for i := 0; i < recentLen+5; i++ {
		require.NoError(t, p.Report(ctx, sampleReport(float64(i))))
	}

	items, err := mr.List("lagarb:trades:recent")
	require.NoError(t, err)
	assert.Len(t, items, recentLen)
	assert.Contains(t, items[0], `"pnl":104`)
}

func TestPublisher_ServerDown(t *testing.T) {
	p, mr := newTestPublisher(t)
	mr.Close()

	assert.Error(t, p.Report(context.Background(), sampleReport(1)))
}
