// Package redisfeed fans trade reports out over Redis for dashboards and other consumers.
package redisfeed

import (
	"context"
	"fmt"

	"lagarb/internal/domain"
	"lagarb/internal/infra"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// recentLen caps the rolling list of recent reports.
const recentLen = 100

type Publisher struct {
	rdb       *redis.Client
	channel   string
	lastKey   string
	recentKey string
}

func NewPublisher(cfg *infra.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	return &Publisher{
		rdb:       rdb,
		channel:   cfg.Redis.Channel,
		lastKey:   cfg.Redis.Channel + ":last",
		recentKey: cfg.Redis.Channel + ":recent",
	}
}

// Ping checks the server is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Report publishes rep on the channel and keeps it as the latest and in the recent list.
func (p *Publisher) Report(ctx context.Context, rep domain.TradeReport) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode trade report: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, p.channel, b)
	pipe.Set(ctx, p.lastKey, b, 0)
	pipe.LPush(ctx, p.recentKey, b)
	pipe.LTrim(ctx, p.recentKey, 0, recentLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}
