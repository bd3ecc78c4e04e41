package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
	"triarb/internal/infrastructure/storage"
)

// Publisher 把机会写入 Redis Stream 并在频道上广播
type Publisher struct {
	rdb    *redis.Client
	stream string
	chann  string
	maxLen int64
}

func New(rdb *redis.Client, stream, channel string, maxLen int64) *Publisher {
	if strings.TrimSpace(stream) == "" {
		stream = "triarb:opportunities"
	}
	if strings.TrimSpace(channel) == "" {
		channel = stream + ":live"
	}
	return &Publisher{rdb: rdb, stream: stream, chann: channel, maxLen: maxLen}
}

func (p *Publisher) Name() string { return "redis" }

func (p *Publisher) Publish(ctx context.Context, opp *model.Opportunity) error {
	payload, err := storage.EncodeOpportunity(opp)
	if err != nil {
		return err
	}

	// 1) Stream: XADD <stream> MAXLEN ~ n * ...
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":             opp.ID,
			"ts_ms":          opp.DetectedAt.UnixMilli(),
			"path":           opp.Cycle.Path(),
			"profit_percent": opp.ProfitPercent.String(),
			"payload":        payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return p.rdb.Publish(ctx, p.chann, payload).Err()
}

var _ port.OpportunitySink = (*Publisher)(nil)
