package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/utils"
)

const (
	ArchiveStream = "assistant:exchanges"
	ArchiveGroup  = "archive-workers"
)

// ArchiveWorkerPool moves finished exchanges from the Redis stream into the
// Postgres conversation archive.
type ArchiveWorkerPool struct {
	Redis         *redis.Client
	Conversations services.ConversationService
	NumWorkers    int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *ArchiveWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Conversations == nil {
		return errors.New("ArchiveWorkerPool missing dependency: Redis/Conversations must be set")
	}
	if p.Stream == "" {
		p.Stream = ArchiveStream
	}
	if p.Group == "" {
		p.Group = ArchiveGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *ArchiveWorkerPool) runConsumer(ctx context.Context, consumer string) {
	// "0" replays what this consumer read but never acked, then ">" takes new entries.
	cursor := "0"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, cursor},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		n := 0
		for _, stream := range res {
			for _, msg := range stream.Messages {
				n++
				if p.handle(ctx, msg.ID, msg.Values) {
					_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
				}
			}
		}
		if cursor == "0" && n == 0 {
			cursor = ">"
		}
	}
}

// handle reports whether the entry is done with: archived, or unreadable.
func (p *ArchiveWorkerPool) handle(ctx context.Context, id string, values map[string]any) bool {
	log := p.Logger.WithField("redis_id", id)

	raw, _ := values["payload"].(string)
	if raw == "" {
		log.Warn("archive entry without payload")
		return true
	}

	var rec models.ExchangeRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.WithError(err).Warn("archive entry is not valid json")
		return true
	}
	log = log.WithField("session_id", rec.SessionID)

	if _, err := p.Conversations.Archive(ctx, rec); err != nil {
		if utils.IsCode(err, utils.CodeInvalidArgument) {
			log.WithError(err).Warn("dropping incomplete exchange")
			return true
		}
		log.WithError(err).Error("archive exchange failed")
		return false
	}
	return true
}

// RedisArchivePublisher appends exchanges to the archive stream.
type RedisArchivePublisher struct {
	Redis  *redis.Client
	Stream string
	MaxLen int64
}

func (p *RedisArchivePublisher) Publish(ctx context.Context, rec models.ExchangeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	stream := p.Stream
	if stream == "" {
		stream = ArchiveStream
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"session_id": rec.SessionID,
			"payload":    string(b),
		},
	}
	if p.MaxLen > 0 {
		args.MaxLen = p.MaxLen
		args.Approx = true
	}
	return p.Redis.XAdd(ctx, args).Err()
}
