// Package stream wraps Redis Streams as the job transport between the
// API process and the worker.
package stream

import (
	"context"
	"time"

	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	StreamPoll     = "triage:poll"
	StreamTriage   = "triage:cycle"
	StreamIndex    = "triage:index"
	StreamLearning = "triage:learning"
	StreamCRM      = "triage:crm"
)

// Streams lists every job stream the worker consumes.
func Streams() []string {
	return []string{StreamPoll, StreamTriage, StreamIndex, StreamLearning, StreamCRM}
}

type RedisStream struct {
	client *redis.Client
	group  string
}

func NewRedisStream(client *redis.Client, group string) *RedisStream {
	return &RedisStream{
		client: client,
		group:  group,
	}
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Consume reads the group until ctx is cancelled. Entries are acked
// only after the handler returns nil, so a crashed worker leaves them
// pending for redelivery.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler func(id string, data []byte) error) {
	log := logger.Default().WithField("stream", stream)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				log.WithError(err).Error("stream read error")
			}
			continue
		}

		for _, result := range streams {
			for _, msg := range result.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					s.client.XAck(ctx, result.Stream, s.group, msg.ID)
					continue
				}

				if err := handler(msg.ID, []byte(data)); err != nil {
					log.WithError(err).Warn("handler error for %s", msg.ID)
					continue
				}

				s.client.XAck(ctx, result.Stream, s.group, msg.ID)
			}
		}
	}
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
