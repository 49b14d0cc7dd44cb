// Package messaging provides the Redis Streams job producer.
package messaging

import (
	"context"
	"fmt"

	"triage_server/core/port/out"
	"triage_server/internal/stream"
)

// RedisProducer implements out.JobProducer over Redis Streams.
type RedisProducer struct {
	stream *stream.RedisStream
}

func NewRedisProducer(s *stream.RedisStream) *RedisProducer {
	return &RedisProducer{stream: s}
}

func (p *RedisProducer) PublishTriage(ctx context.Context, job *out.TriageJob) error {
	return p.publish(ctx, stream.StreamTriage, job)
}

func (p *RedisProducer) PublishPoll(ctx context.Context, job *out.PollJob) error {
	return p.publish(ctx, stream.StreamPoll, job)
}

func (p *RedisProducer) PublishIndex(ctx context.Context, job *out.IndexJob) error {
	return p.publish(ctx, stream.StreamIndex, job)
}

func (p *RedisProducer) PublishLearning(ctx context.Context, job *out.LearningJob) error {
	return p.publish(ctx, stream.StreamLearning, job)
}

func (p *RedisProducer) PublishCRMSync(ctx context.Context, job *out.CRMSyncJob) error {
	return p.publish(ctx, stream.StreamCRM, job)
}

func (p *RedisProducer) publish(ctx context.Context, streamName string, job any) error {
	if _, err := p.stream.Publish(ctx, streamName, job); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", streamName, err)
	}
	return nil
}

var _ out.JobProducer = (*RedisProducer)(nil)
