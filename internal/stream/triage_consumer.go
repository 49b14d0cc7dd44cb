package stream

import (
	"context"
	"fmt"

	"triage_server/adapter/in/worker"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
)

// envelope is the wire shape every producer writes.
type envelope struct {
	JobID string `json:"job_id"`
}

// Consumer bridges the job streams into the worker pool. An entry is
// acked once the pool accepts it; processing failures are handled by
// the pool's retry and dead-letter path.
type Consumer struct {
	stream *RedisStream
	pool   *worker.Pool
	name   string
	log    *logger.Logger
}

func NewConsumer(stream *RedisStream, pool *worker.Pool, name string) *Consumer {
	return &Consumer{
		stream: stream,
		pool:   pool,
		name:   name,
		log:    logger.Default().WithField("component", "stream_consumer"),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	jobTypes := map[string]worker.JobType{
		StreamPoll:     worker.JobMailboxPoll,
		StreamTriage:   worker.JobTriageCycle,
		StreamIndex:    worker.JobKBIndex,
		StreamLearning: worker.JobLearningMine,
		StreamCRM:      worker.JobCRMSync,
	}

	for _, s := range Streams() {
		if err := c.stream.CreateGroup(ctx, s); err != nil {
			c.log.WithError(err).Error("failed to create group for %s", s)
		}
	}

	for stream, jobType := range jobTypes {
		go c.consume(ctx, stream, jobType)
	}
}

func (c *Consumer) consume(ctx context.Context, stream string, jobType worker.JobType) {
	c.stream.Consume(ctx, stream, c.name, func(id string, data []byte) error {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.WithError(err).Error("malformed job on %s, dropping", stream)
			return nil
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil
		}

		msg := worker.NewMessage(jobType, payload)
		if env.JobID != "" {
			msg.ID = env.JobID
		}
		if jobType == worker.JobTriageCycle {
			msg.Priority = worker.PriorityHigh
		}

		if !c.pool.Submit(msg) {
			return fmt.Errorf("pool rejected job %s", msg.ID)
		}
		return nil
	})
}
