package worker

import (
	"context"
	"time"

	"triage_server/core/agent/rag"
	"triage_server/core/port/out"
	"triage_server/core/service/learning"
	"triage_server/pkg/logger"

	"github.com/google/uuid"
)

// SchedulerConfig sets the periodic work cadence.
type SchedulerConfig struct {
	Mailboxes        []string
	PollInterval     time.Duration
	LearningInterval time.Duration
	LearningWindow   time.Duration
	IndexInterval    time.Duration
}

func DefaultSchedulerConfig(mailboxes []string) *SchedulerConfig {
	return &SchedulerConfig{
		Mailboxes:        mailboxes,
		PollInterval:     time.Minute,
		LearningInterval: time.Hour,
		LearningWindow:   24 * time.Hour,
		IndexInterval:    5 * time.Minute,
	}
}

// Scheduler drives the periodic work: mailbox polls through the job
// stream, plus in-process sweeps for learning and pending embeddings.
type Scheduler struct {
	config    *SchedulerConfig
	producer  out.JobProducer
	generator *learning.Generator
	indexer   *rag.Indexer
	log       *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	config *SchedulerConfig,
	producer out.JobProducer,
	generator *learning.Generator,
	indexer *rag.Indexer,
) *Scheduler {
	return &Scheduler{
		config:    config,
		producer:  producer,
		generator: generator,
		indexer:   indexer,
		log:       logger.Default().WithField("component", "scheduler"),
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.log.Info("scheduler started: %d mailboxes, poll every %s",
		len(s.config.Mailboxes), s.config.PollInterval)
}

func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	poll := time.NewTicker(s.config.PollInterval)
	learn := time.NewTicker(s.config.LearningInterval)
	index := time.NewTicker(s.config.IndexInterval)
	defer poll.Stop()
	defer learn.Stop()
	defer index.Stop()

	// Kick the first poll immediately instead of waiting a full tick.
	s.queuePolls(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			s.queuePolls(ctx)
		case <-learn.C:
			s.sweepLearning(ctx)
		case <-index.C:
			s.sweepIndex(ctx)
		}
	}
}

func (s *Scheduler) queuePolls(ctx context.Context) {
	for _, mailbox := range s.config.Mailboxes {
		job := &out.PollJob{
			JobID:    uuid.NewString(),
			Mailbox:  mailbox,
			QueuedAt: time.Now().UTC(),
		}
		if err := s.producer.PublishPoll(ctx, job); err != nil {
			s.log.WithError(err).Error("failed to queue poll for %s", mailbox)
		}
	}
}

func (s *Scheduler) sweepLearning(ctx context.Context) {
	since := time.Now().UTC().Add(-s.config.LearningWindow)
	mined, err := s.generator.MineClosedSince(ctx, since, 50)
	if err != nil {
		s.log.WithError(err).Error("learning sweep failed")
		return
	}
	if mined > 0 {
		s.log.Info("learning sweep mined %d proposals", mined)
	}
}

func (s *Scheduler) sweepIndex(ctx context.Context) {
	embedded, err := s.indexer.IndexPending(ctx, 200)
	if err != nil {
		s.log.WithError(err).Error("index sweep failed")
		return
	}
	if embedded > 0 {
		s.log.Debug("index sweep embedded %d chunks", embedded)
	}
}
