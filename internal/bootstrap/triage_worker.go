package bootstrap

import (
	"context"
	"os"
	"time"

	"triage_server/adapter/in/worker"
	"triage_server/config"
	"triage_server/internal/stream"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker bundles the job pool, the stream consumer and the scheduler
// into one start/stop unit.
type Worker struct {
	pool      *worker.Pool
	consumer  *stream.Consumer
	scheduler *worker.Scheduler

	cancel context.CancelFunc
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "triage-worker",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	// The API tolerates missing collaborators; the worker exists to
	// poll and triage, so it refuses to start without them.
	if deps.MailProvider == nil {
		cleanup()
		return nil, nil, apperr.ConfigError("worker mode requires GOOGLE_CREDENTIALS_FILE")
	}
	if deps.LLMClient == nil {
		cleanup()
		return nil, nil, apperr.ConfigError("worker mode requires OPENAI_API_KEY")
	}

	pollProcessor := worker.NewPollProcessor(
		deps.MailProvider,
		deps.SyncStateRepo,
		deps.NewNormalizerFactory(),
		deps.Matcher,
		deps.Producer,
	)
	triageProcessor := worker.NewTriageProcessor(deps.Pipeline, deps.Producer)
	indexProcessor := worker.NewIndexProcessor(deps.Indexer)
	learningProcessor := worker.NewLearningProcessor(deps.Generator)
	crmProcessor := worker.NewCRMSyncProcessor(deps.CRM, deps.ThreadRepo)

	handler := worker.NewHandler(
		pollProcessor,
		triageProcessor,
		indexProcessor,
		learningProcessor,
		crmProcessor,
	)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.MaxWorkers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.QueueSize = cfg.WorkerQueueSize
	}
	if cfg.ConsumerMaxRetries > 0 {
		poolConfig.MaxRetries = cfg.ConsumerMaxRetries
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Timestamp().
		Str("worker_id", cfg.WorkerID).
		Logger()
	pool := worker.NewPool(handler, poolConfig, zlog)

	consumer := stream.NewConsumer(deps.Stream, pool, cfg.WorkerID)

	schedulerConfig := worker.DefaultSchedulerConfig(cfg.PollMailboxes)
	if cfg.PollIntervalSec > 0 {
		schedulerConfig.PollInterval = time.Duration(cfg.PollIntervalSec) * time.Second
	}
	if cfg.LearningIntervalMin > 0 {
		schedulerConfig.LearningInterval = time.Duration(cfg.LearningIntervalMin) * time.Minute
	}
	scheduler := worker.NewScheduler(schedulerConfig, deps.Producer, deps.Generator, deps.Indexer)

	return &Worker{
		pool:      pool,
		consumer:  consumer,
		scheduler: scheduler,
	}, cleanup, nil
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.pool.Start()
	w.consumer.Start(ctx)
	w.scheduler.Start()

	<-ctx.Done()
}

func (w *Worker) Stop() {
	w.scheduler.Stop()
	if w.cancel != nil {
		w.cancel()
	}
	w.pool.Stop()
}
