package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"triage_server/pkg/resilience"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	MaxWorkers       int
	QueueSize        int
	BatchSize        int
	WorkerChanSize   int
	JobTimeout       time.Duration
	JobTimeoutByType map[JobType]time.Duration
	MaxRetries       int
	RatePerSecond    int
}

// DefaultPoolConfig returns default pool configuration. Polling and
// triage cycles dominate the latency budget; both call external
// collaborators, so their timeouts are generous.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxWorkers:     8,
		QueueSize:      500,
		BatchSize:      5,
		WorkerChanSize: 50,
		JobTimeout:     30 * time.Second,
		MaxRetries:     3,
		RatePerSecond:  50,
		JobTimeoutByType: map[JobType]time.Duration{
			JobMailboxPoll:  2 * time.Minute,
			JobTriageCycle:  90 * time.Second,
			JobKBIndex:      2 * time.Minute,
			JobLearningMine: 90 * time.Second,
			JobCRMSync:      30 * time.Second,
		},
	}
}

// Pool runs job messages over a bounded worker group. A separate,
// smaller group serves priority messages so a backlog of polls cannot
// starve operator-triggered work.
type Pool struct {
	handler *Handler
	config  *PoolConfig
	backoff *resilience.BackoffPolicy

	pool         *pool.WorkerGroup[*Message]
	priorityPool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics PoolMetrics
	log     zerolog.Logger

	limiter *rateLimiter

	dlq   chan *Message
	dlqWg sync.WaitGroup

	started bool
	mu      sync.Mutex
}

// PoolMetrics holds pool counters, read atomically.
type PoolMetrics struct {
	JobsProcessed int64
	JobsFailed    int64
	JobsDropped   int64
	JobsRetried   int64
	QueueSize     int32
}

type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		config:  config,
		backoff: resilience.DefaultBackoffPolicy(),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With().Str("component", "worker_pool").Logger(),
		limiter: newRateLimiter(config.RatePerSecond),
		dlq:     make(chan *Message, 100),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}

	p.pool = pool.New[*Message](p.config.MaxWorkers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	p.priorityPool = pool.New[*Message](p.config.MaxWorkers/4+1, &messageWorker{pool: p}).
		WithBatchSize(1).
		WithWorkerChanSize(p.config.WorkerChanSize/2 + 1).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start main pool")
		return
	}
	if err := p.priorityPool.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start priority pool")
		return
	}

	p.started = true

	p.dlqWg.Add(1)
	go p.dlqProcessor()
	go p.metricsReporter()

	p.log.Info().
		Int("max_workers", p.config.MaxWorkers).
		Int("queue_size", p.config.QueueSize).
		Msg("worker pool started")
}

// Stop gracefully stops the worker pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := p.pool.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing main pool")
	}
	if err := p.priorityPool.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing priority pool")
	}

	p.cancel()
	close(p.dlq)
	p.dlqWg.Wait()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit queues a job. Returns false when the pool is stopped or the
// rate limit dropped the message.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	started := p.started
	main, priority := p.pool, p.priorityPool
	p.mu.Unlock()

	if !started {
		return false
	}

	if !p.limiter.allow() {
		atomic.AddInt64(&p.metrics.JobsDropped, 1)
		p.log.Warn().Str("job_id", msg.ID).Str("job_type", msg.Type).
			Msg("job dropped by rate limiter")
		return false
	}

	if msg.IsPriority() {
		priority.Submit(msg)
	} else {
		main.Submit(msg)
	}
	atomic.AddInt32(&p.metrics.QueueSize, 1)
	return true
}

func (p *Pool) jobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	defer atomic.AddInt32(&p.metrics.QueueSize, -1)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout(msg.Type))
	defer cancel()

	err := p.handler.Process(jobCtx, msg)
	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		return nil
	}

	p.log.Error().Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if msg.Retries < p.config.MaxRetries {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)
		time.AfterFunc(p.backoff.Delay(msg.Retries), func() {
			p.Submit(msg)
		})
		return err
	}

	atomic.AddInt64(&p.metrics.JobsFailed, 1)
	select {
	case p.dlq <- msg:
	default:
		p.log.Error().Str("job_id", msg.ID).Msg("DLQ full, job lost")
	}
	return err
}

func (p *Pool) dlqProcessor() {
	defer p.dlqWg.Done()
	for msg := range p.dlq {
		// Permanent failures are logged with the payload so an operator
		// can replay them by hand.
		p.log.Error().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Int("retries", msg.Retries).
			Interface("payload", msg.Payload).
			Msg("job permanently failed")
	}
}

func (p *Pool) metricsReporter() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.log.Info().
				Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
				Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
				Int64("dropped", atomic.LoadInt64(&p.metrics.JobsDropped)).
				Int64("retried", atomic.LoadInt64(&p.metrics.JobsRetried)).
				Int32("queue_size", atomic.LoadInt32(&p.metrics.QueueSize)).
				Msg("worker pool metrics")
		}
	}
}

// GetMetrics returns a snapshot of the pool counters.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed: atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:    atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsDropped:   atomic.LoadInt64(&p.metrics.JobsDropped),
		JobsRetried:   atomic.LoadInt64(&p.metrics.JobsRetried),
		QueueSize:     atomic.LoadInt32(&p.metrics.QueueSize),
	}
}

// rateLimiter is a coarse token bucket refilled once per second.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	lastRefill time.Time
}

func newRateLimiter(perSecond int) *rateLimiter {
	return &rateLimiter{tokens: perSecond, maxTokens: perSecond, lastRefill: time.Now()}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(r.lastRefill); elapsed >= time.Second {
		r.tokens = r.maxTokens
		r.lastRefill = now
	}
	if r.tokens <= 0 {
		return false
	}
	r.tokens--
	return true
}
