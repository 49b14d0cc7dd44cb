package worker

import (
	"context"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/thread"
	"triage_server/core/service/vendor"
	"triage_server/pkg/logger"
	"triage_server/pkg/resilience"

	"github.com/google/uuid"
)

// maxPollFailures is the consecutive failure count at which a mailbox
// is suspended until an operator resets it.
const maxPollFailures = 5

// NormalizerFactory builds an ingest normalizer bound to one mailbox.
type NormalizerFactory func(mailbox string) *thread.Normalizer

// PollProcessor runs one polling pass over a mailbox: fetch the
// provider delta since the stored cursor, ingest each message, try the
// vendor matcher, and queue a triage cycle for what remains.
type PollProcessor struct {
	provider    out.MailProviderPort
	syncStates  out.SyncStateRepository
	normalizers NormalizerFactory
	matcher     *vendor.Matcher
	producer    out.JobProducer
	log         *logger.Logger

	mu      sync.Mutex
	latches map[string]*resilience.FailureLatch
}

func NewPollProcessor(
	provider out.MailProviderPort,
	syncStates out.SyncStateRepository,
	normalizers NormalizerFactory,
	matcher *vendor.Matcher,
	producer out.JobProducer,
) *PollProcessor {
	return &PollProcessor{
		provider:    provider,
		syncStates:  syncStates,
		normalizers: normalizers,
		matcher:     matcher,
		producer:    producer,
		latches:     make(map[string]*resilience.FailureLatch),
		log:         logger.Default().WithField("component", "poll_processor"),
	}
}

func (p *PollProcessor) ProcessPoll(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[MailboxPollPayload](msg)
	if err != nil {
		return err
	}
	mailbox := payload.Mailbox

	state, err := p.syncStates.GetOrCreate(ctx, mailbox)
	if err != nil {
		return err
	}
	if state.Suspended {
		p.log.Warn("mailbox %s suspended, skipping poll", mailbox)
		return nil
	}

	latch := p.latch(mailbox)
	if !latch.Allow() {
		// The sync state row is authoritative. A healthy row with an
		// open latch means the mailbox was reset in another process.
		latch.Reset()
	}

	delta, err := p.provider.ListDelta(ctx, mailbox, state.HistoryCursor)
	if err != nil {
		latch.RecordFailure()
		if _, recErr := p.syncStates.RecordFailure(ctx, mailbox, err.Error(), maxPollFailures); recErr != nil {
			p.log.WithError(recErr).Error("failed to record poll failure for %s", mailbox)
		}
		return err
	}

	normalizer := p.normalizers(mailbox)
	for _, raw := range delta.Messages {
		p.ingest(ctx, normalizer, raw)
	}

	if delta.NextCursor > state.HistoryCursor {
		if err := p.syncStates.AdvanceCursor(ctx, mailbox, delta.NextCursor, time.Now().UTC()); err != nil {
			p.log.WithError(err).Error("failed to advance cursor for %s", mailbox)
		}
	}
	if err := p.syncStates.RecordSuccess(ctx, mailbox); err != nil {
		p.log.WithError(err).Warn("failed to record poll success for %s", mailbox)
	}
	latch.RecordSuccess()

	return nil
}

// ingest handles one raw message. Per-message failures are logged and
// skipped so a single malformed message cannot stall the mailbox.
func (p *PollProcessor) ingest(ctx context.Context, normalizer *thread.Normalizer, raw *domain.InboundMessage) {
	result, err := normalizer.Ingest(ctx, raw)
	if err != nil {
		p.log.WithError(err).Error("ingest failed for provider message %s", raw.ProviderID)
		return
	}
	if result.Duplicate || result.Message.Direction != domain.DirectionInbound {
		return
	}

	match, err := p.matcher.Match(ctx, result.Message)
	if err != nil {
		p.log.WithThread(result.Thread.ID).WithError(err).Warn("vendor match failed, falling through to triage")
	}
	if match != nil {
		return
	}

	job := &out.TriageJob{
		JobID:     uuid.NewString(),
		ThreadID:  result.Thread.ID,
		MessageID: result.Message.ID,
		QueuedAt:  time.Now().UTC(),
	}
	if err := p.producer.PublishTriage(ctx, job); err != nil {
		p.log.WithThread(result.Thread.ID).WithError(err).Error("failed to queue triage cycle")
	}
}

// ResetLatch closes the process-local latch for a mailbox. Called by
// the admin mailbox reset alongside the persistent state reset.
func (p *PollProcessor) ResetLatch(mailbox string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if latch, ok := p.latches[mailbox]; ok {
		latch.Reset()
	}
}

func (p *PollProcessor) latch(mailbox string) *resilience.FailureLatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	latch, ok := p.latches[mailbox]
	if !ok {
		latch = resilience.NewFailureLatch(mailbox, maxPollFailures)
		p.latches[mailbox] = latch
	}
	return latch
}
