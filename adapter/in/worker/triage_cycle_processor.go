package worker

import (
	"context"
	"time"

	"triage_server/core/port/out"
	"triage_server/core/service/triage"
	"triage_server/pkg/logger"

	"github.com/google/uuid"
)

// TriageProcessor runs one triage cycle per job. Cycle-in-flight
// rejections surface as errors so the pool's retry backoff becomes the
// re-queue for messages that arrived mid-cycle.
type TriageProcessor struct {
	pipeline *triage.Pipeline
	producer out.JobProducer
	log      *logger.Logger
}

func NewTriageProcessor(pipeline *triage.Pipeline, producer out.JobProducer) *TriageProcessor {
	return &TriageProcessor{
		pipeline: pipeline,
		producer: producer,
		log:      logger.Default().WithField("component", "triage_processor"),
	}
}

func (p *TriageProcessor) ProcessCycle(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[TriageCyclePayload](msg)
	if err != nil {
		return err
	}

	result, err := p.pipeline.RunCycle(ctx, payload.ThreadID, payload.MessageID)
	if err != nil {
		return err
	}
	if result.Skipped {
		return nil
	}

	switch {
	case result.Sent:
		p.queueCRMSync(ctx, payload.ThreadID, "auto_replied")
	case result.Escalated:
		p.queueCRMSync(ctx, payload.ThreadID, "escalated")
	}
	return nil
}

func (p *TriageProcessor) queueCRMSync(ctx context.Context, threadID int64, outcome string) {
	job := &out.CRMSyncJob{
		JobID:    uuid.NewString(),
		ThreadID: threadID,
		Outcome:  outcome,
		QueuedAt: time.Now().UTC(),
	}
	if err := p.producer.PublishCRMSync(ctx, job); err != nil {
		p.log.WithThread(threadID).WithError(err).Warn("failed to queue crm sync")
	}
}
