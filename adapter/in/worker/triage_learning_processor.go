package worker

import (
	"context"

	"triage_server/core/service/learning"
	"triage_server/pkg/logger"
)

// LearningProcessor mines a closed thread into a proposal.
type LearningProcessor struct {
	generator *learning.Generator
	log       *logger.Logger
}

func NewLearningProcessor(generator *learning.Generator) *LearningProcessor {
	return &LearningProcessor{
		generator: generator,
		log:       logger.Default().WithField("component", "learning_processor"),
	}
}

func (p *LearningProcessor) ProcessMine(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[LearningMinePayload](msg)
	if err != nil {
		return err
	}

	proposal, err := p.generator.MineThread(ctx, payload.ThreadID)
	if err != nil {
		return err
	}
	if proposal == nil {
		p.log.WithThread(payload.ThreadID).Debug("nothing learned from thread")
		return nil
	}
	p.log.WithThread(payload.ThreadID).Info("mined proposal %d (%s)", proposal.ID, proposal.Recommend)
	return nil
}
