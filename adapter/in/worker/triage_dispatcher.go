package worker

import (
	"context"

	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
)

// Handler routes pool messages to the processor for their job type.
type Handler struct {
	pollProcessor     *PollProcessor
	triageProcessor   *TriageProcessor
	indexProcessor    *IndexProcessor
	learningProcessor *LearningProcessor
	crmProcessor      *CRMSyncProcessor
}

func NewHandler(
	pollProcessor *PollProcessor,
	triageProcessor *TriageProcessor,
	indexProcessor *IndexProcessor,
	learningProcessor *LearningProcessor,
	crmProcessor *CRMSyncProcessor,
) *Handler {
	return &Handler{
		pollProcessor:     pollProcessor,
		triageProcessor:   triageProcessor,
		indexProcessor:    indexProcessor,
		learningProcessor: learningProcessor,
		crmProcessor:      crmProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("processing job %s (%s)", msg.ID, msg.Type)

	switch msg.Type {
	case JobMailboxPoll:
		return h.pollProcessor.ProcessPoll(ctx, msg)
	case JobTriageCycle:
		return h.triageProcessor.ProcessCycle(ctx, msg)
	case JobKBIndex:
		return h.indexProcessor.ProcessIndex(ctx, msg)
	case JobLearningMine:
		return h.learningProcessor.ProcessMine(ctx, msg)
	case JobCRMSync:
		return h.crmProcessor.ProcessSync(ctx, msg)
	default:
		logger.Warn("unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
