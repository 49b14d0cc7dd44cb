package worker

import (
	"context"

	"triage_server/core/agent/rag"
	"triage_server/pkg/logger"
)

// IndexProcessor embeds the pending chunks of published documents.
type IndexProcessor struct {
	indexer *rag.Indexer
	log     *logger.Logger
}

func NewIndexProcessor(indexer *rag.Indexer) *IndexProcessor {
	return &IndexProcessor{
		indexer: indexer,
		log:     logger.Default().WithField("component", "index_processor"),
	}
}

func (p *IndexProcessor) ProcessIndex(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[KBIndexPayload](msg)
	if err != nil {
		return err
	}

	embedded, err := p.indexer.IndexDoc(ctx, payload.DocID)
	if err != nil {
		return err
	}
	p.log.Debug("indexed doc %d: %d chunks embedded", payload.DocID, embedded)
	return nil
}
