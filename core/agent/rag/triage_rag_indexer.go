package rag

import (
	"context"

	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Indexer embeds chunks that are missing a vector. It is driven by
// index jobs after a document is published or its body changes.
type Indexer struct {
	chunks   out.KBChunkRepository
	vectors  *VectorStore
	embedder out.EmbedderPort
	log      *logger.Logger
}

func NewIndexer(chunks out.KBChunkRepository, vectors *VectorStore, embedder out.EmbedderPort) *Indexer {
	return &Indexer{
		chunks:   chunks,
		vectors:  vectors,
		embedder: embedder,
		log:      logger.Default().WithField("component", "indexer"),
	}
}

// IndexDoc embeds every unembedded chunk of one document. A nil
// embedder makes this a no-op; retrieval stays lexical-only.
func (i *Indexer) IndexDoc(ctx context.Context, docID int64) (int, error) {
	if i.embedder == nil {
		i.log.Warn("no embedder configured, skipping index for doc %d", docID)
		return 0, nil
	}

	chunks, err := i.chunks.ListByDoc(ctx, docID)
	if err != nil {
		return 0, err
	}

	var texts []string
	var ids []int64
	for _, c := range chunks {
		if c.Embedded {
			continue
		}
		texts = append(texts, c.Text)
		ids = append(ids, c.ID)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	embeddings, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for n, emb := range embeddings {
		if n >= len(ids) || len(emb) == 0 {
			continue
		}
		if err := i.vectors.StoreEmbedding(ctx, ids[n], emb); err != nil {
			return indexed, err
		}
		indexed++
	}

	i.log.Info("indexed %d chunks for doc %d", indexed, docID)
	return indexed, nil
}

// IndexPending embeds a batch of unembedded chunks across documents.
func (i *Indexer) IndexPending(ctx context.Context, limit int) (int, error) {
	if i.embedder == nil {
		return 0, nil
	}

	chunks, err := i.chunks.ListUnembedded(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Text
	}

	embeddings, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for n, emb := range embeddings {
		if n >= len(chunks) || len(emb) == 0 {
			continue
		}
		if err := i.vectors.StoreEmbedding(ctx, chunks[n].ID, emb); err != nil {
			return indexed, err
		}
		indexed++
	}

	return indexed, nil
}
