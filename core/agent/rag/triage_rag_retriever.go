package rag

import (
	"context"
	"sort"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Fusion weights. A chunk found by both passes is boosted above what
// either pass alone would give it.
const (
	lexicalWeight     = 0.5
	bothPassBoost     = 0.2
	defaultTopN       = 5
	defaultCandidates = 20
)

// Query is one retrieval request. Product and vehicle tags scope the
// applicability filter; empty tag sets match only unscoped documents
// and wildcards.
type Query struct {
	Text          string
	ProductTags   []string
	VehicleTags   []string
	TopN          int
	MinSimilarity float64
}

// Retriever fuses the semantic and lexical passes. A nil embedder
// degrades to lexical-only instead of failing the pipeline.
type Retriever struct {
	vectors  *VectorStore
	lexical  *LexicalIndex
	embedder out.EmbedderPort
	log      *logger.Logger
}

func NewRetriever(vectors *VectorStore, lexical *LexicalIndex, embedder out.EmbedderPort) *Retriever {
	return &Retriever{
		vectors:  vectors,
		lexical:  lexical,
		embedder: embedder,
		log:      logger.Default().WithField("component", "retriever"),
	}
}

// SemanticAvailable reports whether the semantic pass can run.
func (r *Retriever) SemanticAvailable() bool {
	return r.embedder != nil && r.vectors != nil
}

// Retrieve runs both passes, fuses by chunk id, filters by tag
// applicability and returns at most TopN results, best first.
func (r *Retriever) Retrieve(ctx context.Context, q *Query) ([]*domain.RetrievedChunk, error) {
	topN := q.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	type fused struct {
		hit      *ChunkHit
		semantic float64
		lexical  float64
		inSem    bool
		inLex    bool
	}
	merged := make(map[int64]*fused)

	if r.SemanticAvailable() {
		embedding, err := r.embedder.Embed(ctx, q.Text)
		if err != nil {
			r.log.WithError(err).Warn("embedding failed, degrading to lexical-only search")
		} else if len(embedding) > 0 {
			hits, err := r.vectors.Search(ctx, embedding, q.MinSimilarity, defaultCandidates)
			if err != nil {
				r.log.WithError(err).Warn("semantic search failed, degrading to lexical-only search")
			} else {
				for _, h := range hits {
					merged[h.ChunkID] = &fused{hit: h, semantic: h.Score, inSem: true}
				}
			}
		}
	}

	lexHits, err := r.lexical.Search(ctx, q.Text, defaultCandidates)
	if err != nil {
		if len(merged) == 0 {
			return nil, err
		}
		r.log.WithError(err).Warn("lexical search failed, using semantic results only")
	}
	for _, h := range lexHits {
		if f, ok := merged[h.ChunkID]; ok {
			f.lexical = h.Score
			f.inLex = true
		} else {
			merged[h.ChunkID] = &fused{hit: h, lexical: h.Score, inLex: true}
		}
	}

	results := make([]*domain.RetrievedChunk, 0, len(merged))
	for _, f := range merged {
		if !tagsApplicable(f.hit, q.ProductTags, q.VehicleTags) {
			continue
		}
		results = append(results, &domain.RetrievedChunk{
			Chunk: &domain.KBChunk{
				ID:       f.hit.ChunkID,
				DocID:    f.hit.DocID,
				Seq:      f.hit.Seq,
				Text:     f.hit.Text,
				Embedded: f.inSem,
			},
			DocTitle:   f.hit.DocTitle,
			Score:      FuseScores(f.semantic, f.lexical, f.inSem, f.inLex),
			Similarity: f.semantic,
			Semantic:   f.inSem,
			Lexical:    f.inLex,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// FuseScores combines the two pass signals. Semantic similarity
// dominates; a lexical-only hit scores at half weight; appearing in
// both passes earns a fixed boost.
func FuseScores(semantic, lexical float64, inSem, inLex bool) float64 {
	switch {
	case inSem && inLex:
		return semantic + lexicalWeight*lexical + bothPassBoost
	case inSem:
		return semantic
	default:
		return lexicalWeight * lexical
	}
}

// tagsApplicable implements the applicability filter: a document with
// no scoping tags applies to all; otherwise at least one declared tag
// must intersect the query tags, or the document carries the "all"
// wildcard.
func tagsApplicable(hit *ChunkHit, productTags, vehicleTags []string) bool {
	if len(hit.ProductTags) == 0 && len(hit.VehicleTags) == 0 {
		return true
	}
	if containsWildcard(hit.ProductTags) || containsWildcard(hit.VehicleTags) {
		return true
	}
	if len(hit.ProductTags) > 0 && intersects(hit.ProductTags, productTags) {
		return true
	}
	if len(hit.VehicleTags) > 0 && intersects(hit.VehicleTags, vehicleTags) {
		return true
	}
	return false
}

func containsWildcard(tags []string) bool {
	for _, t := range tags {
		if t == "all" || t == "*" {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}
