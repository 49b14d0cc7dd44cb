// Package rag implements hybrid retrieval over the chunked knowledge
// base: a semantic pass over pgvector embeddings, a lexical keyword
// pass, and score fusion with tag applicability filtering.
package rag

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type VectorStore struct {
	db *pgxpool.Pool
}

func NewVectorStore(db *pgxpool.Pool) *VectorStore {
	return &VectorStore{db: db}
}

// ChunkHit is one retrieval candidate with the document tags needed
// for the applicability filter.
type ChunkHit struct {
	ChunkID     int64
	DocID       int64
	Seq         int
	Text        string
	DocTitle    string
	Score       float64
	IntentTags  []string
	ProductTags []string
	VehicleTags []string
}

// Search returns published chunks above the similarity floor, best
// first. Only published documents are retrievable.
func (s *VectorStore) Search(ctx context.Context, embedding []float32, minScore float64, limit int) ([]*ChunkHit, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT c.id, c.doc_id, c.seq, c.text, d.title,
			1 - (c.embedding <=> $1) AS score,
			d.intent_tags, d.product_tags, d.vehicle_tags
		FROM kb_chunks c
		JOIN kb_docs d ON d.id = c.doc_id
		WHERE d.status = 'published'
		AND c.embedding IS NOT NULL
	`

	if minScore > 0 {
		query += ` AND 1 - (c.embedding <=> $1) >= ` + strconv.FormatFloat(minScore, 'f', 2, 64)
	}

	query += ` ORDER BY c.embedding <=> $1 LIMIT $2`

	rows, err := s.db.Query(ctx, query, pgVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []*ChunkHit
	for rows.Next() {
		var h ChunkHit
		var intentTags, productTags, vehicleTags pq.StringArray
		if err := rows.Scan(&h.ChunkID, &h.DocID, &h.Seq, &h.Text, &h.DocTitle,
			&h.Score, &intentTags, &productTags, &vehicleTags); err != nil {
			return nil, err
		}
		h.IntentTags = intentTags
		h.ProductTags = productTags
		h.VehicleTags = vehicleTags
		hits = append(hits, &h)
	}

	return hits, nil
}

// StoreEmbedding writes a chunk's vector.
func (s *VectorStore) StoreEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	_, err := s.db.Exec(ctx,
		`UPDATE kb_chunks SET embedding = $1 WHERE id = $2`,
		pgVector(embedding), chunkID,
	)
	return err
}

// ClearEmbeddings drops all vectors of a document's chunks.
func (s *VectorStore) ClearEmbeddings(ctx context.Context, docID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE kb_chunks SET embedding = NULL WHERE doc_id = $1`,
		docID,
	)
	return err
}

// pgVector converts a float32 slice to the pgvector literal format.
func pgVector(v []float32) string {
	if len(v) == 0 {
		return "[0]"
	}

	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')

	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'f', 6, 32)
	}

	buf = append(buf, ']')
	return string(buf)
}
