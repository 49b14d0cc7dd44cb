package domain

import (
	"time"
)

// DocStatus is the lifecycle status of a knowledge document. Only
// published documents are retrievable.
type DocStatus string

const (
	DocStatusProposed  DocStatus = "proposed"
	DocStatusApproved  DocStatus = "approved"
	DocStatusPublished DocStatus = "published"
	DocStatusRejected  DocStatus = "rejected"
)

// DocSource records where a document came from.
type DocSource string

const (
	DocSourceManual   DocSource = "manual"
	DocSourceImport   DocSource = "import"
	DocSourceLearning DocSource = "learning"
)

// KBDoc is one knowledge-base document. Tag sets scope applicability:
// an empty product/vehicle tag set means the document applies to all.
type KBDoc struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Status      DocStatus `json:"status"`
	Source      DocSource `json:"source"`
	IntentTags  []string  `json:"intent_tags,omitempty"`
	ProductTags []string  `json:"product_tags,omitempty"`
	VehicleTags []string  `json:"vehicle_tags,omitempty"`
	// ReviewScore is set on imported documents by the shared scorer.
	ReviewScore    *float64 `json:"review_score,omitempty"`
	ReviewBand     *string  `json:"review_band,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AppliesToAll reports whether the document carries no scoping tags.
func (d *KBDoc) AppliesToAll() bool {
	return len(d.ProductTags) == 0 && len(d.VehicleTags) == 0
}

// KBChunk is an ordered slice of a document body. Chunks are deleted
// and regenerated as a set whenever the body changes.
type KBChunk struct {
	ID        int64     `json:"id"`
	DocID     int64     `json:"doc_id"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	Embedded  bool      `json:"embedded"`
	CreatedAt time.Time `json:"created_at"`
}

// RetrievedChunk is a ranked retrieval result carrying the fused score
// and the per-pass signals used to build it.
type RetrievedChunk struct {
	Chunk      *KBChunk `json:"chunk"`
	DocTitle   string   `json:"doc_title"`
	Score      float64  `json:"score"`
	Similarity float64  `json:"similarity"`
	Lexical    bool     `json:"lexical"`
	Semantic   bool     `json:"semantic"`
}

// Citation converts a retrieval result into a draft citation.
func (r *RetrievedChunk) Citation() Citation {
	return Citation{
		ChunkID:    r.Chunk.ID,
		DocID:      r.Chunk.DocID,
		DocTitle:   r.DocTitle,
		Similarity: r.Similarity,
	}
}
