package out

import (
	"context"

	"triage_server/core/domain"
)

// KBDocRepository persists knowledge documents.
type KBDocRepository interface {
	Create(ctx context.Context, doc *domain.KBDoc) error
	GetByID(ctx context.Context, id int64) (*domain.KBDoc, error)
	List(ctx context.Context, status *domain.DocStatus, limit, offset int) ([]*domain.KBDoc, int, error)
	Update(ctx context.Context, doc *domain.KBDoc) error
	UpdateStatus(ctx context.Context, id int64, status domain.DocStatus) error
	// ListImportQueue returns imported docs awaiting curation, lowest
	// review score first.
	ListImportQueue(ctx context.Context, limit, offset int) ([]*domain.KBDoc, int, error)
	SetReviewScore(ctx context.Context, id int64, score float64, band string) error
}

// KBChunkRepository persists document chunks. Chunks of a document are
// always replaced as a set, never patched individually.
type KBChunkRepository interface {
	ReplaceForDoc(ctx context.Context, docID int64, chunks []*domain.KBChunk) error
	GetByID(ctx context.Context, id int64) (*domain.KBChunk, error)
	ListByDoc(ctx context.Context, docID int64) ([]*domain.KBChunk, error)
	// ListUnembedded returns published chunks still missing a vector.
	// Embedding writes go through the vector store.
	ListUnembedded(ctx context.Context, limit int) ([]*domain.KBChunk, error)
	DeleteByDoc(ctx context.Context, docID int64) error
}
