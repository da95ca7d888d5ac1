package interfaces

import (
	"context"

	"github.com/m-mizutani/omoide/pkg/model"
)

// Embedder maps text to a fixed-dimension vector. Implementations keep no state
// between calls. A failure must be tagged model.ErrTagEmbedding so the indexer can skip
// the record instead of indexing a malformed vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length of every vector returned by Embed
	Dimension() int
}

// LLM maps a system instruction and a user prompt to a natural-language answer.
type LLM interface {
	Generate(ctx context.Context, instruction, prompt string) (string, error)
}

// Locator resolves a human-readable description of the current location.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// Searcher is the read side of the search index. Results are best first and an empty
// index yields an empty slice.
type Searcher interface {
	SearchByText(ctx context.Context, query string, k int) ([]*model.Hit, error)
	SearchByVector(ctx context.Context, vector []float32, k int) ([]*model.Hit, error)
	SearchHybrid(ctx context.Context, query string, vector []float32, k int) ([]*model.Hit, error)
}

// DocumentWriter is the write side of the search index used by the indexing pipeline.
// IndexDocument replaces any document with the same EntryID.
type DocumentWriter interface {
	IndexDocument(ctx context.Context, doc *model.SearchDocument) error
	DeleteDocument(ctx context.Context, entryID model.EntryID) error
	GetAllDocuments(ctx context.Context, limit int) ([]*model.SearchDocument, error)
}
