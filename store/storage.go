package store

import (
	"context"

	"manualqa/types"
)

// Storer is the persistence contract shared by the Postgres and in-memory
// implementations. All reads return copies; no method retains references
// to caller-owned slices.
//
// Chunk writes enforce two invariants regardless of backend: a duplicate
// (document_id, chunk_index) fails with types.ErrConflict, and an
// embedding whose length differs from the configured dimension fails with
// *types.DimensionMismatchError before anything is written.
type Storer interface {
	CreateProduct(ctx context.Context, params types.CreateProductParams) (types.Product, error)
	GetProduct(ctx context.Context, id int64) (types.Product, error)
	ListProducts(ctx context.Context) ([]types.Product, error)

	CreateDocument(ctx context.Context, params types.CreateDocumentParams) (types.Document, error)
	GetDocument(ctx context.Context, id int64) (types.Document, error)
	ListDocuments(ctx context.Context, productID int64) ([]types.Document, error)
	// DeleteDocument removes the document and, by cascade, its TOC,
	// pages and chunks.
	DeleteDocument(ctx context.Context, id int64) error

	ReplaceTOC(ctx context.Context, docID int64, entries []types.TOCEntry) ([]types.TOCEntry, error)
	GetTOC(ctx context.Context, docID int64) ([]types.TOCEntry, error)

	UpsertPages(ctx context.Context, docID int64, pages []types.Page) (int, error)
	GetPages(ctx context.Context, docID int64) ([]types.Page, error)

	ReplaceChunks(ctx context.Context, docID int64, chunks []types.Chunk) (int, error)
	InsertChunk(ctx context.Context, chunk types.Chunk) (types.Chunk, error)
	GetChunk(ctx context.Context, docID int64, chunkIndex int) (types.Chunk, error)
	GetChunksByDocument(ctx context.Context, docID int64) ([]types.Chunk, error)
	SetChunkEmbedding(ctx context.Context, docID int64, chunkIndex int, embedding []float32) error
	// ListEmbedded returns every chunk that has a vector, ordered by
	// (document_id, chunk_index). Index rebuilds consume this.
	ListEmbedded(ctx context.Context) ([]types.EmbeddedChunk, error)

	CreateFeedback(ctx context.Context, params types.FeedbackParams) (types.Feedback, error)
	CreateManualRequest(ctx context.Context, params types.ManualRequestParams) (types.ManualRequest, error)

	Ping(ctx context.Context) error
}
