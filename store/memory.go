package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"manualqa/types"
)

// MemoryStore keeps the whole corpus in process memory behind a RWMutex.
// It backs tests and the "memory" store driver for local development, and
// enforces the same conflict and dimension contracts as Postgres.
//
// Writes copy incoming embedding slices and replace rather than mutate,
// so values handed out earlier stay stable.
type MemoryStore struct {
	mu  sync.RWMutex
	dim int

	productSeq  int64
	documentSeq int64
	tocSeq      int64
	pageSeq     int64
	chunkSeq    int64
	feedbackSeq int64
	requestSeq  int64

	products  map[int64]types.Product
	documents map[int64]types.Document
	toc       map[int64][]types.TOCEntry
	pages     map[int64][]types.Page
	chunks    map[int64][]types.Chunk
	feedback  []types.Feedback
	requests  []types.ManualRequest
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:       dim,
		products:  make(map[int64]types.Product),
		documents: make(map[int64]types.Document),
		toc:       make(map[int64][]types.TOCEntry),
		pages:     make(map[int64][]types.Page),
		chunks:    make(map[int64][]types.Chunk),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) CreateProduct(ctx context.Context, params types.CreateProductParams) (types.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.Brand == params.Brand && p.Model == params.Model {
			return types.Product{}, fmt.Errorf("product %s %s: %w", params.Brand, params.Model, types.ErrConflict)
		}
	}

	m.productSeq++
	product := types.Product{
		ID:        m.productSeq,
		Brand:     params.Brand,
		Model:     params.Model,
		CreatedAt: time.Now().UTC(),
	}
	m.products[product.ID] = product
	return product, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id int64) (types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return types.Product{}, fmt.Errorf("product %d: %w", id, types.ErrNotFound)
	}
	return product, nil
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Brand != out[j].Brand {
			return out[i].Brand < out[j].Brand
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

func (m *MemoryStore) CreateDocument(ctx context.Context, params types.CreateDocumentParams) (types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[params.ProductID]; !ok {
		return types.Document{}, fmt.Errorf("unknown product %d: %w", params.ProductID, types.ErrInvalidArgument)
	}
	for _, d := range m.documents {
		if d.ProductID == params.ProductID && d.SourceURL == params.SourceURL {
			return types.Document{}, fmt.Errorf("document %q for product %d: %w", params.SourceURL, params.ProductID, types.ErrConflict)
		}
	}

	docType := params.DocType
	if docType == "" {
		docType = "manual"
	}
	m.documentSeq++
	doc := types.Document{
		ID:        m.documentSeq,
		ProductID: params.ProductID,
		Title:     params.Title,
		SourceURL: params.SourceURL,
		DocType:   docType,
		CreatedAt: time.Now().UTC(),
	}
	m.documents[doc.ID] = doc
	return doc, nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, id int64) (types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return types.Document{}, fmt.Errorf("document %d: %w", id, types.ErrNotFound)
	}
	return doc, nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, productID int64) ([]types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []types.Document{}
	for _, d := range m.documents {
		if productID > 0 && d.ProductID != productID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteDocument removes the document and everything hanging off it,
// mirroring the Postgres ON DELETE CASCADE chain.
func (m *MemoryStore) DeleteDocument(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return fmt.Errorf("document %d: %w", id, types.ErrNotFound)
	}
	delete(m.documents, id)
	delete(m.toc, id)
	delete(m.pages, id)
	delete(m.chunks, id)
	return nil
}

func (m *MemoryStore) ReplaceTOC(ctx context.Context, docID int64, entries []types.TOCEntry) ([]types.TOCEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[docID]; !ok {
		return nil, fmt.Errorf("document %d: %w", docID, types.ErrNotFound)
	}

	out := make([]types.TOCEntry, 0, len(entries))
	for i, e := range entries {
		m.tocSeq++
		e.ID = m.tocSeq
		e.DocumentID = docID
		e.OrderIndex = i + 1
		out = append(out, e)
	}
	m.toc[docID] = out

	result := make([]types.TOCEntry, len(out))
	copy(result, out)
	return result, nil
}

func (m *MemoryStore) GetTOC(ctx context.Context, docID int64) ([]types.TOCEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.toc[docID]
	out := make([]types.TOCEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryStore) UpsertPages(ctx context.Context, docID int64, pages []types.Page) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[docID]; !ok {
		return 0, fmt.Errorf("document %d: %w", docID, types.ErrNotFound)
	}

	existing := m.pages[docID]
	for _, pg := range pages {
		replaced := false
		for i := range existing {
			if existing[i].PageNumber == pg.PageNumber {
				existing[i].Content = pg.Content
				replaced = true
				break
			}
		}
		if !replaced {
			m.pageSeq++
			existing = append(existing, types.Page{
				ID:         m.pageSeq,
				DocumentID: docID,
				PageNumber: pg.PageNumber,
				Content:    pg.Content,
			})
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].PageNumber < existing[j].PageNumber })
	m.pages[docID] = existing
	return len(pages), nil
}

func (m *MemoryStore) GetPages(ctx context.Context, docID int64) ([]types.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pages := m.pages[docID]
	out := make([]types.Page, len(pages))
	copy(out, pages)
	return out, nil
}

func (m *MemoryStore) checkDim(embedding []float32) error {
	if len(embedding) > 0 && len(embedding) != m.dim {
		return &types.DimensionMismatchError{Want: m.dim, Got: len(embedding)}
	}
	return nil
}

func (m *MemoryStore) ReplaceChunks(ctx context.Context, docID int64, chunks []types.Chunk) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[docID]; !ok {
		return 0, fmt.Errorf("document %d: %w", docID, types.ErrNotFound)
	}

	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if err := m.checkDim(c.Embedding); err != nil {
			return 0, err
		}
		if seen[c.ChunkIndex] {
			return 0, fmt.Errorf("chunk (%d, %d): %w", docID, c.ChunkIndex, types.ErrConflict)
		}
		seen[c.ChunkIndex] = true
	}

	out := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		m.chunkSeq++
		c.ID = m.chunkSeq
		c.DocumentID = docID
		c.Embedding = cloneVec(c.Embedding)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	m.chunks[docID] = out
	return len(out), nil
}

func (m *MemoryStore) InsertChunk(ctx context.Context, c types.Chunk) (types.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[c.DocumentID]; !ok {
		return types.Chunk{}, fmt.Errorf("unknown document %d: %w", c.DocumentID, types.ErrInvalidArgument)
	}
	if err := m.checkDim(c.Embedding); err != nil {
		return types.Chunk{}, err
	}
	for _, existing := range m.chunks[c.DocumentID] {
		if existing.ChunkIndex == c.ChunkIndex {
			return types.Chunk{}, fmt.Errorf("chunk (%d, %d): %w", c.DocumentID, c.ChunkIndex, types.ErrConflict)
		}
	}

	m.chunkSeq++
	c.ID = m.chunkSeq
	c.Embedding = cloneVec(c.Embedding)
	chunks := append(m.chunks[c.DocumentID], c)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	m.chunks[c.DocumentID] = chunks
	return c, nil
}

func (m *MemoryStore) GetChunk(ctx context.Context, docID int64, chunkIndex int) (types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.chunks[docID] {
		if c.ChunkIndex == chunkIndex {
			return c, nil
		}
	}
	return types.Chunk{}, fmt.Errorf("chunk (%d, %d): %w", docID, chunkIndex, types.ErrNotFound)
}

func (m *MemoryStore) GetChunksByDocument(ctx context.Context, docID int64) ([]types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := m.chunks[docID]
	out := make([]types.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (m *MemoryStore) SetChunkEmbedding(ctx context.Context, docID int64, chunkIndex int, embedding []float32) error {
	if len(embedding) != m.dim {
		return &types.DimensionMismatchError{Want: m.dim, Got: len(embedding)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chunks := m.chunks[docID]
	for i := range chunks {
		if chunks[i].ChunkIndex == chunkIndex {
			chunks[i].Embedding = cloneVec(embedding)
			return nil
		}
	}
	return fmt.Errorf("chunk (%d, %d): %w", docID, chunkIndex, types.ErrNotFound)
}

func (m *MemoryStore) ListEmbedded(ctx context.Context) ([]types.EmbeddedChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docIDs := make([]int64, 0, len(m.chunks))
	for id := range m.chunks {
		docIDs = append(docIDs, id)
	}
	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })

	out := []types.EmbeddedChunk{}
	for _, id := range docIDs {
		for _, c := range m.chunks[id] {
			if len(c.Embedding) == 0 {
				continue
			}
			out = append(out, types.EmbeddedChunk{Ref: c.Ref(), Embedding: c.Embedding})
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateFeedback(ctx context.Context, params types.FeedbackParams) (types.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.ProductID != nil {
		if _, ok := m.products[*params.ProductID]; !ok {
			return types.Feedback{}, fmt.Errorf("unknown product %d: %w", *params.ProductID, types.ErrInvalidArgument)
		}
	}
	if params.DocumentID != nil {
		if _, ok := m.documents[*params.DocumentID]; !ok {
			return types.Feedback{}, fmt.Errorf("unknown document %d: %w", *params.DocumentID, types.ErrInvalidArgument)
		}
	}

	m.feedbackSeq++
	fb := types.Feedback{
		ID:         m.feedbackSeq,
		ProductID:  params.ProductID,
		DocumentID: params.DocumentID,
		Rating:     params.Rating,
		Comments:   params.Comments,
		CreatedAt:  time.Now().UTC(),
	}
	m.feedback = append(m.feedback, fb)
	return fb, nil
}

func (m *MemoryStore) CreateManualRequest(ctx context.Context, params types.ManualRequestParams) (types.ManualRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestSeq++
	req := types.ManualRequest{
		ID:        m.requestSeq,
		Brand:     params.Brand,
		Model:     params.Model,
		Email:     params.Email,
		Notes:     params.Notes,
		Status:    "open",
		CreatedAt: time.Now().UTC(),
	}
	m.requests = append(m.requests, req)
	return req, nil
}

func cloneVec(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
