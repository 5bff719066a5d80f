// Package search orchestrates a query end to end: validate, embed, probe
// the similarity index, deduplicate, paginate, hydrate from the store and
// shape the response.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"manualqa/index"
	"manualqa/preview"
	"manualqa/types"
)

// Embedder is the slice of the provider contract the orchestrator uses.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
	Name() string
}

// Searcher is the similarity index surface. index.Manager satisfies it.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]index.Hit, error)
}

// ChunkGetter hydrates candidate refs with chunk metadata.
type ChunkGetter interface {
	GetChunk(ctx context.Context, docID int64, chunkIndex int) (types.Chunk, error)
}

type Config struct {
	// PreviewMaxChars bounds both the raw and the cleaned preview.
	PreviewMaxChars int
	// Timeout caps one search call end to end on top of whatever
	// deadline the caller's context already carries. Zero means no
	// extra cap.
	Timeout time.Duration
}

type Service struct {
	embedder Embedder
	searcher Searcher
	chunks   ChunkGetter
	cfg      Config
	log      *slog.Logger
}

func NewService(embedder Embedder, searcher Searcher, chunks ChunkGetter, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		embedder: embedder,
		searcher: searcher,
		chunks:   chunks,
		cfg:      cfg,
		log:      log.With("component", "search"),
	}
}

// Search runs one query. Embedding and index failures abort the call with
// typed errors; a candidate whose chunk has meanwhile been deleted is
// dropped from the page and logged, never fatal. Results are ranked by
// ascending distance with ties broken by (document_id, chunk_index), so
// repeated pagination neither skips nor repeats rows.
func (s *Service) Search(ctx context.Context, params types.SearchParams) (types.SearchResponse, error) {
	if params.TopK < 1 {
		return types.SearchResponse{}, fmt.Errorf("top_k must be >= 1, got %d: %w", params.TopK, types.ErrInvalidArgument)
	}
	if params.Offset < 0 {
		return types.SearchResponse{}, fmt.Errorf("offset must be >= 0, got %d: %w", params.Offset, types.ErrInvalidArgument)
	}
	if strings.TrimSpace(params.Text) == "" {
		return types.SearchResponse{}, fmt.Errorf("query text is empty: %w", types.ErrInvalidArgument)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	vec, err := s.embedder.Embed(ctx, params.Text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.SearchResponse{}, fmt.Errorf("embedding %q: %w", params.Text, types.ErrTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return types.SearchResponse{}, err
		}
		return types.SearchResponse{}, &types.EmbeddingError{Provider: s.embedder.Name(), Err: err}
	}
	if len(vec) != s.embedder.Dim() {
		return types.SearchResponse{}, &types.EmbeddingError{
			Provider: s.embedder.Name(),
			Err:      fmt.Errorf("malformed vector: %d dimensions, want %d", len(vec), s.embedder.Dim()),
		}
	}

	// Over-fetch one candidate past the requested page so next_offset
	// reflects whether anything actually lies beyond it.
	fetch := params.Offset + params.TopK + 1
	hits, err := s.searcher.Search(ctx, vec, fetch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.SearchResponse{}, fmt.Errorf("similarity search: %w", types.ErrTimeout)
		}
		return types.SearchResponse{}, fmt.Errorf("similarity search: %w", err)
	}

	deduped := dedup(hits)

	more := len(deduped) > params.Offset+params.TopK
	start := min(params.Offset, len(deduped))
	end := min(params.Offset+params.TopK, len(deduped))
	page := deduped[start:end]

	results := make([]types.SearchResultRow, 0, len(page))
	stale := 0
	for _, h := range page {
		chunk, err := s.chunks.GetChunk(ctx, h.Ref.DocumentID, h.Ref.ChunkIndex)
		if errors.Is(err, types.ErrNotFound) {
			stale++
			s.log.Warn("stale index entry, chunk gone from store",
				"document_id", h.Ref.DocumentID,
				"chunk_index", h.Ref.ChunkIndex,
			)
			continue
		}
		if err != nil {
			return types.SearchResponse{}, fmt.Errorf("load chunk (%d, %d): %w", h.Ref.DocumentID, h.Ref.ChunkIndex, err)
		}
		results = append(results, s.row(chunk, h, params.CleanPreview))
	}
	if stale > 0 {
		s.log.Warn("dropped stale candidates from response", "count", stale)
	}

	var next *int
	if more {
		n := params.Offset + params.TopK
		next = &n
	}

	return types.SearchResponse{
		Query:      params.Text,
		TopK:       params.TopK,
		Offset:     params.Offset,
		NextOffset: next,
		Results:    results,
	}, nil
}

// dedup keeps the first occurrence of every (document_id, chunk_index),
// preserving rank order.
func dedup(hits []index.Hit) []index.Hit {
	seen := make(map[types.ChunkRef]struct{}, len(hits))
	out := make([]index.Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Ref]; ok {
			continue
		}
		seen[h.Ref] = struct{}{}
		out = append(out, h)
	}
	return out
}

func (s *Service) row(c types.Chunk, h index.Hit, clean bool) types.SearchResultRow {
	row := types.SearchResultRow{
		DocumentID: c.DocumentID,
		ChunkIndex: c.ChunkIndex,
		PageFrom:   c.PageFrom,
		PageTo:     c.PageTo,
		Distance:   h.Distance,
		Score:      1.0 / (1.0 + h.Distance),
	}
	if c.SectionPath != "" {
		sp := c.SectionPath
		row.SectionPath = &sp
	}
	raw := preview.Snippet(c.Content, s.cfg.PreviewMaxChars)
	row.Preview = &raw
	if clean {
		cleaned := preview.Clean(c.Content, s.cfg.PreviewMaxChars)
		row.PreviewClean = &cleaned
	}
	return row
}
