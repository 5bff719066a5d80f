package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manualqa/index"
	"manualqa/types"
)

type fakeEmbedder struct {
	dim   int
	vec   []float32
	err   error
	delay time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.vec != nil {
		return f.vec, nil
	}
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) Dim() int     { return f.dim }
func (f *fakeEmbedder) Name() string { return "fake" }

type fakeSearcher struct {
	hits []index.Hit
	err  error
	gotK int
}

func (f *fakeSearcher) Search(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if k > len(f.hits) {
		k = len(f.hits)
	}
	out := make([]index.Hit, k)
	copy(out, f.hits[:k])
	return out, nil
}

type fakeChunks struct {
	chunks map[types.ChunkRef]types.Chunk
}

func (f *fakeChunks) GetChunk(ctx context.Context, docID int64, chunkIndex int) (types.Chunk, error) {
	c, ok := f.chunks[types.ChunkRef{DocumentID: docID, ChunkIndex: chunkIndex}]
	if !ok {
		return types.Chunk{}, fmt.Errorf("chunk (%d, %d): %w", docID, chunkIndex, types.ErrNotFound)
	}
	return c, nil
}

func hit(doc int64, idx int, dist float64) index.Hit {
	return index.Hit{Ref: types.ChunkRef{DocumentID: doc, ChunkIndex: idx}, Distance: dist}
}

// fiveChunkFixture is one document with chunks 0..4 at distances
// 0.1..0.5, the canonical pagination corpus.
func fiveChunkFixture() (*fakeSearcher, *fakeChunks) {
	searcher := &fakeSearcher{}
	chunks := &fakeChunks{chunks: map[types.ChunkRef]types.Chunk{}}
	for i := 0; i < 5; i++ {
		searcher.hits = append(searcher.hits, hit(1, i, float64(i+1)/10))
		ref := types.ChunkRef{DocumentID: 1, ChunkIndex: i}
		chunks.chunks[ref] = types.Chunk{
			DocumentID: 1,
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d body", i),
		}
	}
	return searcher, chunks
}

func newTestService(searcher Searcher, chunks ChunkGetter, cfg Config) *Service {
	return NewService(&fakeEmbedder{dim: 4}, searcher, chunks, cfg, nil)
}

func TestSearchRejectsInvalidParams(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := newTestService(searcher, chunks, Config{})
	ctx := context.Background()

	_, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 0})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = svc.Search(ctx, types.SearchParams{Text: "q", TopK: 5, Offset: -1})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = svc.Search(ctx, types.SearchParams{Text: "   \t", TopK: 5})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSearchPagination(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := newTestService(searcher, chunks, Config{})
	ctx := context.Background()

	t.Run("first page", func(t *testing.T) {
		resp, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2})
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, 0, resp.Results[0].ChunkIndex)
		assert.Equal(t, 1, resp.Results[1].ChunkIndex)
		require.NotNil(t, resp.NextOffset)
		assert.Equal(t, 2, *resp.NextOffset)
	})

	t.Run("middle page", func(t *testing.T) {
		resp, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, 2, resp.Results[0].ChunkIndex)
		assert.Equal(t, 3, resp.Results[1].ChunkIndex)
		require.NotNil(t, resp.NextOffset)
		assert.Equal(t, 4, *resp.NextOffset)
	})

	t.Run("short last page", func(t *testing.T) {
		resp, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2, Offset: 4})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, 4, resp.Results[0].ChunkIndex)
		assert.Nil(t, resp.NextOffset)
	})

	t.Run("offset past corpus", func(t *testing.T) {
		resp, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2, Offset: 10})
		require.NoError(t, err)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.Nil(t, resp.NextOffset)
	})

	t.Run("exactly consumed corpus", func(t *testing.T) {
		resp, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 5})
		require.NoError(t, err)
		assert.Len(t, resp.Results, 5)
		assert.Nil(t, resp.NextOffset)
	})

	t.Run("pages concatenate to one larger page", func(t *testing.T) {
		page1, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2})
		require.NoError(t, err)
		page2, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2, Offset: 2})
		require.NoError(t, err)
		combined, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 4})
		require.NoError(t, err)

		var walked, direct []types.ChunkRef
		for _, r := range append(page1.Results, page2.Results...) {
			walked = append(walked, types.ChunkRef{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex})
		}
		for _, r := range combined.Results {
			direct = append(direct, types.ChunkRef{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex})
		}
		assert.Equal(t, direct, walked)
	})
}

func TestSearchOverfetchesOneExtra(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := newTestService(searcher, chunks, Config{})

	_, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 3, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, searcher.gotK)
}

func TestSearchDeduplicates(t *testing.T) {
	_, chunks := fiveChunkFixture()
	searcher := &fakeSearcher{hits: []index.Hit{
		hit(1, 0, 0.1),
		hit(1, 0, 0.1),
		hit(1, 1, 0.2),
		hit(1, 1, 0.25),
		hit(1, 2, 0.3),
	}}
	svc := newTestService(searcher, chunks, Config{})

	resp, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 0, resp.Results[0].ChunkIndex)
	assert.Equal(t, 1, resp.Results[1].ChunkIndex)
	// First occurrence wins, so the duplicate's distance is dropped.
	assert.InDelta(t, 0.2, resp.Results[1].Distance, 1e-9)
	assert.Equal(t, 2, resp.Results[2].ChunkIndex)
	assert.Nil(t, resp.NextOffset)
}

func TestSearchEmptyCorpus(t *testing.T) {
	svc := newTestService(&fakeSearcher{}, &fakeChunks{}, Config{})

	resp, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 5})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Nil(t, resp.NextOffset)
}

func TestSearchEmbeddingFailure(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := NewService(&fakeEmbedder{dim: 4, err: errors.New("model offline")}, searcher, chunks, Config{}, nil)

	_, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 2})
	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, "fake", embErr.Provider)
	assert.Contains(t, embErr.Error(), "model offline")
}

func TestSearchMalformedVector(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := NewService(&fakeEmbedder{dim: 4, vec: []float32{1, 2}}, searcher, chunks, Config{}, nil)

	_, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 2})
	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, embErr.Error(), "malformed vector")
}

func TestSearchTimeout(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	embedder := &fakeEmbedder{dim: 4, delay: 500 * time.Millisecond}
	svc := NewService(embedder, searcher, chunks, Config{Timeout: 20 * time.Millisecond}, nil)

	_, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 2})
	assert.ErrorIs(t, err, types.ErrTimeout)
}

func TestSearchCanceledContextPassesThrough(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := newTestService(searcher, chunks, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Search(ctx, types.SearchParams{Text: "q", TopK: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrTimeout)
}

func TestSearchSkipsStaleCandidates(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	// Chunk 1 vanished from the store after the snapshot was built.
	delete(chunks.chunks, types.ChunkRef{DocumentID: 1, ChunkIndex: 1})
	svc := newTestService(searcher, chunks, Config{})

	resp, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 3})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 0, resp.Results[0].ChunkIndex)
	assert.Equal(t, 2, resp.Results[1].ChunkIndex)
	// The page stays short rather than pulling rows from the next one.
	require.NotNil(t, resp.NextOffset)
	assert.Equal(t, 3, *resp.NextOffset)
}

func TestSearchStoreFailureIsFatal(t *testing.T) {
	searcher, _ := fiveChunkFixture()
	svc := newTestService(searcher, failingChunks{}, Config{})

	_, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 2})
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrNotFound)
}

type failingChunks struct{}

func (failingChunks) GetChunk(ctx context.Context, docID int64, chunkIndex int) (types.Chunk, error) {
	return types.Chunk{}, errors.New("connection reset")
}

func TestSearchRowShape(t *testing.T) {
	from, to := 3, 4
	chunks := &fakeChunks{chunks: map[types.ChunkRef]types.Chunk{
		{DocumentID: 1, ChunkIndex: 0}: {
			DocumentID:  1,
			ChunkIndex:  0,
			SectionPath: "Care > Cleaning",
			PageFrom:    &from,
			PageTo:      &to,
			Content:     "Descale monthly.\n17\nUse approved descaler only.",
		},
		{DocumentID: 1, ChunkIndex: 1}: {
			DocumentID: 1,
			ChunkIndex: 1,
			Content:    "No section here.",
		},
	}}
	searcher := &fakeSearcher{hits: []index.Hit{hit(1, 0, 0.25), hit(1, 1, 1.0)}}
	svc := newTestService(searcher, chunks, Config{PreviewMaxChars: 300})

	resp, err := svc.Search(context.Background(), types.SearchParams{Text: "descale", TopK: 5, CleanPreview: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	first := resp.Results[0]
	require.NotNil(t, first.SectionPath)
	assert.Equal(t, "Care > Cleaning", *first.SectionPath)
	assert.Equal(t, 3, *first.PageFrom)
	assert.Equal(t, 4, *first.PageTo)
	assert.InDelta(t, 0.25, first.Distance, 1e-9)
	assert.InDelta(t, 0.8, first.Score, 1e-9)
	require.NotNil(t, first.Preview)
	assert.Equal(t, "Descale monthly.\n17\nUse approved descaler only.", *first.Preview)
	require.NotNil(t, first.PreviewClean)
	assert.Equal(t, "Descale monthly.\nUse approved descaler only.", *first.PreviewClean)

	second := resp.Results[1]
	assert.Nil(t, second.SectionPath)
	assert.Nil(t, second.PageFrom)
	assert.InDelta(t, 0.5, second.Score, 1e-9)
}

func TestSearchCleanPreviewOffByDefault(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := newTestService(searcher, chunks, Config{PreviewMaxChars: 300})

	resp, err := svc.Search(context.Background(), types.SearchParams{Text: "q", TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.NotNil(t, resp.Results[0].Preview)
	assert.Nil(t, resp.Results[0].PreviewClean)
}

func TestSearchEchoesQueryAndPaging(t *testing.T) {
	searcher, chunks := fiveChunkFixture()
	svc := newTestService(searcher, chunks, Config{})

	resp, err := svc.Search(context.Background(), types.SearchParams{Text: "descale pump", TopK: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, "descale pump", resp.Query)
	assert.Equal(t, 2, resp.TopK)
	assert.Equal(t, 2, resp.Offset)
}
