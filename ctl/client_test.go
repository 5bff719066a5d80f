package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manualqa/types"
)

func strp(s string) *string { return &s }
func intp(v int) *int       { return &v }

func row(doc int64, idx int, dist float64) types.SearchResultRow {
	return types.SearchResultRow{
		DocumentID: doc,
		ChunkIndex: idx,
		Distance:   dist,
		Score:      1.0 / (1.0 + dist),
		Preview:    strp("preview"),
	}
}

// pagedServer serves canned pages keyed by request offset and records how
// many requests it saw.
func pagedServer(t *testing.T, pages map[int]types.SearchResponse, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/search", r.URL.Path)

		var params types.SearchParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		resp, ok := pages[params.Offset]
		require.True(t, ok, "unexpected offset %d", params.Offset)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestClientSearch(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {
			Query:      "descale",
			TopK:       2,
			NextOffset: intp(2),
			Results:    []types.SearchResultRow{row(1, 0, 0.25), row(1, 1, 0.5)},
		},
	}, &calls)
	defer srv.Close()

	// Trailing slashes on the base URL must not produce a // path.
	client := NewClient(srv.URL + "///")
	resp, err := client.Search(context.Background(), types.SearchParams{Text: "descale", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(1), resp.Results[0].DocumentID)
	require.NotNil(t, resp.NextOffset)
	assert.Equal(t, 2, *resp.NextOffset)
}

func TestClientSearchErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error", http.StatusBadRequest, `{"code":400,"error":"invalid id given"}`, "server returned 400: invalid id given"},
		{"validation error", http.StatusUnprocessableEntity, `{"status":422,"errors":{"Text":"failed on 'required' tag"}}`, "validation failed"},
		{"opaque error", http.StatusBadGateway, "", "server returned 502"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Search(context.Background(), types.SearchParams{Text: "q", TopK: 1})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSearchAllFollowsPages(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {NextOffset: intp(2), Results: []types.SearchResultRow{row(1, 0, 0.1), row(1, 1, 0.2)}},
		// The index was swapped between pages: chunk (1,1) shows up again.
		2: {NextOffset: intp(4), Results: []types.SearchResultRow{row(1, 1, 0.2), row(2, 0, 0.3)}},
		4: {NextOffset: nil, Results: []types.SearchResultRow{row(2, 1, 0.4)}},
	}, &calls)
	defer srv.Close()

	rows, err := NewClient(srv.URL).SearchAll(context.Background(), "q", 2, false, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, rows, 4)
	assert.Equal(t, types.ChunkRef{DocumentID: 1, ChunkIndex: 0}, chunkRef(rows[0]))
	assert.Equal(t, types.ChunkRef{DocumentID: 1, ChunkIndex: 1}, chunkRef(rows[1]))
	assert.Equal(t, types.ChunkRef{DocumentID: 2, ChunkIndex: 0}, chunkRef(rows[2]))
	assert.Equal(t, types.ChunkRef{DocumentID: 2, ChunkIndex: 1}, chunkRef(rows[3]))
}

func chunkRef(r types.SearchResultRow) types.ChunkRef {
	return types.ChunkRef{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex}
}

func TestSearchAllStopsAtMaxPages(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {NextOffset: intp(1), Results: []types.SearchResultRow{row(1, 0, 0.1)}},
		1: {NextOffset: intp(2), Results: []types.SearchResultRow{row(1, 1, 0.2)}},
		2: {NextOffset: intp(3), Results: []types.SearchResultRow{row(1, 2, 0.3)}},
	}, &calls)
	defer srv.Close()

	rows, err := NewClient(srv.URL).SearchAll(context.Background(), "q", 1, false, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, rows, 2)
}

func TestSearchAllStopsOnEmptyPage(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {NextOffset: intp(2), Results: []types.SearchResultRow{row(1, 0, 0.1)}},
		2: {NextOffset: intp(4), Results: []types.SearchResultRow{}},
	}, &calls)
	defer srv.Close()

	rows, err := NewClient(srv.URL).SearchAll(context.Background(), "q", 2, false, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, rows, 1)
}

func TestWriteCSV(t *testing.T) {
	rows := []types.SearchResultRow{
		{
			DocumentID:   1,
			ChunkIndex:   0,
			SectionPath:  strp("Care > Cleaning"),
			PageFrom:     intp(3),
			PageTo:       intp(4),
			Distance:     0.25,
			Score:        0.8,
			Preview:      strp("raw text"),
			PreviewClean: strp("clean text"),
		},
		{
			DocumentID: 2,
			ChunkIndex: 7,
			Distance:   1,
			Score:      0.5,
			Preview:    strp("has,comma"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "document_id,chunk_index,section_path,page_from,page_to,distance,score,preview", lines[0])
	assert.Equal(t, "1,0,Care > Cleaning,3,4,0.250000,0.800000,clean text", lines[1])
	assert.Equal(t, `2,7,,,,1.000000,0.500000,"has,comma"`, lines[2])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "document_id,chunk_index,section_path,page_from,page_to,distance,score,preview\n", buf.String())
}
