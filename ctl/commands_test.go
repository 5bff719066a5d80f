package ctl

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manualqa/types"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestSearchCommandFlags(t *testing.T) {
	topK := searchCmd.Flags().Lookup("top-k")
	require.NotNil(t, topK)
	assert.Equal(t, "5", topK.DefValue)
	assert.Equal(t, "n", topK.Shorthand)

	assert.NotNil(t, searchCmd.Flags().Lookup("offset"))
	assert.NotNil(t, searchCmd.Flags().Lookup("clean"))
	assert.NotNil(t, searchCmd.Flags().Lookup("json"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("addr"))
}

func TestExportCommandFlags(t *testing.T) {
	assert.Equal(t, "50", exportCmd.Flags().Lookup("top-k").DefValue)
	assert.Equal(t, "20", exportCmd.Flags().Lookup("max-pages").DefValue)
	assert.Equal(t, "true", exportCmd.Flags().Lookup("clean").DefValue)
	assert.Equal(t, "-", exportCmd.Flags().Lookup("out").DefValue)
}

func TestSearchCommandRequiresQuery(t *testing.T) {
	_, _, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arg")
}

func TestSearchCommandOutput(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {
			Query:      "descale",
			TopK:       2,
			NextOffset: intp(2),
			Results: []types.SearchResultRow{
				{
					DocumentID:  1,
					ChunkIndex:  0,
					SectionPath: strp("Care > Cleaning"),
					Preview:     strp("Run the descaling program monthly."),
					Distance:    0.25,
					Score:       0.8,
				},
			},
		},
	}, &calls)
	defer srv.Close()

	stdout, _, err := execute(t, "search", "descale", "--addr", srv.URL, "--top-k", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[1] document 1, chunk 0 (score 0.800)")
	assert.Contains(t, stdout, "Section: Care > Cleaning")
	assert.Contains(t, stdout, "Run the descaling program monthly.")
	assert.Contains(t, stdout, "More results: rerun with --offset 2")
}

func TestSearchCommandNoResults(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {Query: "nothing", TopK: 5, Results: []types.SearchResultRow{}},
	}, &calls)
	defer srv.Close()

	stdout, _, err := execute(t, "search", "nothing", "--addr", srv.URL, "--top-k", "5")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No results found.")
}

func TestSearchCommandJSON(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {Query: "descale", TopK: 5, Results: []types.SearchResultRow{}},
	}, &calls)
	defer srv.Close()

	stdout, _, err := execute(t, "search", "descale", "--addr", srv.URL, "--top-k", "5", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"query": "descale"`)
	assert.Contains(t, stdout, `"results": []`)

	// Reset so later tests see the default text output.
	searchJSON = false
}

func TestExportCommandWritesCSV(t *testing.T) {
	var calls int
	srv := pagedServer(t, map[int]types.SearchResponse{
		0: {
			Results: []types.SearchResultRow{
				{
					DocumentID:   1,
					ChunkIndex:   0,
					PreviewClean: strp("clean body"),
					Distance:     0.5,
					Score:        1.0 / 1.5,
				},
			},
		},
	}, &calls)
	defer srv.Close()

	stdout, stderr, err := execute(t, "export", "descale", "--addr", srv.URL, "--top-k", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "document_id,chunk_index"))
	assert.Contains(t, lines[1], "clean body")
	assert.Contains(t, stderr, "exported 1 rows")
}

func TestSearchCommandServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, _, err := execute(t, "search", "descale", "--addr", srv.URL, "--top-k", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}
