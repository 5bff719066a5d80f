// Package ctl is a thin client for the manualqa HTTP API, used by the
// companion CLI for ad-hoc queries and corpus exports.
package ctl

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"manualqa/types"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Search runs a single search request against the service.
func (c *Client) Search(ctx context.Context, params types.SearchParams) (types.SearchResponse, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return types.SearchResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return types.SearchResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.SearchResponse{}, apiError(resp)
	}

	var out types.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.SearchResponse{}, fmt.Errorf("decode search response: %w", err)
	}
	return out, nil
}

// SearchAll pages through results following next_offset until the service
// reports no more, maxPages is hit, or a page comes back empty. Rows seen
// on an earlier page are dropped, so the result is duplicate-free even if
// the index is swapped mid-walk.
func (c *Client) SearchAll(ctx context.Context, text string, topK int, clean bool, maxPages int) ([]types.SearchResultRow, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	seen := make(map[types.ChunkRef]struct{})
	var rows []types.SearchResultRow
	offset := 0

	for page := 0; page < maxPages; page++ {
		resp, err := c.Search(ctx, types.SearchParams{
			Text:         text,
			TopK:         topK,
			Offset:       offset,
			CleanPreview: clean,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Results) == 0 {
			break
		}

		for _, r := range resp.Results {
			ref := types.ChunkRef{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			rows = append(rows, r)
		}

		if resp.NextOffset == nil {
			break
		}
		offset = *resp.NextOffset
	}
	return rows, nil
}

// WriteCSV renders rows with a fixed header. The preview column prefers
// the cleaned form when the server returned one.
func WriteCSV(w io.Writer, rows []types.SearchResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"document_id", "chunk_index", "section_path",
		"page_from", "page_to", "distance", "score", "preview",
	}); err != nil {
		return err
	}

	for _, r := range rows {
		preview := strOrEmpty(r.Preview)
		if r.PreviewClean != nil {
			preview = *r.PreviewClean
		}
		record := []string{
			strconv.FormatInt(r.DocumentID, 10),
			strconv.Itoa(r.ChunkIndex),
			strOrEmpty(r.SectionPath),
			intOrEmpty(r.PageFrom),
			intOrEmpty(r.PageTo),
			strconv.FormatFloat(r.Distance, 'f', 6, 64),
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			preview,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var valErr struct {
		Errors map[string]string `json:"errors"`
	}
	if json.Unmarshal(data, &valErr) == nil && len(valErr.Errors) > 0 {
		return fmt.Errorf("server returned %d: validation failed: %v", resp.StatusCode, valErr.Errors)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
