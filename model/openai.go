package model

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiBatchSize caps how many inputs go into one embeddings request.
const openaiBatchSize = 64

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, mdl string, dim int) *OpenAIEmbedder {
	if mdl == "" {
		mdl = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  mdl,
		dim:    dim,
	}
}

func (e *OpenAIEmbedder) Name() string {
	return "openai-" + e.model
}

func (e *OpenAIEmbedder) Dim() int {
	return e.dim
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openaiBatchSize {
		end := start + openaiBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings request: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			vec := make([]float64, len(d.Embedding))
			for i, x := range d.Embedding {
				vec[i] = float64(x)
			}
			if len(vec) != e.dim {
				return nil, fmt.Errorf("openai returned %d dimensions, want %d", len(vec), e.dim)
			}
			out = append(out, toFloat32(normalize64(vec)))
		}
	}
	return out, nil
}
