package model

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Embedder converts text into fixed-length vectors. Implementations must
// be safe for concurrent use and honor context cancellation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
	Name() string
}

// Options selects and configures a provider. Dim is the corpus embedding
// dimension every provider must produce.
type Options struct {
	Provider string
	Dim      int
	Timeout  time.Duration

	OllamaURL   string
	OllamaModel string

	OpenAIKey   string
	OpenAIModel string
}

// New builds the provider named by opts.Provider: "hash" (deterministic,
// offline, the default), "ollama" or "openai".
func New(opts Options) (Embedder, error) {
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dim)
	}
	switch strings.ToLower(opts.Provider) {
	case "", "hash":
		return NewHashEmbedder(opts.Dim), nil
	case "ollama":
		if opts.OllamaURL == "" || opts.OllamaModel == "" {
			return nil, fmt.Errorf("ollama provider needs url and model")
		}
		return NewOllamaEmbedder(opts.OllamaURL, opts.OllamaModel, opts.Dim, opts.Timeout), nil
	case "openai":
		if opts.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider needs an api key")
		}
		return NewOpenAIEmbedder(opts.OpenAIKey, opts.OpenAIModel, opts.Dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}

// normalize64 scales vec to unit length in place and returns it.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
