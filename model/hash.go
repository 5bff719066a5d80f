package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// HashEmbedder produces deterministic, offline embeddings: dimension i of
// a text is derived from SHA-256(text + "|" + i). Vectors are unit length
// and stable across runs and machines, which makes the provider suitable
// for tests, local development and air-gapped deployments. It carries no
// semantic signal.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash-%d", e.dim)
}

func (e *HashEmbedder) Dim() int {
	return e.dim
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vals := make([]float64, e.dim)
	for i := range vals {
		h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", text, i)))
		// First 4 bytes as a little-endian uint32, mapped onto [-1, 1).
		num := binary.LittleEndian.Uint32(h[:4])
		vals[i] = (float64(num)/(1<<32))*2.0 - 1.0
	}
	return toFloat32(normalize64(vals)), nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
