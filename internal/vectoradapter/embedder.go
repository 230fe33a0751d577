package vectoradapter

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/codesearch/codesearch/internal/tokenizer"
)

// HashEmbedder is a deterministic, model-free Embedder. It hashes each
// normalized token into a fixed-width vector via feature hashing, giving
// every build of codesearch a usable (if semantically crude) vector
// retriever with no network call, API key, or GPU required. It is the
// default when no model-backed embedder is configured, and is useful in
// tests that need stable, reproducible embeddings.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given
// dimensionality (defaults to 128 if dimensions <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 128
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes text's tokens into a normalized, fixed-width vector. Each
// token contributes +1/-1 to a bucket chosen by its hash, weighted by the
// token's kind (identifiers counting more than comments), following the
// standard feature-hashing ("hashing trick") construction.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimensions)
	tokens := tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok.Text))
		bucket := binary.BigEndian.Uint64(sum[0:8]) % uint64(h.dimensions)
		sign := float32(1)
		if sum[8]&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign * float32(tok.Kind.Weight())
	}

	normalizeInPlace(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions reports the configured vector width.
func (h *HashEmbedder) Dimensions() int { return h.dimensions }

// ModelName identifies this embedder in logs and cache keys.
func (h *HashEmbedder) ModelName() string { return "hash-feature-v1" }

// CosineSimilarity is a small helper exposed for callers that want to
// compare two embeddings directly without going through a Store, e.g. for
// diagnostics or scoring a single candidate pair.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
