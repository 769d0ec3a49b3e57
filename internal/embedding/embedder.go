// Package embedding maps text to fixed-length vectors.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/katakuxiko/kbagent/internal/config"
)

// Embedder converts one piece of text into a vector. Implementations must be
// deterministic for a given model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelInfo() string
}

// New builds the embedder selected in cfg.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg), nil
	case config.ProviderHash:
		return NewHashEmbedder(cfg.Dimension), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

// l2normalize scales v to unit length in place.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
