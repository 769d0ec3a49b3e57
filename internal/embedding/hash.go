package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/katakuxiko/kbagent/internal/model"
)

// HashEmbedder is a local bag-of-words embedder using the hashing trick over
// lower-cased word unigrams and bigrams. It needs no model download and is
// fully deterministic, which makes it the embedder of choice for offline runs
// and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, model.E(model.KindEmbedding, "embed", errors.New("text is empty"))
	}
	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		// punctuation and symbols only: fall back to character trigrams
		tokens = trigrams(trimmed)
	}

	vec := make([]float32, e.dim)
	add := func(term string, weight float32) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		// the top bit picks the sign so collisions tend to cancel
		if sum>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}
	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}
	l2normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) ModelInfo() string { return fmt.Sprintf("hash-%d", e.dim) }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func trigrams(text string) []string {
	r := []rune(text)
	if len(r) < 3 {
		return []string{text}
	}
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		out = append(out, string(r[i:i+3]))
	}
	return out
}
