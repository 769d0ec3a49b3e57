package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/katakuxiko/kbagent/internal/model"
)

// Memory is an in-process brute-force index.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []model.EmbeddedChunk
}

func NewMemory() *Memory { return &Memory{} }

// Insert appends all chunks or none of them.
func (m *Memory) Insert(_ context.Context, chunks ...model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := checkDims(m.dim, chunks)
	if err != nil {
		return err
	}
	m.dim = dim
	m.entries = append(m.entries, chunks...)
	return nil
}

func (m *Memory) Search(_ context.Context, query []float32, k int) ([]model.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	if len(query) != m.dim {
		return nil, ErrDimensionMismatch
	}

	results := make([]model.SearchResult, len(m.entries))
	for i, e := range m.entries {
		results[i] = model.SearchResult{EmbeddedChunk: e, Distance: euclidean(query, e.Vector)}
	}
	// stable: equal distances keep insertion order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.dim = 0
	return nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func euclidean(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
