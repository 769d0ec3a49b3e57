package store

import (
	"context"
	"errors"

	"github.com/katakuxiko/kbagent/internal/model"
)

// Index is a nearest-neighbour collection of embedded chunks owned by one
// session. Search orders results by ascending Euclidean distance and breaks
// ties by insertion order.
type Index interface {
	Insert(ctx context.Context, chunks ...model.EmbeddedChunk) error
	Search(ctx context.Context, query []float32, k int) ([]model.SearchResult, error)
	Reset(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// checkDims verifies every vector in chunks has dimension dim. A dim of 0
// adopts the size of the first vector.
func checkDims(dim int, chunks []model.EmbeddedChunk) (int, error) {
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim || dim == 0 {
			return 0, ErrDimensionMismatch
		}
	}
	return dim, nil
}
