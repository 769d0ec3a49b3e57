// Package chunker splits extracted text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/katakuxiko/kbagent/internal/model"
)

var ErrInvalidConfig = errors.New("chunker: invalid configuration")

// Chunker cuts text into windows of Size runes, each starting Size-Overlap
// runes after the previous one.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows of text in order. A text of L runes gives
// ceil((L-overlap)/(size-overlap)) chunks, a text no longer than one window
// gives exactly one, and blank text gives none.
func (c *Chunker) Split(text, source string) []model.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	step := c.size - c.overlap

	var out []model.Chunk
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, model.Chunk{
			Text:     string(runes[start:end]),
			Source:   source,
			Position: start,
		})
		if end == len(runes) {
			break
		}
	}
	return out
}

// Count is the number of chunks Split would produce for a text of n runes.
func (c *Chunker) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= c.size {
		return 1
	}
	step := c.size - c.overlap
	return (n - c.overlap + step - 1) / step
}
