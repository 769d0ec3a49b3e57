package extract

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/katakuxiko/kbagent/internal/model"
)

// plainExtractor serves .txt and .md files, which are indexed as written.
type plainExtractor struct{}

func (plainExtractor) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", model.E(model.KindParse, "extract text", errors.New("file is not valid UTF-8"))
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
