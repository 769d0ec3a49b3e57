// Package extract turns uploaded files and web pages into plain text.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/katakuxiko/kbagent/internal/model"
)

// Format tags the parser used for a document.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatDOCX     Format = "docx"
	FormatHTML     Format = "html"
)

// TextExtractable converts the raw bytes of one document into plain text.
type TextExtractable interface {
	Extract(data []byte) (string, error)
}

var extractors = map[Format]TextExtractable{
	FormatPDF:      pdfExtractor{},
	FormatText:     plainExtractor{},
	FormatMarkdown: plainExtractor{},
	FormatDOCX:     docxExtractor{},
	FormatHTML:     htmlExtractor{},
}

// FormatFromFilename picks the format from the file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch Format(ext) {
	case FormatPDF, FormatText, FormatMarkdown, FormatDOCX:
		return Format(ext), nil
	case "markdown":
		return FormatMarkdown, nil
	}
	return "", model.Ef(model.KindUnsupportedFormat, "extract", "unsupported file type: %s", name)
}

// For returns the extractor registered for f.
func For(f Format) (TextExtractable, error) {
	if x, ok := extractors[f]; ok {
		return x, nil
	}
	return nil, model.Ef(model.KindUnsupportedFormat, "extract", "unsupported format %q", f)
}

// File extracts the text of an uploaded file, dispatching on its name.
func File(name string, data []byte) (string, error) {
	f, err := FormatFromFilename(name)
	if err != nil {
		return "", err
	}
	x, err := For(f)
	if err != nil {
		return "", err
	}
	txt, err := x.Extract(data)
	if err != nil {
		return "", err
	}
	return nonEmpty(name, Clean(txt))
}

func nonEmpty(source, txt string) (string, error) {
	if strings.TrimSpace(txt) == "" {
		return "", model.Ef(model.KindParse, "extract", "no text extracted from %s", source)
	}
	return txt, nil
}
