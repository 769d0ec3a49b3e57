package extract

import (
	"bytes"
	"strings"

	"rsc.io/pdf"

	"github.com/katakuxiko/kbagent/internal/model"
)

type pdfExtractor struct{}

// Extract reads the PDF with rsc.io/pdf. When that fails or finds no text
// (unsupported font encodings, compressed object streams) and poppler's
// pdftotext is installed, the file is handed to it instead.
func (pdfExtractor) Extract(data []byte) (string, error) {
	text, err := readPDF(data)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if alt, altErr := pdftotext(data); altErr == nil && strings.TrimSpace(alt) != "" {
		return alt, nil
	}
	return text, err
}

// readPDF reads every page in order. Pages without text are skipped and
// pages are separated by a newline. rsc.io/pdf panics on some malformed
// files, so panics are turned into ParseError.
func readPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.Ef(model.KindParse, "extract pdf", "malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", model.E(model.KindParse, "extract pdf", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		page := pageText(p)
		if strings.TrimSpace(page) == "" {
			continue
		}
		sb.WriteString(page)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// pageText joins the glyph runs of a page. rsc.io/pdf does not emit space
// glyphs, so a horizontal gap wider than a fraction of the font size becomes a
// space and a baseline change becomes a newline.
func pageText(p pdf.Page) string {
	var sb strings.Builder
	var prev pdf.Text
	for i, t := range p.Content().Text {
		if i > 0 {
			switch {
			case t.Y != prev.Y:
				sb.WriteString("\n")
			case t.X-(prev.X+prev.W) > t.FontSize*0.15:
				sb.WriteString(" ")
			}
		}
		prev = t
		sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
	}
	return sb.String()
}
