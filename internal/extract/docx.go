package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/katakuxiko/kbagent/internal/model"
)

const docxBody = "word/document.xml"

type docxExtractor struct{}

// Extract returns the paragraphs of the main document part joined by
// newlines. Headers, footers and comments are not read.
func (docxExtractor) Extract(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", model.E(model.KindParse, "extract docx", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", model.E(model.KindParse, "extract docx", err)
		}
		defer rc.Close()
		paras, err := docxParagraphs(rc)
		if err != nil {
			return "", model.E(model.KindParse, "extract docx", err)
		}
		return strings.Join(paras, "\n"), nil
	}
	return "", model.E(model.KindParse, "extract docx", errors.New("missing "+docxBody))
}

func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paras []string
		cur   strings.Builder
		inPar bool
		inRun bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				inPar = true
				cur.Reset()
			case "t":
				inRun = true
			case "tab":
				cur.WriteString("\t")
			case "br", "cr":
				cur.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				if inPar {
					paras = append(paras, cur.String())
				}
				inPar = false
			case "t":
				inRun = false
			}
		case xml.CharData:
			if inRun {
				cur.Write(el)
			}
		}
	}
	return paras, nil
}
