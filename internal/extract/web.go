package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/katakuxiko/kbagent/internal/model"
)

const maxPageBytes = 10 << 20

// Fetcher downloads a web page and returns its readable text.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch performs one GET. Any transport failure, non-2xx status or unusable
// URL is a FetchError; an empty page is a ParseError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", model.E(model.KindFetch, "fetch", err)
	}
	req.Header.Set("User-Agent", "kbagent/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", model.E(model.KindFetch, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.Ef(model.KindFetch, "fetch", "GET %s: %s", u.Redacted(), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", model.E(model.KindFetch, "fetch", err)
	}

	var txt string
	if isPlainText(resp.Header.Get("Content-Type")) {
		txt, err = plainExtractor{}.Extract(body)
	} else {
		txt, err = htmlExtractor{}.Extract(body)
	}
	if err != nil {
		return "", err
	}
	return nonEmpty(u.Redacted(), Clean(txt))
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, model.E(model.KindFetch, "fetch", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, model.Ef(model.KindFetch, "fetch", "unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, model.E(model.KindFetch, "fetch", errors.New("url has no host"))
	}
	return u, nil
}

func isPlainText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/plain"
}

type htmlExtractor struct{}

// Extract drops script and style elements, then normalizes the remaining text:
// every line is trimmed, split on double spaces, and the non-empty phrases are
// joined with single spaces.
func (htmlExtractor) Extract(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", model.E(model.KindParse, "extract html", err)
	}
	var raw strings.Builder
	collectText(doc, &raw)
	return normalizePhrases(raw.String()), nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && isBlock(n.DataAtom) {
		sb.WriteString("\n")
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Tr, atom.Section, atom.Article,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Title, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}

func normalizePhrases(s string) string {
	var phrases []string
	for _, line := range strings.Split(s, "\n") {
		for _, p := range strings.Split(strings.TrimSpace(line), "  ") {
			if p = strings.TrimSpace(p); p != "" {
				phrases = append(phrases, p)
			}
		}
	}
	return strings.Join(phrases, " ")
}
