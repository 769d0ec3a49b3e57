package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/chunker"
	"github.com/katakuxiko/kbagent/internal/embedding"
	"github.com/katakuxiko/kbagent/internal/extract"
	"github.com/katakuxiko/kbagent/internal/model"
	"github.com/katakuxiko/kbagent/internal/service"
	"github.com/katakuxiko/kbagent/internal/store"
)

type stubGenerator struct {
	answer string
	err    error
}

func (g *stubGenerator) Answer(context.Context, string, []string) (string, error) {
	return g.answer, g.err
}

func (g *stubGenerator) ListModels(context.Context) ([]string, error) {
	return []string{"sonar"}, nil
}

type client struct {
	t      *testing.T
	app    *fiber.App
	cookie *http.Cookie
}

func newClient(t *testing.T, gen service.Generator) *client {
	t.Helper()
	ch, err := chunker.New(500, 50)
	require.NoError(t, err)
	p := &service.Pipeline{
		Embedder:  embedding.NewHashEmbedder(384),
		Chunker:   ch,
		Fetcher:   extract.NewFetcher(time.Second),
		Generator: gen,
		TopK:      3,
		Log:       zap.NewNop(),
	}
	sessions := service.NewSessions(p, func(string) store.Index { return store.NewMemory() }, time.Hour)
	app := NewApp(NewHandler(gen, zap.NewNop()), sessions, 1<<20, zap.NewNop())
	return &client{t: t, app: app}
}

func (c *client) do(req *http.Request) (int, map[string]any) {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			c.cookie = ck
		}
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(c.t, json.Unmarshal(raw, &body))
	} else {
		body = map[string]any{"raw": string(raw)}
	}
	return resp.StatusCode, body
}

func (c *client) get(path string) (int, map[string]any) {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postJSON(path, body string) (int, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return c.do(req)
}

func (c *client) upload(files map[string]string) (int, map[string]any) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		w, err := mw.CreateFormFile("file", name)
		require.NoError(c.t, err)
		_, _ = w.Write([]byte(content))
	}
	require.NoError(c.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func TestHealthAndIndex(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	status, body := c.get("/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["raw"])

	status, body = c.get("/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["raw"], "AI Knowledge Base Agent")
}

func TestAskWithoutDocuments(t *testing.T) {
	c := newClient(t, &stubGenerator{answer: "unused"})

	status, body := c.postJSON("/api/ask", `{"question": "What is the capital of France?"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(model.KindNoDocuments), body["kind"])
	assert.Equal(t, "No documents loaded. Please upload documents first.", body["error"])
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)
}

func TestUploadThenAsk(t *testing.T) {
	c := newClient(t, &stubGenerator{answer: "Paris"})

	status, body := c.upload(map[string]string{"capital.txt": "The capital of France is Paris."})
	require.Equal(t, http.StatusOK, status, body)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].(map[string]any)["status"])

	status, body = c.postJSON("/api/ask", `{"question": "What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Paris", body["answer"])
	ctxChunks := body["context"].([]any)
	require.Len(t, ctxChunks, 1)
	assert.Equal(t, "capital.txt", ctxChunks[0].(map[string]any)["source"])

	status, body = c.get("/api/history")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["history"], 1)
}

func TestSessionsAreBoundToCookies(t *testing.T) {
	c := newClient(t, &stubGenerator{answer: "Paris"})
	c.upload(map[string]string{"capital.txt": "The capital of France is Paris."})

	// a second browser with no cookie gets its own empty session
	other := &client{t: t, app: c.app}
	status, body := other.postJSON("/api/ask", `{"question": "What is the capital of France?"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(model.KindNoDocuments), body["kind"])
	assert.NotEqual(t, c.cookie.Value, other.cookie.Value)
}

func TestUploadMixedResults(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	status, body := c.upload(map[string]string{
		"notes.md":  "# Notes\n\nGo is a programming language.",
		"image.png": "not text",
	})
	assert.Equal(t, http.StatusOK, status)
	byName := map[string]map[string]any{}
	for _, r := range body["results"].([]any) {
		m := r.(map[string]any)
		byName[m["source"].(string)] = m
	}
	assert.Equal(t, "ok", byName["notes.md"]["status"])
	assert.Equal(t, "failed", byName["image.png"]["status"])
	assert.Equal(t, string(model.KindUnsupportedFormat), byName["image.png"]["kind"])

	status, body = c.get("/api/session")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["documents"], 1)
}

func TestUploadErrors(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	status, _ := c.upload(map[string]string{"image.png": "not text"})
	assert.Equal(t, http.StatusUnsupportedMediaType, status)

	status, _ = c.upload(map[string]string{"empty.txt": "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body := c.upload(map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(model.KindInvalidRequest), body["kind"])
}

func TestAddURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/article" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Berlin is the capital of Germany.</p></body></html>"))
	}))
	defer page.Close()
	c := newClient(t, &stubGenerator{})

	status, body := c.postJSON("/api/urls", `{"url": "`+page.URL+`/article"}`)
	assert.Equal(t, http.StatusOK, status, body)

	status, body = c.postJSON("/api/urls", `{"url": "`+page.URL+`/missing"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	res := body["results"].([]any)[0].(map[string]any)
	assert.Equal(t, string(model.KindFetch), res["kind"])

	_, body = c.get("/api/session")
	assert.Len(t, body["documents"], 1)
}

func TestBadRequests(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	cases := map[string][2]string{
		"not json":       {"/api/ask", `{"question":`},
		"empty question": {"/api/ask", `{"question": ""}`},
		"empty url":      {"/api/urls", `{}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			status, body := c.postJSON(tc[0], tc[1])
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, string(model.KindInvalidRequest), body["kind"])
		})
	}
}

func TestGeneratorErrorStatus(t *testing.T) {
	cases := map[model.Kind]int{
		model.KindAuth:      http.StatusUnauthorized,
		model.KindRateLimit: http.StatusTooManyRequests,
		model.KindNetwork:   http.StatusGatewayTimeout,
	}
	for kind, want := range cases {
		c := newClient(t, &stubGenerator{err: model.E(kind, "generate", errors.New("provider failed"))})
		c.upload(map[string]string{"a.txt": "Some content."})

		status, body := c.postJSON("/api/ask", `{"question": "What?"}`)
		assert.Equal(t, want, status, kind)
		assert.Equal(t, string(kind), body["kind"])
		assert.Equal(t, "provider failed", body["error"])

		_, body = c.get("/api/history")
		assert.Empty(t, body["history"])
	}
}

func TestReset(t *testing.T) {
	c := newClient(t, &stubGenerator{answer: "Paris"})
	c.upload(map[string]string{"capital.txt": "The capital of France is Paris."})
	c.postJSON("/api/ask", `{"question": "Capital?"}`)

	status, _ := c.postJSON("/api/reset", "")
	assert.Equal(t, http.StatusOK, status)

	_, body := c.get("/api/session")
	assert.Empty(t, body["documents"])
	assert.Empty(t, body["history"])
	assert.EqualValues(t, 0, body["chunks"])
}

func TestListModels(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	status, body := c.get("/api/models")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"sonar"}, body["models"])
}

func TestUnknownRoute(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	status, body := c.get("/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])
}

func TestUnknownSessionCookieGetsFreshID(t *testing.T) {
	c := newClient(t, &stubGenerator{})
	chosen := "0f8fad5b-d9cb-469f-a165-70867728950e"
	c.cookie = &http.Cookie{Name: sessionCookie, Value: chosen}

	status, body := c.get("/api/session")
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, c.cookie)
	assert.NotEqual(t, chosen, c.cookie.Value)
	assert.Equal(t, c.cookie.Value, body["id"])

	// the issued id is kept on the next request
	issued := c.cookie.Value
	_, body = c.get("/api/session")
	assert.Equal(t, issued, body["id"])
}
