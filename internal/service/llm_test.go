package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/kbagent/internal/config"
	"github.com/katakuxiko/kbagent/internal/model"
)

const chatCompletionJSON = `{
  "id": "cmpl-1",
  "object": "chat.completion",
  "model": "sonar",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "  Paris.\n"}, "finish_reason": "stop"}]
}`

func llmConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:  config.ProviderOpenAI,
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "sonar",
		MaxTokens: 256,
		Timeout:   time.Second,
	}
}

func TestOpenAIGeneratorAnswer(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionJSON))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(llmConfig(srv.URL))
	answer, err := g.Answer(context.Background(), "What is the capital of France?",
		[]string{"The capital of France is Paris.", "Berlin is in Germany."})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "sonar", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t,
		"Answer the question based only on the following context:\n"+
			"The capital of France is Paris.\n\nBerlin is in Germany.\n\n"+
			"Question: What is the capital of France?",
		got.Messages[0].Content)
}

func TestOpenAIGeneratorErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   model.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, model.KindAuth},
		{"forbidden", http.StatusForbidden, model.KindAuth},
		{"rate limited", http.StatusTooManyRequests, model.KindRateLimit},
		{"server error", http.StatusInternalServerError, model.KindNetwork},
		{"bad gateway", http.StatusBadGateway, model.KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "error"}}`))
			}))
			defer srv.Close()

			_, err := NewOpenAIGenerator(llmConfig(srv.URL)).Answer(context.Background(), "q", []string{"c"})
			require.Error(t, err)
			assert.Equal(t, tc.want, model.KindOf(err))
		})
	}
}

func TestOpenAIGeneratorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(chatCompletionJSON))
	}))
	defer srv.Close()

	cfg := llmConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	_, err := NewOpenAIGenerator(cfg).Answer(context.Background(), "q", []string{"c"})
	assert.Equal(t, model.KindNetwork, model.KindOf(err))
}

func TestOpenAIGeneratorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenAIGenerator(llmConfig(url)).Answer(context.Background(), "q", []string{"c"})
	assert.Equal(t, model.KindNetwork, model.KindOf(err))
}

func TestGeneratorMissingKey(t *testing.T) {
	for _, provider := range []string{config.ProviderPerplexity, config.ProviderOpenAI, config.ProviderAnthropic} {
		cfg := llmConfig("http://127.0.0.1:1")
		cfg.Provider = provider
		cfg.APIKey = ""
		g, err := NewGenerator(cfg)
		require.NoError(t, err)

		_, err = g.Answer(context.Background(), "q", []string{"c"})
		assert.Equal(t, model.KindAuth, model.KindOf(err), provider)
	}
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	_, err := NewGenerator(config.LLMConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestOpenAIGeneratorListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "sonar", "object": "model"}, {"id": "sonar-pro", "object": "model"}]}`))
	}))
	defer srv.Close()

	ids, err := NewOpenAIGenerator(llmConfig(srv.URL)).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sonar", "sonar-pro"}, ids)
}

func TestAnthropicGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
  "content": [{"type": "text", "text": "Paris."}],
  "stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 2}
}`))
	}))
	defer srv.Close()

	cfg := llmConfig(srv.URL + "/")
	cfg.Provider = config.ProviderAnthropic
	cfg.Model = "claude-3-5-haiku-latest"
	answer, err := NewAnthropicGenerator(cfg).Answer(context.Background(), "Capital?", []string{"Paris is the capital."})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	_, err = NewAnthropicGenerator(cfg).ListModels(context.Background())
	assert.ErrorIs(t, err, ErrListModelsUnsupported)
}

func TestAnthropicGeneratorErrors(t *testing.T) {
	cases := map[int]model.Kind{
		http.StatusUnauthorized:        model.KindAuth,
		http.StatusTooManyRequests:     model.KindRateLimit,
		http.StatusInternalServerError: model.KindNetwork,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "nope"}}`))
		}))
		cfg := llmConfig(srv.URL + "/")
		cfg.Provider = config.ProviderAnthropic

		_, err := NewAnthropicGenerator(cfg).Answer(context.Background(), "q", []string{"c"})
		assert.Equal(t, want, model.KindOf(err), status)
		srv.Close()
	}
}
