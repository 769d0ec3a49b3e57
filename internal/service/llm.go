package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/kbagent/internal/config"
	"github.com/katakuxiko/kbagent/internal/model"
)

const (
	PerplexityBaseURL = "https://api.perplexity.ai"

	promptTemplate = "Answer the question based only on the following context:\n%s\n\nQuestion: %s"
)

var ErrListModelsUnsupported = errors.New("model listing is not supported by this provider")

// Generator turns a question and its retrieved context into an answer using a
// remote model. A single call is made; nothing is retried.
type Generator interface {
	Answer(ctx context.Context, question string, contexts []string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// NewGenerator builds the generator for cfg.Provider.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderPerplexity:
		if cfg.BaseURL == "" {
			cfg.BaseURL = PerplexityBaseURL
		}
		return NewOpenAIGenerator(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicGenerator(cfg), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func buildPrompt(question string, contexts []string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(contexts, "\n\n"), question)
}

// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint,
// Perplexity included.
type OpenAIGenerator struct {
	client      *openai.Client
	hasKey      bool
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewOpenAIGenerator(cfg config.LLMConfig) *OpenAIGenerator {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(oaiCfg),
		hasKey:      cfg.APIKey != "",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func (g *OpenAIGenerator) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	if !g.hasKey {
		return "", model.E(model.KindAuth, "generate", errors.New("LLM API key is not set"))
	}
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	// go-openai omits a zero temperature, which would leave the provider default.
	temp := g.temperature
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(question, contexts)},
		},
		Temperature: temp,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", openAIError("generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", model.E(model.KindNetwork, "generate", errors.New("LLM returned no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) ListModels(ctx context.Context) ([]string, error) {
	if !g.hasKey {
		return nil, model.E(model.KindAuth, "list models", errors.New("LLM API key is not set"))
	}
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.ListModels(ctx)
	if err != nil {
		return nil, openAIError("list models", err)
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func openAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(op, reqErr.HTTPStatusCode, err)
	}
	return model.E(model.KindNetwork, op, err)
}

// statusError classifies a failed provider response by its HTTP status.
func statusError(op string, status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.E(model.KindAuth, op, err)
	case status == http.StatusTooManyRequests:
		return model.E(model.KindRateLimit, op, err)
	}
	return model.E(model.KindNetwork, op, err)
}
