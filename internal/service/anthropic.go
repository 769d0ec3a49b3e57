package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/katakuxiko/kbagent/internal/config"
	"github.com/katakuxiko/kbagent/internal/model"
)

// AnthropicGenerator answers through the Anthropic Messages API.
type AnthropicGenerator struct {
	client      anthropic.Client
	hasKey      bool
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewAnthropicGenerator(cfg config.LLMConfig) *AnthropicGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicGenerator{
		client:      anthropic.NewClient(opts...),
		hasKey:      cfg.APIKey != "",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func (g *AnthropicGenerator) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	if !g.hasKey {
		return "", model.E(model.KindAuth, "generate", errors.New("LLM API key is not set"))
	}
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(g.maxTokens),
		Temperature: anthropic.Float(float64(g.temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(question, contexts))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("generate", apiErr.StatusCode, err)
		}
		return "", model.E(model.KindNetwork, "generate", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (g *AnthropicGenerator) ListModels(context.Context) ([]string, error) {
	return nil, ErrListModelsUnsupported
}
