package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/kbagent/internal/config"
	"github.com/katakuxiko/kbagent/internal/model"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. Any server
// that hosts all-MiniLM-L6-v2 behind that API works (text-embeddings-inference,
// LM Studio, Ollama).
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	key := cfg.APIKey
	if key == "" {
		key = "not-needed"
	}
	oaiCfg := openai.DefaultConfig(key)
	oaiCfg.BaseURL = cfg.BaseURL

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(oaiCfg),
		model:  cfg.Model,
		dim:    cfg.Dimension,
	}
}

// Embed returns the L2-normalized embedding of text. Any failure, including
// a vector of the wrong size, is an EmbeddingError.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, model.E(model.KindEmbedding, "embed", errors.New("cannot embed empty text"))
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, model.E(model.KindEmbedding, "embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, model.E(model.KindEmbedding, "embed", errors.New("no embedding data returned"))
	}

	v := resp.Data[0].Embedding
	if len(v) != e.dim {
		return nil, model.E(model.KindEmbedding, "embed",
			fmt.Errorf("model %s returned %d dimensions, expected %d", e.model, len(v), e.dim))
	}
	out := make([]float32, len(v))
	copy(out, v)
	l2normalize(out)
	return out, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

func (e *OpenAIEmbedder) ModelInfo() string { return "openai-compatible/" + e.model }
