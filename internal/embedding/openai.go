package embedding

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// knownOpenAIDimensions maps embedding models to their fixed output
// vector length.
var knownOpenAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for proxies and compatible backends
	Model   string

	// Dimensions overrides the known per-model value; required for
	// models not in knownOpenAIDimensions.
	Dimensions int
}

// OpenAIClient generates embeddings through the OpenAI embeddings API.
// The underlying HTTP client pools connections; one OpenAIClient is
// shared across all requests.
type OpenAIClient struct {
	client *openai.Client
	model  string
	dims   int
	logger *slog.Logger
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the configured model.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding client: API key is required")
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = knownOpenAIDimensions[cfg.Model]
	}
	if dims == 0 {
		return nil, fmt.Errorf("openai embedding client: unknown model %q, set dimensions explicitly", cfg.Model)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dims:   dims,
		logger: logger,
	}, nil
}

// Embed returns the embedding for one text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per text, in input order. The API
// reports an index per embedding; results are placed by that index so
// the order guarantee holds even if the response is reordered.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp openai.EmbeddingResponse
	err := withRetry(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()

		var callErr error
		resp, callErr = c.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.model),
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", item.Index)
		}
		if len(item.Embedding) != c.dims {
			return nil, fmt.Errorf("openai returned %d-dimension vector, expected %d", len(item.Embedding), c.dims)
		}
		vectors[item.Index] = item.Embedding
	}

	c.logger.Debug("embedded batch", "model", c.model, "texts", len(texts))
	return vectors, nil
}

// Dimensions reports the vector length for the configured model.
func (c *OpenAIClient) Dimensions() int { return c.dims }

// Model reports the configured model name.
func (c *OpenAIClient) Model() string { return c.model }
