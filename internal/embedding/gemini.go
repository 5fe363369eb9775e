package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// DefaultGeminiDimensions matches gemini-embedding-001 truncated via
// output dimensionality (Matryoshka Representation Learning), which is
// the dimensionality the pgvector schema is provisioned for by default.
const DefaultGeminiDimensions = 768

// GeminiConfig configures the Gemini-backed client.
type GeminiConfig struct {
	APIKey     string
	Model      string // e.g. "gemini-embedding-001"
	Dimensions int    // 0 means DefaultGeminiDimensions
}

// GeminiClient generates embeddings through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	dims   int
	logger *slog.Logger
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient creates a client for the configured model.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding client: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini embedding client: model is required")
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = DefaultGeminiDimensions
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		dims:   dims,
		logger: logger,
	}, nil
}

// Embed returns the embedding for one text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per text, in input order.
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	outputDims := int32(c.dims)

	var resp *genai.EmbedContentResponse
	err := withRetry(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()

		var callErr error
		resp, callErr = c.client.Models.EmbedContent(reqCtx, c.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &outputDims,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini returned empty embedding for input %d", i)
		}
		if len(emb.Values) != c.dims {
			return nil, fmt.Errorf("gemini returned %d-dimension vector, expected %d", len(emb.Values), c.dims)
		}
		vectors[i] = emb.Values
	}

	c.logger.Debug("embedded batch", "model", c.model, "texts", len(texts))
	return vectors, nil
}

// Dimensions reports the vector length for the configured model.
func (c *GeminiClient) Dimensions() int { return c.dims }

// Model reports the configured model name.
func (c *GeminiClient) Model() string { return c.model }
