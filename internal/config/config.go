// Package config loads engine configuration with multi-source
// priority: environment variables (CHATFORGE_*), then an optional YAML
// file, then defaults. Validation uses sentinel errors so callers can
// branch with errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/chatforge/knowledge/internal/reindex"
	"github.com/chatforge/knowledge/internal/retrieval"
)

var (
	// ErrInvalidProvider indicates an unsupported embedding provider.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrMissingAPIKey indicates the provider API key is not set.
	ErrMissingAPIKey = errors.New("missing embedding API key")

	// ErrInvalidDimensions indicates a non-positive vector dimensionality.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrMissingDSN indicates a required PostgreSQL DSN is not set.
	ErrMissingDSN = errors.New("missing database DSN")

	// ErrInvalidConcurrency indicates a reindex concurrency outside 1..64.
	ErrInvalidConcurrency = errors.New("invalid reindex concurrency")

	// ErrInvalidThreshold indicates a similarity threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")
)

// Embedding provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Embedding configures the embedding client.
type Embedding struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// Storage holds the two PostgreSQL DSNs. The vector backend is a
// separate pool (usually a separate server) from the relational chunk
// store, so one can fail while the other serves the fallback path.
type Storage struct {
	RelationalDSN string `mapstructure:"relational_dsn"`
	VectorDSN     string `mapstructure:"vector_dsn"`
}

// Search holds retrieval defaults.
type Search struct {
	Limit     int     `mapstructure:"limit"`
	Threshold float32 `mapstructure:"threshold"`
}

// Reindex holds rebuild tuning.
type Reindex struct {
	Concurrency   int     `mapstructure:"concurrency"`
	EmbedRate     float64 `mapstructure:"embed_rate"` // embeds/sec, 0 = unlimited
	ProgressEvery int     `mapstructure:"progress_every"`
}

// Log holds logger settings.
type Log struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	JSON  bool   `mapstructure:"json"`
}

// Config is the full engine configuration.
type Config struct {
	Embedding Embedding `mapstructure:"embedding"`
	Storage   Storage   `mapstructure:"storage"`
	Search    Search    `mapstructure:"search"`
	Reindex   Reindex   `mapstructure:"reindex"`
	Log       Log       `mapstructure:"log"`
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("embedding.provider", ProviderOpenAI)
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 0) // 0 = per-model default
	v.SetDefault("search.limit", retrieval.DefaultLimit)
	v.SetDefault("search.threshold", retrieval.DefaultThreshold)
	v.SetDefault("reindex.concurrency", reindex.DefaultConcurrency)
	v.SetDefault("reindex.embed_rate", 0.0)
	v.SetDefault("reindex.progress_every", reindex.DefaultProgressEvery)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetEnvPrefix("CHATFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to Unmarshal unless bound
	// explicitly: AutomaticEnv resolves Get() lookups but never
	// registers keys, and Unmarshal only decodes registered keys.
	for _, key := range []string{
		"embedding.api_key",
		"storage.relational_dsn",
		"storage.vector_dsn",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against the engine's constraints.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: %q (want %s or %s)",
			ErrInvalidProvider, c.Embedding.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("%w: set CHATFORGE_EMBEDDING_API_KEY", ErrMissingAPIKey)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, c.Embedding.Dimensions)
	}
	if c.Storage.RelationalDSN == "" {
		return fmt.Errorf("%w: storage.relational_dsn", ErrMissingDSN)
	}
	if c.Storage.VectorDSN == "" {
		return fmt.Errorf("%w: storage.vector_dsn", ErrMissingDSN)
	}
	if c.Reindex.Concurrency < 1 || c.Reindex.Concurrency > 64 {
		return fmt.Errorf("%w: %d (want 1..64)", ErrInvalidConcurrency, c.Reindex.Concurrency)
	}
	if c.Search.Threshold <= 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidThreshold, c.Search.Threshold)
	}
	return nil
}
