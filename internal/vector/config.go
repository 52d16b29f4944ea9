package vector

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds vector database client parameters. Index hosts are resolved
// per tenant, so only credentials and batching behavior live here.
type Config struct {
	APIKey         string `toml:"api_key"`
	BatchSize      int    `toml:"batch_size"`
	MaxParallel    int    `toml:"max_parallel"`
	RequestTimeout string `toml:"request_timeout"`

	// Embeddings are produced through an OpenAI-compatible endpoint before
	// upsert. The endpoint URL includes the full path.
	EmbeddingURL    string `toml:"embedding_url"`
	EmbeddingModel  string `toml:"embedding_model"`
	EmbeddingAPIKey string `toml:"embedding_api_key"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	APIKey          string
	BatchSize       string
	MaxParallel     string
	RequestTimeout  string
	EmbeddingURL    string
	EmbeddingModel  string
	EmbeddingAPIKey string
}

// RequestTimeoutDuration returns RequestTimeout as a time.Duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.MaxParallel != 0 {
		c.MaxParallel = overlay.MaxParallel
	}
	if overlay.RequestTimeout != "" {
		c.RequestTimeout = overlay.RequestTimeout
	}
	if overlay.EmbeddingURL != "" {
		c.EmbeddingURL = overlay.EmbeddingURL
	}
	if overlay.EmbeddingModel != "" {
		c.EmbeddingModel = overlay.EmbeddingModel
	}
	if overlay.EmbeddingAPIKey != "" {
		c.EmbeddingAPIKey = overlay.EmbeddingAPIKey
	}
}

func (c *Config) loadDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 200
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = 4
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.APIKey != "" {
		if v := os.Getenv(env.APIKey); v != "" {
			c.APIKey = v
		}
	}
	if env.BatchSize != "" {
		if v := os.Getenv(env.BatchSize); v != "" {
			if size, err := strconv.Atoi(v); err == nil {
				c.BatchSize = size
			}
		}
	}
	if env.MaxParallel != "" {
		if v := os.Getenv(env.MaxParallel); v != "" {
			if parallel, err := strconv.Atoi(v); err == nil {
				c.MaxParallel = parallel
			}
		}
	}
	if env.RequestTimeout != "" {
		if v := os.Getenv(env.RequestTimeout); v != "" {
			c.RequestTimeout = v
		}
	}
	if env.EmbeddingURL != "" {
		if v := os.Getenv(env.EmbeddingURL); v != "" {
			c.EmbeddingURL = v
		}
	}
	if env.EmbeddingModel != "" {
		if v := os.Getenv(env.EmbeddingModel); v != "" {
			c.EmbeddingModel = v
		}
	}
	if env.EmbeddingAPIKey != "" {
		if v := os.Getenv(env.EmbeddingAPIKey); v != "" {
			c.EmbeddingAPIKey = v
		}
	}
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch_size: %d", c.BatchSize)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("invalid max_parallel: %d", c.MaxParallel)
	}
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request_timeout: %w", err)
	}
	if c.EmbeddingURL == "" {
		return fmt.Errorf("embedding_url required")
	}
	return nil
}
