// Package config loads and finalizes the Conductor service configuration
// from TOML files and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/strathearn/conductor/internal/vector"
	"github.com/strathearn/conductor/pkg/database"
	"github.com/strathearn/conductor/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvConductorEnv             = "CONDUCTOR_ENV"
	EnvConductorShutdownTimeout = "CONDUCTOR_SHUTDOWN_TIMEOUT"
	EnvConductorVersion         = "CONDUCTOR_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "CONDUCTOR_DB_HOST",
	Port:            "CONDUCTOR_DB_PORT",
	Name:            "CONDUCTOR_DB_NAME",
	User:            "CONDUCTOR_DB_USER",
	Password:        "CONDUCTOR_DB_PASSWORD",
	SSLMode:         "CONDUCTOR_DB_SSL_MODE",
	MaxOpenConns:    "CONDUCTOR_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "CONDUCTOR_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "CONDUCTOR_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "CONDUCTOR_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "CONDUCTOR_STORAGE_CONTAINER_NAME",
	ConnectionString: "CONDUCTOR_STORAGE_CONNECTION_STRING",
}

var vectorEnv = &vector.Env{
	APIKey:          "CONDUCTOR_VECTOR_API_KEY",
	BatchSize:       "CONDUCTOR_VECTOR_BATCH_SIZE",
	MaxParallel:     "CONDUCTOR_VECTOR_MAX_PARALLEL",
	RequestTimeout:  "CONDUCTOR_VECTOR_REQUEST_TIMEOUT",
	EmbeddingURL:    "CONDUCTOR_VECTOR_EMBEDDING_URL",
	EmbeddingModel:  "CONDUCTOR_VECTOR_EMBEDDING_MODEL",
	EmbeddingAPIKey: "CONDUCTOR_VECTOR_EMBEDDING_API_KEY",
}

// Config is the root configuration for the Conductor worker service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Vector          vector.Config   `toml:"vector"`
	Agents          AgentsConfig    `toml:"agents"`
	API             APIConfig       `toml:"api"`
	Worker          WorkerConfig    `toml:"worker"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the CONDUCTOR_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvConductorEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Vector.Merge(&overlay.Vector)
	c.Agents.Merge(&overlay.Agents)
	c.API.Merge(&overlay.API)
	c.Worker.Merge(&overlay.Worker)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Vector.Finalize(vectorEnv); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Agents.Finalize(); err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Worker.Finalize(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvConductorShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvConductorVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvConductorEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
