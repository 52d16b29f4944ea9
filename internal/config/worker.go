package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/formatting"
)

const (
	EnvWorkerMaxConcurrentWorkflows = "CONDUCTOR_WORKER_MAX_CONCURRENT_WORKFLOWS"
	EnvWorkerMaxConcurrentStages    = "CONDUCTOR_WORKER_MAX_CONCURRENT_STAGES"
	EnvWorkerChunkSize              = "CONDUCTOR_WORKER_CHUNK_SIZE"
	EnvWorkerChunkOverlap           = "CONDUCTOR_WORKER_CHUNK_OVERLAP"
	EnvWorkerMaxFileSize            = "CONDUCTOR_WORKER_MAX_FILE_SIZE"
	EnvWorkerPdftotextPath          = "CONDUCTOR_WORKER_PDFTOTEXT_PATH"
)

// WorkerConfig holds scheduler concurrency bounds and stage tuning parameters.
type WorkerConfig struct {
	MaxConcurrentWorkflows int64  `toml:"max_concurrent_workflows"`
	MaxConcurrentStages    int64  `toml:"max_concurrent_stages"`
	ChunkSize              int    `toml:"chunk_size"`
	ChunkOverlap           int    `toml:"chunk_overlap"`
	MaxFileSize            string `toml:"max_file_size"`

	// PdftotextPath locates the poppler pdftotext binary the extraction
	// stage shells out to for PDF sources.
	PdftotextPath string `toml:"pdftotext_path"`
}

// Scheduler returns the workflow scheduler configuration derived from the
// worker settings.
func (c *WorkerConfig) Scheduler() workflow.SchedulerConfig {
	return workflow.SchedulerConfig{
		MaxConcurrentWorkflows: c.MaxConcurrentWorkflows,
		MaxConcurrentStages:    c.MaxConcurrentStages,
	}
}

// MaxFileSizeBytes returns MaxFileSize as a byte count.
func (c *WorkerConfig) MaxFileSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 50 * 1024 * 1024 // 50MB fallback
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *WorkerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *WorkerConfig) Merge(overlay *WorkerConfig) {
	if overlay.MaxConcurrentWorkflows != 0 {
		c.MaxConcurrentWorkflows = overlay.MaxConcurrentWorkflows
	}
	if overlay.MaxConcurrentStages != 0 {
		c.MaxConcurrentStages = overlay.MaxConcurrentStages
	}
	if overlay.ChunkSize != 0 {
		c.ChunkSize = overlay.ChunkSize
	}
	if overlay.ChunkOverlap != 0 {
		c.ChunkOverlap = overlay.ChunkOverlap
	}
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
	if overlay.PdftotextPath != "" {
		c.PdftotextPath = overlay.PdftotextPath
	}
}

func (c *WorkerConfig) loadDefaults() {
	if c.MaxConcurrentWorkflows == 0 {
		c.MaxConcurrentWorkflows = 5
	}
	if c.MaxConcurrentStages == 0 {
		c.MaxConcurrentStages = 10
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 100
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "50MB"
	}
	if c.PdftotextPath == "" {
		c.PdftotextPath = "pdftotext"
	}
}

func (c *WorkerConfig) loadEnv() {
	if v := os.Getenv(EnvWorkerMaxConcurrentWorkflows); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxConcurrentWorkflows = n
		}
	}
	if v := os.Getenv(EnvWorkerMaxConcurrentStages); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxConcurrentStages = n
		}
	}
	if v := os.Getenv(EnvWorkerChunkSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv(EnvWorkerChunkOverlap); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkOverlap = n
		}
	}
	if v := os.Getenv(EnvWorkerMaxFileSize); v != "" {
		c.MaxFileSize = v
	}
	if v := os.Getenv(EnvWorkerPdftotextPath); v != "" {
		c.PdftotextPath = v
	}
}

func (c *WorkerConfig) validate() error {
	if c.MaxConcurrentWorkflows < 1 {
		return fmt.Errorf("invalid max_concurrent_workflows: %d", c.MaxConcurrentWorkflows)
	}
	if c.MaxConcurrentStages < 1 {
		return fmt.Errorf("invalid max_concurrent_stages: %d", c.MaxConcurrentStages)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("invalid chunk_size: %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be non-negative and smaller than chunk_size")
	}
	if _, err := formatting.ParseBytes(c.MaxFileSize); err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	return nil
}
