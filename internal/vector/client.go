// Package vector provides a minimal HTTP client for a Pinecone-compatible
// vector database. Index hosts are per tenant; the client carries only
// credentials and batching behavior.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Vector is a single embedding with its identifier and metadata payload.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Client performs vector index operations against per-tenant index hosts.
type Client struct {
	http   *http.Client
	cfg    *Config
	logger *slog.Logger
}

// NewClient creates a vector client from the given configuration.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		cfg:    cfg,
		logger: logger.With("system", "vector"),
	}
}

// Upsert writes vectors to the index at host, splitting them into batches
// and issuing up to MaxParallel batch requests concurrently. Returns the
// total upserted count. Re-upserting the same vector IDs overwrites them,
// so retried calls converge.
func (c *Client) Upsert(ctx context.Context, host, namespace string, vectors []Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}

	batches := batch(vectors, c.cfg.BatchSize)
	counts := make([]int, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)

	for i, vecs := range batches {
		g.Go(func() error {
			count, err := c.upsertBatch(gctx, host, namespace, vecs)
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			counts[i] = count
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	c.logger.Debug("vectors upserted", "host", host, "count", total, "batches", len(batches))
	return total, nil
}

func (c *Client) upsertBatch(ctx context.Context, host, namespace string, vectors []Vector) (int, error) {
	payload, err := json.Marshal(upsertRequest{
		Vectors:   vectors,
		Namespace: namespace,
	})
	if err != nil {
		return 0, fmt.Errorf("encode upsert request: %w", err)
	}

	url := fmt.Sprintf("https://%s/vectors/upsert", host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build upsert request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var result upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode upsert response: %w", err)
	}

	return result.UpsertedCount, nil
}

func batch(vectors []Vector, size int) [][]Vector {
	batches := make([][]Vector, 0, (len(vectors)+size-1)/size)
	for start := 0; start < len(vectors); start += size {
		end := min(start+size, len(vectors))
		batches = append(batches, vectors[start:end])
	}
	return batches
}
