package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/strathearn/conductor/internal/vector"
	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/storage"
)

// Vectorization embeds the chunk artifact and upserts the vectors into the
// tenant's index. Vector IDs are derived from document id and chunk index,
// so re-running overwrites rather than duplicates.
type Vectorization struct {
	rt     *Runtime
	logger *slog.Logger
}

// NewVectorization creates the vectorization executor.
func NewVectorization(rt *Runtime) *Vectorization {
	return &Vectorization{
		rt:     rt,
		logger: rt.Logger.With("stage", "vectorization"),
	}
}

func (v *Vectorization) Execute(ctx context.Context, in workflow.Input) (*workflow.Output, error) {
	if in.Tenant.VectorIndexHost == "" {
		return nil, workflow.Fatal(fmt.Errorf("tenant %s has no vector index host", in.TenantID))
	}

	var chunks []Chunk
	if err := storage.DownloadJSON(ctx, v.rt.Storage, ChunksKey(in.DocumentID), &chunks); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, workflow.Fatal(fmt.Errorf("chunks artifact missing for %s", in.DocumentID))
		}
		return nil, workflow.Transient(fmt.Errorf("download chunks: %w", err))
	}

	if len(chunks) == 0 {
		return nil, workflow.Fatal(fmt.Errorf("empty chunks artifact for %s", in.DocumentID))
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := v.rt.Vector.Embed(ctx, texts)
	if err != nil {
		return nil, classifyVectorError(fmt.Errorf("embed chunks: %w", err))
	}

	vectors := make([]vector.Vector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = vector.Vector{
			ID:     fmt.Sprintf("%s:%d", in.DocumentID, chunk.Index),
			Values: embeddings[i],
			Metadata: map[string]any{
				"document_id": in.DocumentID.String(),
				"tenant_id":   in.TenantID.String(),
				"file_name":   in.FileName,
				"chunk_index": chunk.Index,
				"text":        chunk.Text,
			},
		}
	}

	count, err := v.rt.Vector.Upsert(ctx, in.Tenant.VectorIndexHost, in.Tenant.Name, vectors)
	if err != nil {
		return nil, classifyVectorError(fmt.Errorf("upsert vectors: %w", err))
	}

	dimension := 0
	if len(embeddings) > 0 {
		dimension = len(embeddings[0])
	}

	v.logger.Info("vectors upserted",
		"document_id", in.DocumentID,
		"index", in.Tenant.VectorIndexName,
		"num_vectors", count,
	)

	return &workflow.Output{
		Metadata: map[string]any{
			"num_vectors":      count,
			"vector_dimension": dimension,
			"index_name":       in.Tenant.VectorIndexName,
		},
	}, nil
}

func classifyVectorError(err error) error {
	if vector.Retryable(err) {
		return workflow.Transient(err)
	}
	return workflow.Fatal(err)
}
