package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/storage"
)

// Chunking splits the extracted text into overlapping windows and writes
// them as the chunks artifact.
type Chunking struct {
	rt     *Runtime
	logger *slog.Logger
}

// NewChunking creates the chunking executor.
func NewChunking(rt *Runtime) *Chunking {
	return &Chunking{
		rt:     rt,
		logger: rt.Logger.With("stage", "chunking"),
	}
}

func (c *Chunking) Execute(ctx context.Context, in workflow.Input) (*workflow.Output, error) {
	text, err := storage.DownloadText(ctx, c.rt.Storage, ExtractedTextKey(in.DocumentID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, workflow.Fatal(fmt.Errorf("extracted text artifact missing for %s", in.DocumentID))
		}
		return nil, workflow.Transient(fmt.Errorf("download extracted text: %w", err))
	}

	chunks := Split(text, c.rt.ChunkSize, c.rt.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, workflow.Fatal(fmt.Errorf("no chunks produced for %s", in.DocumentID))
	}

	key := ChunksKey(in.DocumentID)
	if err := storage.UploadJSON(ctx, c.rt.Storage, key, chunks); err != nil {
		return nil, workflow.Transient(fmt.Errorf("upload chunks: %w", err))
	}

	c.logger.Info("text chunked",
		"document_id", in.DocumentID,
		"num_chunks", len(chunks),
		"chunk_size", c.rt.ChunkSize,
		"overlap_size", c.rt.ChunkOverlap,
	)

	return &workflow.Output{
		ArtifactKey: key,
		Metadata: map[string]any{
			"num_chunks":   len(chunks),
			"chunk_size":   c.rt.ChunkSize,
			"overlap_size": c.rt.ChunkOverlap,
			"total_tokens": totalTokens(chunks),
		},
	}, nil
}

// totalTokens estimates token usage across chunks by whitespace word
// count. Overlapping windows count their shared text once per window,
// matching what downstream inference actually consumes.
func totalTokens(chunks []Chunk) int {
	total := 0
	for _, chunk := range chunks {
		total += len(strings.Fields(chunk.Text))
	}
	return total
}

// Split windows text into rune-based chunks of the given size, with each
// chunk overlapping the previous by overlap runes. Text shorter than one
// window yields a single chunk. Returns nil for blank input.
func Split(text string, size, overlap int) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size < 1 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	step := size - overlap

	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}
