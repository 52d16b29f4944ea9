// Package stages implements the five pipeline stage executors: text
// extraction, chunking, classification, vectorization, and summarization.
// Each executor reads its upstream artifact from blob storage and writes
// its own with overwrite semantics, so a retried stage converges on the
// same outputs.
package stages

import (
	"fmt"
	"log/slog"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/vector"
	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/storage"
)

// Runtime carries the shared dependencies stage executors draw from.
type Runtime struct {
	Storage      storage.System
	Vector       *vector.Client
	Classifier   gaconfig.AgentConfig
	Summarizer   gaconfig.AgentConfig
	ChunkSize    int
	ChunkOverlap int
	MaxFileSize  int64

	// PdftotextPath locates the pdftotext binary used for PDF sources.
	// Empty falls back to resolving "pdftotext" on PATH.
	PdftotextPath string

	Logger *slog.Logger
}

// Executors binds one executor per pipeline stage from the shared runtime.
func Executors(rt *Runtime) workflow.Executors {
	return workflow.Executors{
		TextExtraction: NewExtraction(rt),
		Chunking:       NewChunking(rt),
		Classification: NewClassification(rt),
		Vectorization:  NewVectorization(rt),
		Summarization:  NewSummarization(rt),
	}
}

// Artifact keys are fixed per document so retried stages overwrite their
// previous outputs.

// ExtractedTextKey is the blob key for a document's extracted text artifact.
func ExtractedTextKey(id uuid.UUID) string {
	return fmt.Sprintf("documents/%s/extracted_text.txt", id)
}

// ChunksKey is the blob key for a document's chunk artifact.
func ChunksKey(id uuid.UUID) string {
	return fmt.Sprintf("documents/%s/chunks.json", id)
}

// SummaryKey is the blob key for a document's summary artifact.
func SummaryKey(id uuid.UUID) string {
	return fmt.Sprintf("documents/%s/summary.txt", id)
}

// Chunk is one overlapping window of extracted text. Start and End are rune
// offsets into the extracted text.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}
