package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/go-agents/pkg/agent"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/formatting"
	"github.com/strathearn/conductor/pkg/storage"
)

// classificationPromptLimit caps how much chunk text is sent to the
// model; leading text carries the strongest type signal.
const classificationPromptLimit = 8000

const classificationPrompt = `You are a document classification assistant.
Classify the document below into a single document type such as "invoice",
"contract", "report", "correspondence", "form", or another concise label
that fits better. Respond with JSON only:

{"document_type": "<label>", "confidence_score": <0.0-1.0>, "rationale": "<one sentence>"}

Document (may be truncated):
---
%s
---`

type classificationResponse struct {
	DocumentType    string  `json:"document_type"`
	ConfidenceScore float64 `json:"confidence_score"`
	Rationale       string  `json:"rationale"`
}

// Classification asks the classifier agent for the document's type and
// confidence, sampling from the chunk artifact. It produces no artifact of
// its own; results land in stage metadata.
type Classification struct {
	rt     *Runtime
	logger *slog.Logger
}

// NewClassification creates the classification executor.
func NewClassification(rt *Runtime) *Classification {
	return &Classification{
		rt:     rt,
		logger: rt.Logger.With("stage", "classification"),
	}
}

func (c *Classification) Execute(ctx context.Context, in workflow.Input) (*workflow.Output, error) {
	var chunks []Chunk
	if err := storage.DownloadJSON(ctx, c.rt.Storage, ChunksKey(in.DocumentID), &chunks); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, workflow.Fatal(fmt.Errorf("chunks artifact missing for %s", in.DocumentID))
		}
		return nil, workflow.Transient(fmt.Errorf("download chunks: %w", err))
	}

	if len(chunks) == 0 {
		return nil, workflow.Fatal(fmt.Errorf("empty chunks artifact for %s", in.DocumentID))
	}

	a, err := agent.New(&c.rt.Classifier)
	if err != nil {
		return nil, workflow.Fatal(fmt.Errorf("create classifier agent: %w", err))
	}

	prompt := fmt.Sprintf(classificationPrompt, chunkSample(chunks, classificationPromptLimit))

	resp, err := a.Chat(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, workflow.Transient(fmt.Errorf("classifier chat: %w", err))
	}

	parsed, err := formatting.Parse[classificationResponse](resp.Content())
	if err != nil {
		return nil, workflow.Transient(fmt.Errorf("parse classification: %w", err))
	}

	if parsed.DocumentType == "" {
		return nil, workflow.Transient(fmt.Errorf("classifier returned empty document type"))
	}

	confidence := clamp(parsed.ConfidenceScore, 0, 1)

	c.logger.Info("document classified",
		"document_id", in.DocumentID,
		"document_type", parsed.DocumentType,
		"confidence_score", confidence,
		"num_chunks", len(chunks),
	)

	return &workflow.Output{
		Metadata: map[string]any{
			"document_type":    parsed.DocumentType,
			"confidence_score": confidence,
			"rationale":        parsed.Rationale,
			"num_chunks":       len(chunks),
			"model_name":       c.rt.Classifier.Model.Name,
		},
	}, nil
}

// chunkSample rebuilds a classification sample from the leading chunks.
// Window overlap repeats a little text; the sample is truncated to the
// prompt limit regardless.
func chunkSample(chunks []Chunk, limit int) string {
	var b strings.Builder
	for _, chunk := range chunks {
		if b.Len() >= limit*4 {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(chunk.Text)
	}
	return leadText(b.String(), limit)
}

func leadText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
