package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/JaimeStill/go-agents/pkg/agent"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/storage"
)

const (
	// summarizationPromptLimit caps how much extracted text is sent to the
	// model per summary request.
	summarizationPromptLimit = 12000

	// fallbackSummaryLength is the lead-text length used when the model
	// is unavailable.
	fallbackSummaryLength = 500
)

const summarizationPrompt = `Summarize the document below in 3 to 5 sentences.
Write plain prose, no headings or bullet points. Respond with the summary only.

Document (may be truncated):
---
%s
---`

// Summarization produces the summary artifact from the extracted text using
// the summarizer agent, falling back to lead text when the model cannot be
// reached.
type Summarization struct {
	rt     *Runtime
	logger *slog.Logger
}

// NewSummarization creates the summarization executor.
func NewSummarization(rt *Runtime) *Summarization {
	return &Summarization{
		rt:     rt,
		logger: rt.Logger.With("stage", "summarization"),
	}
}

func (s *Summarization) Execute(ctx context.Context, in workflow.Input) (*workflow.Output, error) {
	text, err := storage.DownloadText(ctx, s.rt.Storage, ExtractedTextKey(in.DocumentID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, workflow.Fatal(fmt.Errorf("extracted text artifact missing for %s", in.DocumentID))
		}
		return nil, workflow.Transient(fmt.Errorf("download extracted text: %w", err))
	}

	summary, method, err := s.summarize(ctx, text)
	if err != nil {
		return nil, err
	}

	key := SummaryKey(in.DocumentID)
	if err := storage.UploadText(ctx, s.rt.Storage, key, summary); err != nil {
		return nil, workflow.Transient(fmt.Errorf("upload summary: %w", err))
	}

	s.logger.Info("document summarized",
		"document_id", in.DocumentID,
		"method", method,
		"summary_length", utf8.RuneCountInString(summary),
	)

	return &workflow.Output{
		ArtifactKey: key,
		Metadata: map[string]any{
			"summary_length": utf8.RuneCountInString(summary),
			"method":         method,
		},
	}, nil
}

func (s *Summarization) summarize(ctx context.Context, text string) (summary, method string, err error) {
	a, err := agent.New(&s.rt.Summarizer)
	if err != nil {
		return "", "", workflow.Fatal(fmt.Errorf("create summarizer agent: %w", err))
	}

	prompt := fmt.Sprintf(summarizationPrompt, leadText(text, summarizationPromptLimit))

	resp, err := a.Chat(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}

		s.logger.Warn("summarizer unavailable, using lead text", "error", err)
		return leadText(strings.TrimSpace(text), fallbackSummaryLength), "lead-text", nil
	}

	summary = strings.TrimSpace(resp.Content())
	if summary == "" {
		return "", "", workflow.Transient(fmt.Errorf("summarizer returned empty summary"))
	}

	return summary, "model", nil
}
