package stages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/storage"
)

// Runner lets tests stub the external text extraction command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// Extraction downloads the source file and produces the extracted text
// artifact. PDFs go through pdftotext, word documents through the OOXML
// reader, and text-based MIME types are decoded directly.
type Extraction struct {
	rt        *Runtime
	runner    Runner
	pdftotext string
	logger    *slog.Logger
}

// NewExtraction creates the text extraction executor.
func NewExtraction(rt *Runtime) *Extraction {
	pdftotext := rt.PdftotextPath
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}

	return &Extraction{
		rt:        rt,
		runner:    execRunner{},
		pdftotext: pdftotext,
		logger:    rt.Logger.With("stage", "text_extraction"),
	}
}

func (e *Extraction) Execute(ctx context.Context, in workflow.Input) (*workflow.Output, error) {
	if e.rt.MaxFileSize > 0 && in.FileSize > e.rt.MaxFileSize {
		return nil, workflow.Fatal(fmt.Errorf("file size %d exceeds limit %d", in.FileSize, e.rt.MaxFileSize))
	}

	body, err := e.rt.Storage.Download(ctx, in.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, workflow.Fatal(fmt.Errorf("source file missing: %s", in.FilePath))
		}
		return nil, workflow.Transient(fmt.Errorf("download source: %w", err))
	}
	defer body.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(body); err != nil {
		return nil, workflow.Transient(fmt.Errorf("read source: %w", err))
	}

	text, metadata, err := e.extract(ctx, in, data.Bytes())
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, workflow.Fatal(fmt.Errorf("no extractable text in %s", in.FileName))
	}

	key := ExtractedTextKey(in.DocumentID)
	if err := storage.UploadText(ctx, e.rt.Storage, key, text); err != nil {
		return nil, workflow.Transient(fmt.Errorf("upload extracted text: %w", err))
	}

	metadata["extracted_text_length"] = utf8.RuneCountInString(text)

	e.logger.Info("text extracted",
		"document_id", in.DocumentID,
		"mime_type", in.MimeType,
		"extracted_text_length", metadata["extracted_text_length"],
	)

	return &workflow.Output{
		ArtifactKey: key,
		Metadata:    metadata,
	}, nil
}

func (e *Extraction) extract(ctx context.Context, in workflow.Input, data []byte) (string, map[string]any, error) {
	switch {
	case in.MimeType == "application/pdf":
		return e.extractPDF(ctx, data)
	case in.MimeType == docxMimeType:
		text, err := parseDocx(data)
		if err != nil {
			return "", nil, workflow.Fatal(fmt.Errorf("invalid docx: %w", err))
		}
		return text, map[string]any{"method": "docx-text"}, nil
	case textMimeType(in.MimeType):
		if !utf8.Valid(data) {
			return "", nil, workflow.Fatal(fmt.Errorf("source is not valid UTF-8: %s", in.FileName))
		}
		return string(data), map[string]any{"method": "plain-text"}, nil
	default:
		return "", nil, workflow.Fatal(fmt.Errorf("unsupported mime type: %s", in.MimeType))
	}
}

func (e *Extraction) extractPDF(ctx context.Context, data []byte) (string, map[string]any, error) {
	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", nil, workflow.Fatal(fmt.Errorf("invalid pdf: %w", err))
	}

	tmp, err := os.CreateTemp("", "conductor-extract-*.pdf")
	if err != nil {
		return "", nil, workflow.Transient(fmt.Errorf("create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", nil, workflow.Transient(fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", nil, workflow.Transient(fmt.Errorf("close temp file: %w", err))
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, workflow.Fatal(fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512)))
	}

	return string(out), map[string]any{
		"method":     "pdf-text",
		"page_count": pageCount,
	}, nil
}

func textMimeType(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/x-ndjson":
		return true
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
