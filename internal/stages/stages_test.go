package stages

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/lifecycle"
	"github.com/strathearn/conductor/pkg/storage"
)

// memStorage is an in-memory storage.System for stage tests.
type memStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte

	uploadErr   error
	downloadErr error
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte)}
}

func (m *memStorage) Start(lc *lifecycle.Coordinator) error { return nil }

func (m *memStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *memStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *memStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[key]
	return ok, nil
}

// stubRunner replaces the pdftotext subprocess.
type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error

	calls int
	args  []string
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls++
	r.args = append([]string{name}, args...)

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	return r.stdout, r.stderr, r.err
}

func testRuntime(store storage.System) *Runtime {
	return &Runtime{
		Storage:      store,
		ChunkSize:    1000,
		ChunkOverlap: 100,
		MaxFileSize:  50 * 1024 * 1024,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testInput(mimeType, filePath string) workflow.Input {
	return workflow.Input{
		DocumentID: uuid.New(),
		TenantID:   uuid.New(),
		Tenant:     workflow.TenantRef{Name: "acme", VectorIndexName: "acme-index", VectorIndexHost: "acme.example.net"},
		FilePath:   filePath,
		FileName:   "source.txt",
		MimeType:   mimeType,
		FileSize:   64,
	}
}

func isFatal(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if workflow.Retryable(err) {
		t.Errorf("error should be fatal, got retryable: %v", err)
	}
}

func isTransient(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !workflow.Retryable(err) {
		t.Errorf("error should be transient, got fatal: %v", err)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    int
	}{
		{"empty text", "", 100, 10, 0},
		{"shorter than window", "short text", 100, 10, 1},
		{"exact window", strings.Repeat("a", 100), 100, 10, 1},
		{"two windows", strings.Repeat("a", 150), 100, 0, 2},
		{"overlapping windows", strings.Repeat("a", 250), 100, 50, 4},
		{"invalid overlap ignored", strings.Repeat("a", 200), 100, 100, 2},
		{"negative overlap ignored", strings.Repeat("a", 200), 100, -5, 2},
		{"zero size", "text", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.size, tt.overlap)
			if len(chunks) != tt.want {
				t.Errorf("chunk count = %d, want %d", len(chunks), tt.want)
			}
		})
	}
}

func TestSplitOffsets(t *testing.T) {
	text := strings.Repeat("a", 250)
	chunks := Split(text, 100, 50)

	wantStarts := []int{0, 50, 100, 150}
	if len(chunks) != len(wantStarts) {
		t.Fatalf("chunk count = %d, want %d", len(chunks), len(wantStarts))
	}

	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d index = %d", i, chunk.Index)
		}
		if chunk.Start != wantStarts[i] {
			t.Errorf("chunk %d start = %d, want %d", i, chunk.Start, wantStarts[i])
		}
		if chunk.End-chunk.Start != len(chunk.Text) {
			t.Errorf("chunk %d span %d-%d does not match text length %d", i, chunk.Start, chunk.End, len(chunk.Text))
		}
	}

	last := chunks[len(chunks)-1]
	if last.End != 250 {
		t.Errorf("last chunk end = %d, want 250", last.End)
	}
}

func TestSplitMultibyte(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 30)
	chunks := Split(text, 50, 10)

	var rebuilt []rune
	for _, chunk := range chunks {
		runes := []rune(chunk.Text)
		if chunk.End-chunk.Start != len(runes) {
			t.Errorf("chunk %d rune span mismatch", chunk.Index)
		}
		if chunk.Index == 0 {
			rebuilt = append(rebuilt, runes...)
		} else {
			rebuilt = append(rebuilt, runes[10:]...)
		}
	}

	if string(rebuilt) != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestChunkingExecute(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "documents/x/source/source.txt")

	text := strings.Repeat("lorem ipsum ", 200)
	if err := storage.UploadText(context.Background(), store, ExtractedTextKey(in.DocumentID), text); err != nil {
		t.Fatalf("seed text: %v", err)
	}

	out, err := NewChunking(rt).Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if out.ArtifactKey != ChunksKey(in.DocumentID) {
		t.Errorf("artifact key = %s", out.ArtifactKey)
	}

	var chunks []Chunk
	if err := storage.DownloadJSON(context.Background(), store, out.ArtifactKey, &chunks); err != nil {
		t.Fatalf("download chunks: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks written")
	}
	if out.Metadata["num_chunks"] != len(chunks) {
		t.Errorf("metadata num_chunks = %v, want %d", out.Metadata["num_chunks"], len(chunks))
	}
	if tokens, ok := out.Metadata["total_tokens"].(int); !ok || tokens == 0 {
		t.Errorf("metadata total_tokens = %v, want a positive count", out.Metadata["total_tokens"])
	}
}

func TestChunkingMissingArtifactIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	_, err := NewChunking(rt).Execute(context.Background(), testInput("text/plain", "p"))
	isFatal(t, err)
}

func TestChunkingBlankTextIsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "p")

	if err := storage.UploadText(context.Background(), store, ExtractedTextKey(in.DocumentID), ""); err != nil {
		t.Fatalf("seed text: %v", err)
	}

	_, err := NewChunking(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestExtractionPlainText(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "documents/x/source/source.txt")

	if err := storage.UploadText(context.Background(), store, in.FilePath, "  hello world  "); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	out, err := NewExtraction(rt).Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	text, err := storage.DownloadText(context.Background(), store, out.ArtifactKey)
	if err != nil {
		t.Fatalf("download text: %v", err)
	}
	if text != "hello world" {
		t.Errorf("extracted text = %q, want trimmed content", text)
	}
	if out.Metadata["method"] != "plain-text" {
		t.Errorf("method = %v, want plain-text", out.Metadata["method"])
	}
	if out.Metadata["extracted_text_length"] != 11 {
		t.Errorf("extracted_text_length = %v, want 11", out.Metadata["extracted_text_length"])
	}
}

func TestExtractionMissingSourceIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	_, err := NewExtraction(rt).Execute(context.Background(), testInput("text/plain", "documents/x/source/missing.txt"))
	isFatal(t, err)
}

func TestExtractionOversizeIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	rt.MaxFileSize = 16

	in := testInput("text/plain", "p")
	in.FileSize = 64

	_, err := NewExtraction(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestExtractionUnsupportedMimeIsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("image/png", "documents/x/source/image.png")

	if err := store.Upload(context.Background(), in.FilePath, strings.NewReader("binary"), "image/png"); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	_, err := NewExtraction(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestExtractionInvalidUTF8IsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "documents/x/source/bad.txt")

	if err := store.Upload(context.Background(), in.FilePath, bytes.NewReader([]byte{0xff, 0xfe, 0xfd}), "text/plain"); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	_, err := NewExtraction(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestExtractionEmptyTextIsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "documents/x/source/blank.txt")

	if err := storage.UploadText(context.Background(), store, in.FilePath, "   \n\t  "); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	_, err := NewExtraction(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestExtractionUploadFailureIsTransient(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "documents/x/source/source.txt")

	if err := storage.UploadText(context.Background(), store, in.FilePath, "content"); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	store.uploadErr = errors.New("service busy")

	_, err := NewExtraction(rt).Execute(context.Background(), in)
	isTransient(t, err)
}

func TestExtractionPDFFailureIsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("application/pdf", "documents/x/source/broken.pdf")

	// Not a valid PDF; page count validation rejects it before pdftotext runs.
	if err := store.Upload(context.Background(), in.FilePath, strings.NewReader("not a pdf"), "application/pdf"); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	ext := NewExtraction(rt)
	runner := &stubRunner{stdout: []byte("should not run")}
	ext.runner = runner

	_, err := ext.Execute(context.Background(), in)
	isFatal(t, err)

	if runner.calls != 0 {
		t.Errorf("pdftotext invoked %d times for invalid pdf, want 0", runner.calls)
	}
}

// buildDocx assembles a minimal OOXML word archive around the given
// document.xml body.
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	if _, err := f.Write([]byte(body)); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}

	return buf.Bytes()
}

func TestExtractionDocx(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput(
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"documents/x/source/report.docx",
	)

	docx := buildDocx(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>first paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>second</w:t><w:tab/><w:t>column</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	if err := store.Upload(context.Background(), in.FilePath, bytes.NewReader(docx), in.MimeType); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	out, err := NewExtraction(rt).Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	text, err := storage.DownloadText(context.Background(), store, out.ArtifactKey)
	if err != nil {
		t.Fatalf("download text: %v", err)
	}
	if text != "first paragraph\nsecond\tcolumn" {
		t.Errorf("extracted text = %q", text)
	}
	if out.Metadata["method"] != "docx-text" {
		t.Errorf("method = %v, want docx-text", out.Metadata["method"])
	}
}

func TestExtractionCorruptDocxIsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput(
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"documents/x/source/broken.docx",
	)

	if err := store.Upload(context.Background(), in.FilePath, strings.NewReader("not a zip"), in.MimeType); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	_, err := NewExtraction(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestExtractionPdftotextPathConfigurable(t *testing.T) {
	rt := testRuntime(newMemStorage())
	rt.PdftotextPath = "/opt/poppler/bin/pdftotext"

	if got := NewExtraction(rt).pdftotext; got != "/opt/poppler/bin/pdftotext" {
		t.Errorf("pdftotext path = %q, want configured path", got)
	}
	if got := NewExtraction(testRuntime(newMemStorage())).pdftotext; got != "pdftotext" {
		t.Errorf("default pdftotext path = %q, want pdftotext", got)
	}
}

func TestTextMimeType(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{"text/plain", true},
		{"text/csv", true},
		{"text/html", true},
		{"application/json", true},
		{"application/xml", true},
		{"application/x-ndjson", true},
		{"application/pdf", false},
		{"image/png", false},
		{"application/octet-stream", false},
	}

	for _, tt := range tests {
		if got := textMimeType(tt.mimeType); got != tt.want {
			t.Errorf("textMimeType(%q) = %v, want %v", tt.mimeType, got, tt.want)
		}
	}
}

func TestLeadText(t *testing.T) {
	if got := leadText("short", 100); got != "short" {
		t.Errorf("leadText = %q, want unchanged", got)
	}

	long := strings.Repeat("é", 200)
	got := leadText(long, 50)
	if len([]rune(got)) != 50 {
		t.Errorf("leadText rune length = %d, want 50", len([]rune(got)))
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.7, 0.7},
		{1, 1},
		{1.5, 1},
	}

	for _, tt := range tests {
		if got := clamp(tt.v, 0, 1); got != tt.want {
			t.Errorf("clamp(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestClassificationMissingArtifactIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	_, err := NewClassification(rt).Execute(context.Background(), testInput("text/plain", "p"))
	isFatal(t, err)
}

func TestClassificationEmptyChunksIsFatal(t *testing.T) {
	store := newMemStorage()
	rt := testRuntime(store)
	in := testInput("text/plain", "p")

	if err := storage.UploadJSON(context.Background(), store, ChunksKey(in.DocumentID), []Chunk{}); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}

	_, err := NewClassification(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestChunkSample(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, Text: "alpha"},
		{Index: 1, Text: "beta"},
	}

	if got := chunkSample(chunks, 100); got != "alpha\nbeta" {
		t.Errorf("chunkSample = %q, want joined chunk text", got)
	}
	if got := chunkSample(chunks, 5); got != "alpha" {
		t.Errorf("chunkSample truncated = %q, want %q", got, "alpha")
	}
}

func TestSummarizationMissingArtifactIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	_, err := NewSummarization(rt).Execute(context.Background(), testInput("text/plain", "p"))
	isFatal(t, err)
}

func TestVectorizationNoIndexHostIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	in := testInput("text/plain", "p")
	in.Tenant.VectorIndexHost = ""

	_, err := NewVectorization(rt).Execute(context.Background(), in)
	isFatal(t, err)
}

func TestVectorizationMissingChunksIsFatal(t *testing.T) {
	rt := testRuntime(newMemStorage())
	_, err := NewVectorization(rt).Execute(context.Background(), testInput("text/plain", "p"))
	isFatal(t, err)
}
