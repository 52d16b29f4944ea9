package documents

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/pagination"
)

// fakeSystem serves canned documents and history entries. The embedded
// interface panics on anything the test does not stub.
type fakeSystem struct {
	System

	docs    map[uuid.UUID]*Document
	history map[uuid.UUID][]HistoryEntry
}

func (f *fakeSystem) Find(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (f *fakeSystem) History(ctx context.Context, documentID uuid.UUID) ([]HistoryEntry, error) {
	return f.history[documentID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHandler(sys System) *Handler {
	return NewHandler(sys, testLogger(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}, 1<<20)
}

func TestHistoryEndpoint(t *testing.T) {
	id := uuid.New()
	sys := &fakeSystem{
		docs: map[uuid.UUID]*Document{id: {ID: id, State: workflow.StateFailed}},
		history: map[uuid.UUID][]HistoryEntry{id: {
			{
				ID:         1,
				DocumentID: id,
				State:      workflow.StateTextExtracting,
				Step:       "text_extraction",
				RecordedAt: time.Now(),
			},
			{
				ID:         2,
				DocumentID: id,
				State:      workflow.StateFailed,
				Step:       "text_extraction",
				ErrorDetail: &workflow.ErrorDetail{
					Step:      "text_extraction",
					ErrorType: workflow.ErrorTypeProcessing,
					Message:   "pdftotext exited 1",
					Retryable: true,
				},
				RecordedAt: time.Now(),
			},
		}},
	}

	r := httptest.NewRequest(http.MethodGet, "/documents/"+id.String()+"/history", nil)
	r.SetPathValue("id", id.String())
	w := httptest.NewRecorder()

	testHandler(sys).History(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var entries []HistoryEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Step != "text_extraction" || entries[0].State != workflow.StateTextExtracting {
		t.Errorf("first entry = %+v, want text_extraction transition", entries[0])
	}
	if entries[1].ErrorDetail == nil || entries[1].ErrorDetail.Message != "pdftotext exited 1" {
		t.Errorf("second entry detail = %+v, want failure record", entries[1].ErrorDetail)
	}
}

func TestHistoryUnknownDocument(t *testing.T) {
	sys := &fakeSystem{docs: map[uuid.UUID]*Document{}}
	id := uuid.New()

	r := httptest.NewRequest(http.MethodGet, "/documents/"+id.String()+"/history", nil)
	r.SetPathValue("id", id.String())
	w := httptest.NewRecorder()

	testHandler(sys).History(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHistoryInvalidID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid/history", nil)
	r.SetPathValue("id", "not-a-uuid")
	w := httptest.NewRecorder()

	testHandler(&fakeSystem{}).History(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
