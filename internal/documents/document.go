// Package documents implements the document domain for Conductor.
// It provides types, data access, and the persistence half of the
// processing pipeline: state transitions, failure details, and per-stage
// output metadata all land here.
package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
)

// Document represents a registered document with its source file reference
// and current processing state.
type Document struct {
	ID          uuid.UUID              `json:"id"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	FileName    string                 `json:"file_name"`
	FilePath    string                 `json:"file_path"`
	MimeType    string                 `json:"mime_type"`
	SizeBytes   int64                  `json:"size_bytes"`
	PageCount   *int                   `json:"page_count"`
	State       workflow.DocumentState `json:"state"`
	CurrentStep *string                `json:"current_step,omitempty"`
	ErrorDetail *workflow.ErrorDetail  `json:"error_detail,omitempty"`
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// HistoryEntry is one recorded status transition in a document's audit
// trail.
type HistoryEntry struct {
	ID          int64                  `json:"id"`
	DocumentID  uuid.UUID              `json:"document_id"`
	State       workflow.DocumentState `json:"state"`
	Step        string                 `json:"step,omitempty"`
	ErrorDetail *workflow.ErrorDetail  `json:"error_detail,omitempty"`
	RecordedAt  time.Time              `json:"recorded_at"`
}

// StageOutput is a recorded per-stage metadata row.
type StageOutput struct {
	DocumentID uuid.UUID      `json:"document_id"`
	Step       string         `json:"step"`
	Output     map[string]any `json:"output"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// CreateCommand carries the data needed to upload and register a new document.
// Data holds the raw file bytes. PageCount is optional and may be extracted
// by the caller via pdfcpu; nil values are stored as NULL.
type CreateCommand struct {
	Data      []byte
	FileName  string
	MimeType  string
	TenantID  uuid.UUID
	CreatedBy string
	PageCount *int
}

// StartRequest builds the workflow start request for a registered document.
func (d *Document) StartRequest() workflow.StartRequest {
	return workflow.StartRequest{
		DocumentID: d.ID,
		TenantID:   d.TenantID,
		FilePath:   d.FilePath,
		FileName:   d.FileName,
		MimeType:   d.MimeType,
		FileSize:   d.SizeBytes,
		CreatedBy:  d.CreatedBy,
	}
}
