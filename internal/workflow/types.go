package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// StartRequest asks the scheduler to drive one document through the
// pipeline. File fields describe the uploaded source object; CreatedBy is
// carried for audit logging only.
type StartRequest struct {
	DocumentID uuid.UUID `json:"document_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	FilePath   string    `json:"file_path"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	CreatedBy  string    `json:"created_by"`
}

// Validate checks the request's required fields.
func (r *StartRequest) Validate() error {
	if r.DocumentID == uuid.Nil {
		return fmt.Errorf("document_id required")
	}
	if r.TenantID == uuid.Nil {
		return fmt.Errorf("tenant_id required")
	}
	if r.FilePath == "" {
		return fmt.Errorf("file_path required")
	}
	return nil
}

// Workflow result statuses.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// Result is the terminal outcome of one workflow execution.
type Result struct {
	Status     string        `json:"status"`
	DocumentID uuid.UUID     `json:"document_id"`
	FinalState DocumentState `json:"final_state"`
}
