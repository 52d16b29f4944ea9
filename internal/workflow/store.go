package workflow

import (
	"context"

	"github.com/google/uuid"
)

// ErrorDetail is the structured failure record attached to a document while
// it is failed. Step names the stage that broke so resumption can re-enter
// there; it is cleared implicitly once a successful retry advances the
// document again.
type ErrorDetail struct {
	Step      string `json:"step"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// DocumentStatus is the orchestration core's view of a persisted document:
// its identity, last successfully written state, and failure detail if failed.
type DocumentStatus struct {
	DocumentID  uuid.UUID
	TenantID    uuid.UUID
	State       DocumentState
	ErrorDetail *ErrorDetail
}

// StatusStore is the persistence boundary for document state. Both methods
// must be idempotent under retry: the same call repeated has the same
// persisted effect. Every mutation is tenant-scoped.
type StatusStore interface {
	// UpdateStatus writes the document's new state. A non-empty step names
	// the stage being entered. Any stored failure detail is cleared.
	UpdateStatus(ctx context.Context, documentID, tenantID uuid.UUID, state DocumentState, step string) error

	// MarkFailed writes the failed state together with structured detail.
	MarkFailed(ctx context.Context, documentID, tenantID uuid.UUID, detail ErrorDetail) error
}

// StatusSource loads the persisted status view, used to validate start and
// resume requests against the document's actual last written state.
type StatusSource interface {
	Load(ctx context.Context, documentID, tenantID uuid.UUID) (*DocumentStatus, error)
}

// MetadataRecorder persists per-stage output metadata. Recording is
// best-effort from the orchestrator's perspective; a failed write never
// fails the pipeline.
type MetadataRecorder interface {
	RecordStageOutput(ctx context.Context, documentID uuid.UUID, step string, output map[string]any) error
}

// TenantResolver maps a tenant id to its resolved resource references.
// Returns ErrTenantNotFound for unknown or deactivated tenants.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) (*TenantRef, error)
}
