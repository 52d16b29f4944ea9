package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/pagination"
)

// System defines the public contract for document domain operations.
// It also satisfies the workflow persistence contracts (StatusStore,
// StatusSource, MetadataRecorder) so a single repository backs both the
// API and the orchestration core.
type System interface {
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Document], error)

	Find(ctx context.Context, id uuid.UUID) (*Document, error)
	Create(ctx context.Context, cmd CreateCommand) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	StageOutputs(ctx context.Context, documentID uuid.UUID) ([]StageOutput, error)
	History(ctx context.Context, documentID uuid.UUID) ([]HistoryEntry, error)

	UpdateStatus(ctx context.Context, documentID, tenantID uuid.UUID, state workflow.DocumentState, step string) error
	MarkFailed(ctx context.Context, documentID, tenantID uuid.UUID, detail workflow.ErrorDetail) error
	Load(ctx context.Context, documentID, tenantID uuid.UUID) (*workflow.DocumentStatus, error)
	RecordStageOutput(ctx context.Context, documentID uuid.UUID, step string, output map[string]any) error
}
