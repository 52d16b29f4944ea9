package documents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/repository"
)

// The status methods implement the workflow persistence contracts:
// StatusStore, StatusSource, and MetadataRecorder. All writes are plain
// UPDATEs keyed by document and tenant, so repeating a write after a
// partial failure converges on the same row state.

func (r *repo) UpdateStatus(
	ctx context.Context,
	documentID, tenantID uuid.UUID,
	state workflow.DocumentState,
	step string,
) error {
	q := `
		UPDATE documents
		SET state = $3, current_step = NULLIF($4, ''), error_detail = NULL, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`

	if err := repository.ExecExpectOne(ctx, r.db, q, documentID, tenantID, string(state), step); err != nil {
		return fmt.Errorf("update document status: %w", repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	r.recordHistory(ctx, documentID, state, step, nil)

	r.logger.Debug("status updated", "id", documentID, "state", state, "step", step)
	return nil
}

func (r *repo) MarkFailed(
	ctx context.Context,
	documentID, tenantID uuid.UUID,
	detail workflow.ErrorDetail,
) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode error detail: %w", err)
	}

	q := `
		UPDATE documents
		SET state = $3, current_step = $4, error_detail = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`

	if err := repository.ExecExpectOne(
		ctx, r.db, q,
		documentID, tenantID,
		string(workflow.StateFailed), detail.Step, payload,
	); err != nil {
		return fmt.Errorf("mark document failed: %w", repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	r.recordHistory(ctx, documentID, workflow.StateFailed, detail.Step, payload)

	r.logger.Debug("status marked failed", "id", documentID, "step", detail.Step, "error_type", detail.ErrorType)
	return nil
}

// recordHistory appends an audit row for a status transition. Best-effort:
// a failed insert is logged, never propagated, so the audit trail cannot
// block the pipeline.
func (r *repo) recordHistory(ctx context.Context, documentID uuid.UUID, state workflow.DocumentState, step string, detail []byte) {
	q := `
		INSERT INTO document_history(document_id, state, step, error_detail)
		VALUES ($1, $2, NULLIF($3, ''), $4)`

	if _, err := r.db.ExecContext(ctx, q, documentID, string(state), step, detail); err != nil {
		r.logger.Warn("history record failed", "id", documentID, "state", state, "error", err)
	}
}

// History returns the recorded status transitions for a document, oldest
// first.
func (r *repo) History(ctx context.Context, documentID uuid.UUID) ([]HistoryEntry, error) {
	q := `
		SELECT id, document_id, state, COALESCE(step, ''), error_detail, recorded_at
		FROM document_history
		WHERE document_id = $1
		ORDER BY id`

	entries, err := repository.QueryMany(
		ctx, r.db, q,
		[]any{documentID},
		func(s repository.Scanner) (HistoryEntry, error) {
			var (
				he      HistoryEntry
				state   string
				payload []byte
			)
			if err := s.Scan(&he.ID, &he.DocumentID, &state, &he.Step, &payload, &he.RecordedAt); err != nil {
				return he, err
			}
			he.State = workflow.DocumentState(state)
			if len(payload) > 0 {
				var detail workflow.ErrorDetail
				if err := json.Unmarshal(payload, &detail); err != nil {
					return he, fmt.Errorf("decode error_detail: %w", err)
				}
				he.ErrorDetail = &detail
			}
			return he, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("query document history: %w", err)
	}

	return entries, nil
}

func (r *repo) Load(ctx context.Context, documentID, tenantID uuid.UUID) (*workflow.DocumentStatus, error) {
	q := `
		SELECT state, error_detail
		FROM documents
		WHERE id = $1 AND tenant_id = $2`

	type statusRow struct {
		state  string
		detail []byte
	}

	row, err := repository.QueryOne(
		ctx, r.db, q,
		[]any{documentID, tenantID},
		func(s repository.Scanner) (statusRow, error) {
			var sr statusRow
			err := s.Scan(&sr.state, &sr.detail)
			return sr, err
		},
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	status := &workflow.DocumentStatus{
		DocumentID: documentID,
		TenantID:   tenantID,
		State:      workflow.DocumentState(row.state),
	}

	if len(row.detail) > 0 {
		var detail workflow.ErrorDetail
		if err := json.Unmarshal(row.detail, &detail); err != nil {
			return nil, fmt.Errorf("decode error_detail: %w", err)
		}
		status.ErrorDetail = &detail
	}

	return status, nil
}

func (r *repo) RecordStageOutput(
	ctx context.Context,
	documentID uuid.UUID,
	step string,
	output map[string]any,
) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encode stage output: %w", err)
	}

	q := `
		INSERT INTO document_metadata(document_id, step, output)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, step)
		DO UPDATE SET output = EXCLUDED.output, recorded_at = now()`

	if _, err := r.db.ExecContext(ctx, q, documentID, step, payload); err != nil {
		return fmt.Errorf("record stage output: %w", err)
	}

	return nil
}

// StageOutputs returns all recorded stage metadata for a document.
func (r *repo) StageOutputs(ctx context.Context, documentID uuid.UUID) ([]StageOutput, error) {
	q := `
		SELECT document_id, step, output, recorded_at
		FROM document_metadata
		WHERE document_id = $1
		ORDER BY recorded_at`

	outputs, err := repository.QueryMany(
		ctx, r.db, q,
		[]any{documentID},
		func(s repository.Scanner) (StageOutput, error) {
			var (
				so      StageOutput
				payload []byte
			)
			if err := s.Scan(&so.DocumentID, &so.Step, &payload, &so.RecordedAt); err != nil {
				return so, err
			}
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &so.Output); err != nil {
					return so, fmt.Errorf("decode stage output: %w", err)
				}
			}
			return so, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("query stage outputs: %w", err)
	}

	return outputs, nil
}
