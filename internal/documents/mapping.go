package documents

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/query"
	"github.com/strathearn/conductor/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("id", "ID").
	Project("tenant_id", "TenantID").
	Project("file_name", "FileName").
	Project("file_path", "FilePath").
	Project("mime_type", "MimeType").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("state", "State").
	Project("current_step", "CurrentStep").
	Project("error_detail", "ErrorDetail").
	Project("created_by", "CreatedBy").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for document queries.
// Nil fields are ignored. State, TenantID, and MimeType use exact matching.
// FileName uses case-insensitive contains matching.
type Filters struct {
	State    *string    `json:"state,omitempty"`
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
	FileName *string    `json:"file_name,omitempty"`
	MimeType *string    `json:"mime_type,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("State", f.State).
		WhereEquals("TenantID", f.TenantID).
		WhereContains("FileName", f.FileName).
		WhereEquals("MimeType", f.MimeType)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("state"); s != "" {
		f.State = &s
	}

	if t := values.Get("tenant_id"); t != "" {
		if id, err := uuid.Parse(t); err == nil {
			f.TenantID = &id
		}
	}

	if fn := values.Get("file_name"); fn != "" {
		f.FileName = &fn
	}

	if mt := values.Get("mime_type"); mt != "" {
		f.MimeType = &mt
	}

	return f
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d      Document
		state  string
		detail []byte
	)

	err := s.Scan(
		&d.ID,
		&d.TenantID,
		&d.FileName,
		&d.FilePath,
		&d.MimeType,
		&d.SizeBytes,
		&d.PageCount,
		&state,
		&d.CurrentStep,
		&detail,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}

	d.State = workflow.DocumentState(state)

	if len(detail) > 0 {
		var ed workflow.ErrorDetail
		if err := json.Unmarshal(detail, &ed); err != nil {
			return d, fmt.Errorf("decode error_detail: %w", err)
		}
		d.ErrorDetail = &ed
	}

	return d, nil
}
