// Package tenants implements the tenant domain: the registry of processing
// tenants and the resolver the orchestration core uses to bind a document to
// its tenant's vector index.
package tenants

import (
	"time"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
)

// Tenant is a registered processing tenant with its vector index bindings.
type Tenant struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	VectorIndexName string    `json:"vector_index_name"`
	VectorIndexHost string    `json:"vector_index_host"`
	VectorRegion    string    `json:"vector_region"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Ref converts the tenant record into the workflow's resolved reference.
func (t *Tenant) Ref() *workflow.TenantRef {
	return &workflow.TenantRef{
		ID:              t.ID,
		Name:            t.Name,
		VectorIndexName: t.VectorIndexName,
		VectorIndexHost: t.VectorIndexHost,
		VectorRegion:    t.VectorRegion,
	}
}

// CreateCommand carries the data needed to register a new tenant.
type CreateCommand struct {
	Name            string `json:"name"`
	VectorIndexName string `json:"vector_index_name"`
	VectorIndexHost string `json:"vector_index_host"`
	VectorRegion    string `json:"vector_region"`
}
