package tenants

import (
	"net/url"
	"strconv"

	"github.com/strathearn/conductor/pkg/query"
	"github.com/strathearn/conductor/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "tenants", "t").
	Project("id", "ID").
	Project("name", "Name").
	Project("vector_index_name", "VectorIndexName").
	Project("vector_index_host", "VectorIndexHost").
	Project("vector_region", "VectorRegion").
	Project("active", "Active").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field: "Name",
}

// Filters contains optional filtering criteria for tenant queries.
// Nil fields are ignored. Active uses exact matching; Name uses
// case-insensitive contains matching.
type Filters struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereContains("Name", f.Name).
		WhereEquals("Active", f.Active)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if n := values.Get("name"); n != "" {
		f.Name = &n
	}

	if a := values.Get("active"); a != "" {
		if v, err := strconv.ParseBool(a); err == nil {
			f.Active = &v
		}
	}

	return f
}

func scanTenant(s repository.Scanner) (Tenant, error) {
	var t Tenant
	err := s.Scan(
		&t.ID,
		&t.Name,
		&t.VectorIndexName,
		&t.VectorIndexHost,
		&t.VectorRegion,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}
