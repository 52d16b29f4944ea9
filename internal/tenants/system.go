package tenants

import (
	"context"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/pagination"
)

// System defines the public contract for tenant domain operations. It also
// satisfies workflow.TenantResolver for the orchestration core.
type System interface {
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Tenant], error)

	Find(ctx context.Context, id uuid.UUID) (*Tenant, error)
	Create(ctx context.Context, cmd CreateCommand) (*Tenant, error)
	Deactivate(ctx context.Context, id uuid.UUID) error

	Resolve(ctx context.Context, tenantID uuid.UUID) (*workflow.TenantRef, error)
}
