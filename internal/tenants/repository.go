package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/pagination"
	"github.com/strathearn/conductor/pkg/query"
	"github.com/strathearn/conductor/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config

	// refs caches resolved tenant references for the lifetime of the
	// process. Vector index bindings are immutable while documents are in
	// flight, so entries are never invalidated.
	refs sync.Map
}

// New creates a tenant repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "tenants"),
		pagination: pagination,
	}
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Tenant], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tenants: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	tenants, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanTenant)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}

	result := pagination.NewPageResult(tenants, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	t, err := repository.QueryOne(ctx, r.db, q, args, scanTenant)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &t, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Tenant, error) {
	if cmd.Name == "" || cmd.VectorIndexName == "" || cmd.VectorIndexHost == "" {
		return nil, ErrInvalid
	}

	q := `
		INSERT INTO tenants(id, name, vector_index_name, vector_index_host, vector_region)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, vector_index_name, vector_index_host, vector_region, active, created_at, updated_at`

	insertArgs := []any{
		uuid.New(),
		cmd.Name,
		cmd.VectorIndexName,
		cmd.VectorIndexHost,
		cmd.VectorRegion,
	}

	t, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Tenant, error) {
		return repository.QueryOne(ctx, tx, q, insertArgs, scanTenant)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("tenant created", "id", t.ID, "name", t.Name)
	return &t, nil
}

func (r *repo) Deactivate(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		"UPDATE tenants SET active = false, updated_at = now() WHERE id = $1",
		id,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("tenant deactivated", "id", id)
	return nil
}

// Resolve returns the resolved tenant reference, serving repeat lookups from
// the in-process cache. Unknown and deactivated tenants both map to
// workflow.ErrTenantNotFound so the orchestrator fails the workflow cleanly.
func (r *repo) Resolve(ctx context.Context, tenantID uuid.UUID) (*workflow.TenantRef, error) {
	if cached, ok := r.refs.Load(tenantID); ok {
		return cached.(*workflow.TenantRef), nil
	}

	t, err := r.Find(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrTenantNotFound, tenantID)
		}
		return nil, fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}

	if !t.Active {
		return nil, fmt.Errorf("%w: %s is deactivated", workflow.ErrTenantNotFound, tenantID)
	}

	ref := t.Ref()
	r.refs.Store(tenantID, ref)

	r.logger.Debug("tenant resolved", "id", tenantID, "index", ref.VectorIndexName)
	return ref, nil
}
