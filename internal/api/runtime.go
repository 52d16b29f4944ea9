package api

import (
	"github.com/strathearn/conductor/internal/config"
	"github.com/strathearn/conductor/internal/infrastructure"
	"github.com/strathearn/conductor/pkg/pagination"
)

// Runtime extends Infrastructure with API-scoped configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Config     *config.Config
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Vector:    infra.Vector,
		},
		Config:     cfg,
		Pagination: cfg.API.Pagination,
	}
}
