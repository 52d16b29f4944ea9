// Package api assembles the control API module: domain systems, the
// workflow scheduler, and route registration.
package api

import (
	"net/http"

	"github.com/strathearn/conductor/internal/config"
	"github.com/strathearn/conductor/internal/infrastructure"
	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/middleware"
	"github.com/strathearn/conductor/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// The returned scheduler must be registered with the lifecycle coordinator
// so in-flight workflows drain on shutdown.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, *workflow.Scheduler, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(runtime)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Infrastructure.Logger))

	return m, domain.Scheduler, nil
}
