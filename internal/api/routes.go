package api

import (
	"net/http"

	"github.com/strathearn/conductor/internal/config"
	"github.com/strathearn/conductor/internal/documents"
	"github.com/strathearn/conductor/internal/tenants"
	"github.com/strathearn/conductor/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	docsHandler := documents.NewHandler(
		domain.Documents,
		runtime.Logger,
		runtime.Pagination,
		cfg.Worker.MaxFileSizeBytes(),
	)

	tenantsHandler := tenants.NewHandler(
		domain.Tenants,
		runtime.Logger,
		runtime.Pagination,
	)

	workflows := newWorkflowHandler(domain.Documents, domain.Scheduler, runtime.Logger)
	artifacts := newArtifactHandler(runtime.Storage, runtime.Logger)

	routes.Register(
		mux,
		docsHandler.Routes(),
		tenantsHandler.Routes(),
		workflows.routes(),
		artifacts.routes(),
	)
}
