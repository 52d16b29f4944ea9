package api

import (
	"github.com/strathearn/conductor/internal/documents"
	"github.com/strathearn/conductor/internal/stages"
	"github.com/strathearn/conductor/internal/tenants"
	"github.com/strathearn/conductor/internal/workflow"
)

// Domain holds the domain systems and the workflow scheduler that comprise
// the API.
type Domain struct {
	Documents documents.System
	Tenants   tenants.System
	Scheduler *workflow.Scheduler
}

// NewDomain creates all domain systems from the API runtime. The document
// repository backs both the HTTP handlers and the orchestrator's status
// persistence.
func NewDomain(runtime *Runtime) (*Domain, error) {
	docsSystem := documents.New(
		runtime.Database.Connection(),
		runtime.Storage,
		runtime.Logger,
		runtime.Pagination,
	)

	tenantsSystem := tenants.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
	)

	executors := stages.Executors(&stages.Runtime{
		Storage:       runtime.Storage,
		Vector:        runtime.Vector,
		Classifier:    runtime.Config.Agents.Classifier,
		Summarizer:    runtime.Config.Agents.Summarizer,
		ChunkSize:     runtime.Config.Worker.ChunkSize,
		ChunkOverlap:  runtime.Config.Worker.ChunkOverlap,
		MaxFileSize:   runtime.Config.Worker.MaxFileSizeBytes(),
		PdftotextPath: runtime.Config.Worker.PdftotextPath,
		Logger:        runtime.Logger,
	})

	scheduler, err := workflow.NewScheduler(
		runtime.Config.Worker.Scheduler(),
		workflow.OrchestratorConfig{
			Executors: &executors,
			Status:    docsSystem,
			Metadata:  docsSystem,
			Tenants:   tenantsSystem,
			Logger:    runtime.Logger,
		},
		docsSystem,
		runtime.Logger,
	)
	if err != nil {
		return nil, err
	}

	return &Domain{
		Documents: docsSystem,
		Tenants:   tenantsSystem,
		Scheduler: scheduler,
	}, nil
}
