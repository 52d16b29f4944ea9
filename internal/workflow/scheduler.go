package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/strathearn/conductor/pkg/lifecycle"
)

// SchedulerConfig bounds concurrent workflow executions. Zero values take
// the defaults: 5 live workflow instances, 10 in-flight stage calls across
// all instances.
type SchedulerConfig struct {
	MaxConcurrentWorkflows int64 `toml:"max_concurrent_workflows"`
	MaxConcurrentStages    int64 `toml:"max_concurrent_stages"`
}

func (c *SchedulerConfig) normalize() {
	if c.MaxConcurrentWorkflows <= 0 {
		c.MaxConcurrentWorkflows = 5
	}
	if c.MaxConcurrentStages <= 0 {
		c.MaxConcurrentStages = 10
	}
}

// Scheduler maps start requests to workflow executions, guaranteeing at
// most one live execution per document id and bounding total concurrency.
// Executions run on the scheduler's own context so they outlive the
// request that submitted them; shutdown cancels and drains them.
type Scheduler struct {
	orc       *Orchestrator
	source    StatusSource
	slots     *semaphore.Weighted
	instances sync.Map
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler and its Orchestrator. The stage-slot
// semaphore in ocfg is replaced with one shared across all executions.
func NewScheduler(cfg SchedulerConfig, ocfg OrchestratorConfig, source StatusSource, logger *slog.Logger) (*Scheduler, error) {
	cfg.normalize()

	if source == nil {
		return nil, fmt.Errorf("status source required")
	}

	ocfg.StageSlots = semaphore.NewWeighted(cfg.MaxConcurrentStages)

	orc, err := NewOrchestrator(ocfg)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		orc:    orc,
		source: source,
		slots:  semaphore.NewWeighted(cfg.MaxConcurrentWorkflows),
		logger: logger.With("system", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Instance is a handle on one accepted workflow execution.
type Instance struct {
	DocumentID uuid.UUID

	cancel context.CancelFunc
	done   chan struct{}
	result *Result
	err    error
}

// Done is closed when the execution reaches a terminal outcome.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Wait blocks until the execution finishes or ctx expires.
func (i *Instance) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-i.done:
		return i.result, i.err
	}
}

// Submit accepts a start request for a document. The entry point is derived
// from the document's persisted state: uploaded documents run the full
// pipeline, failed documents re-enter at the stage recorded in their
// failure detail, and documents stranded on a done state by a crash
// continue at the following stage. A second request for a document with a
// live execution is rejected with ErrAlreadyRunning.
func (s *Scheduler) Submit(ctx context.Context, req StartRequest) (*Instance, error) {
	return s.start(ctx, req, "")
}

// Resume is Submit with an explicit expected entry state: the request is
// rejected with ErrResumeMismatch unless the expectation matches the entry
// derived from the document's recorded failure detail.
func (s *Scheduler) Resume(ctx context.Context, req StartRequest, expected DocumentState) (*Instance, error) {
	return s.start(ctx, req, expected)
}

func (s *Scheduler) start(ctx context.Context, req StartRequest, expected DocumentState) (*Instance, error) {
	if s.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, live := s.instances.Load(req.DocumentID); live {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, req.DocumentID)
	}

	doc, err := s.source.Load(ctx, req.DocumentID, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", req.DocumentID, err)
	}

	execute, err := s.entryFor(req, doc, expected)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	inst := &Instance{
		DocumentID: req.DocumentID,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if _, loaded := s.instances.LoadOrStore(req.DocumentID, inst); loaded {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, req.DocumentID)
	}

	s.wg.Add(1)
	go s.execute(runCtx, inst, req, execute)

	s.logger.Info(
		"workflow accepted",
		"document_id", req.DocumentID,
		"tenant_id", req.TenantID,
		"state", doc.State,
	)
	return inst, nil
}

// entryFor selects the orchestrator entry point for the document's
// persisted state.
func (s *Scheduler) entryFor(req StartRequest, doc *DocumentStatus, expected DocumentState) (func(context.Context) (*Result, error), error) {
	switch {
	case doc.State == StateUploaded:
		if expected != "" {
			return nil, fmt.Errorf("%w: document has no recorded failure", ErrResumeMismatch)
		}
		return func(ctx context.Context) (*Result, error) {
			return s.orc.Run(ctx, req)
		}, nil

	case doc.State == StateFailed:
		if doc.ErrorDetail == nil {
			return nil, fmt.Errorf("%w: failed document has no failure detail", ErrNotResumable)
		}

		entry, ok := RetryState(doc.ErrorDetail.Step)
		if !ok {
			return nil, fmt.Errorf(
				"%w: recorded step %q does not map to a stage",
				ErrNotResumable, doc.ErrorDetail.Step,
			)
		}
		if expected != "" && expected != entry {
			return nil, fmt.Errorf(
				"%w: requested %s but recorded step %q resumes at %s",
				ErrResumeMismatch, expected, doc.ErrorDetail.Step, entry,
			)
		}

		return func(ctx context.Context) (*Result, error) {
			return s.orc.Resume(ctx, req, entry)
		}, nil

	case doc.State == StateCompleted:
		return nil, fmt.Errorf("%w: document already completed", ErrNotResumable)

	case IsProcessingState(doc.State):
		// No live instance but a processing state persisted: a crash
		// mid-stage. Requires an operator to mark the document failed
		// before it can be resumed.
		return nil, fmt.Errorf("%w: document stranded in %s", ErrNotResumable, doc.State)

	default:
		if expected != "" {
			return nil, fmt.Errorf("%w: document has no recorded failure", ErrResumeMismatch)
		}
		return func(ctx context.Context) (*Result, error) {
			return s.orc.Continue(ctx, req, doc.State)
		}, nil
	}
}

func (s *Scheduler) execute(ctx context.Context, inst *Instance, req StartRequest, run func(context.Context) (*Result, error)) {
	defer s.wg.Done()
	defer s.instances.Delete(inst.DocumentID)
	defer inst.cancel()

	finish := func(result *Result, err error) {
		inst.result, inst.err = result, err
		close(inst.done)
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		finish(nil, fmt.Errorf("acquire workflow slot: %w", err))
		return
	}
	defer s.slots.Release(1)

	result, err := run(ctx)
	if err != nil {
		finish(&Result{
			Status:     ResultFailed,
			DocumentID: req.DocumentID,
			FinalState: StateFailed,
		}, err)
		return
	}

	finish(result, nil)
}

// Cancel signals the live execution for a document to stop. The in-flight
// stage call observes the cancellation and the document is marked failed
// with a retryable cancelled record. Returns false when no execution is live.
func (s *Scheduler) Cancel(documentID uuid.UUID) bool {
	v, ok := s.instances.Load(documentID)
	if !ok {
		return false
	}

	v.(*Instance).cancel()
	s.logger.Info("workflow cancellation requested", "document_id", documentID)
	return true
}

// Running reports whether a live execution exists for the document.
func (s *Scheduler) Running(documentID uuid.UUID) bool {
	_, ok := s.instances.Load(documentID)
	return ok
}

// Start registers the scheduler's drain hook with the lifecycle coordinator.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting scheduler")

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.Shutdown()
	})

	return nil
}

// Shutdown cancels every live execution and waits for them to drain.
func (s *Scheduler) Shutdown() {
	s.logger.Info("draining workflows")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
