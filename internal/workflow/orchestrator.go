package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const statusWriteTimeout = 30 * time.Second

// OrchestratorConfig bundles the collaborators an Orchestrator requires.
type OrchestratorConfig struct {
	Executors *Executors
	Status    StatusStore
	Tenants   TenantResolver

	// Metadata is optional; when nil, stage outputs are logged but not persisted.
	Metadata MetadataRecorder

	// StageSlots, when set, bounds in-flight stage calls across every
	// execution sharing the semaphore.
	StageSlots *semaphore.Weighted

	// StagePolicies overrides the retry policy for the listed stages.
	// Stages without an entry use their defaults.
	StagePolicies map[Stage]RetryPolicy

	Logger *slog.Logger
}

// Orchestrator drives one document through the fixed five-stage pipeline,
// persisting a status write before entering each stage and after it
// completes, retrying transient failures per stage policy, and recording
// structured failure detail on exhaustion. Safe for concurrent use: all
// per-execution state is local to Run and Resume.
type Orchestrator struct {
	executors     *Executors
	status        StatusStore
	metadata      MetadataRecorder
	tenants       TenantResolver
	stageSlots    *semaphore.Weighted
	statusPolicy  RetryPolicy
	stagePolicies map[Stage]RetryPolicy
	logger        *slog.Logger
}

// NewOrchestrator validates the configuration and creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Executors == nil {
		return nil, fmt.Errorf("executors required")
	}
	if err := cfg.Executors.Validate(); err != nil {
		return nil, err
	}
	if cfg.Status == nil {
		return nil, fmt.Errorf("status store required")
	}
	if cfg.Tenants == nil {
		return nil, fmt.Errorf("tenant resolver required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		executors:     cfg.Executors,
		status:        cfg.Status,
		metadata:      cfg.Metadata,
		tenants:       cfg.Tenants,
		stageSlots:    cfg.StageSlots,
		statusPolicy:  statusRetryPolicy,
		stagePolicies: cfg.StagePolicies,
		logger:        logger.With("system", "orchestrator"),
	}, nil
}

// instance is the ephemeral per-execution state: the in-memory state
// mirror and per-stage attempt counters. It exists only for the duration
// of one run; everything needed for resumption is persisted through the
// status store.
type instance struct {
	documentID uuid.UUID
	tenantID   uuid.UUID
	current    DocumentState
	attempts   [stageCount]int
}

// Run executes the full pipeline for a freshly uploaded document.
func (o *Orchestrator) Run(ctx context.Context, req StartRequest) (*Result, error) {
	return o.run(ctx, req, StateUploaded, StageTextExtraction)
}

// Resume re-enters the pipeline for a failed document at the given entry
// processing state, skipping already-completed upstream stages. The entry
// must come from the document's recorded failure detail; callers validate
// it against RetryState before invoking.
func (o *Orchestrator) Resume(ctx context.Context, req StartRequest, entry DocumentState) (*Result, error) {
	stage, ok := StageForEntry(entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a processing state", ErrNotResumable, entry)
	}
	return o.run(ctx, req, StateFailed, stage)
}

// Continue picks the pipeline back up for a document whose execution
// stopped after a completed stage, entering the following stage. Used for
// crash recovery where the last persisted state is a done state rather
// than failed.
func (o *Orchestrator) Continue(ctx context.Context, req StartRequest, last DocumentState) (*Result, error) {
	if last == StateSummarized {
		// Only the terminal write remains.
		inst := &instance{documentID: req.DocumentID, tenantID: req.TenantID, current: last}
		logger := o.logger.With("document_id", req.DocumentID, "tenant_id", req.TenantID)

		if err := o.writeStatus(ctx, inst, logger, StateCompleted, "", StageSummarization.Name()); err != nil {
			return nil, err
		}
		return &Result{Status: ResultCompleted, DocumentID: req.DocumentID, FinalState: StateCompleted}, nil
	}

	stage, ok := nextStage(last)
	if !ok {
		return nil, fmt.Errorf("%w: no stage follows state %s", ErrNotResumable, last)
	}
	return o.run(ctx, req, last, stage)
}

func (o *Orchestrator) run(ctx context.Context, req StartRequest, current DocumentState, from Stage) (*Result, error) {
	inst := &instance{
		documentID: req.DocumentID,
		tenantID:   req.TenantID,
		current:    current,
	}

	logger := o.logger.With("document_id", req.DocumentID, "tenant_id", req.TenantID)
	logger.InfoContext(ctx, "workflow started", "from_stage", from.Name(), "state", current)

	tenant, err := o.tenants.Resolve(ctx, req.TenantID)
	if err != nil {
		wrapped := fmt.Errorf("resolve tenant %s: %w", req.TenantID, err)
		if ctx.Err() != nil {
			o.failCancelled(ctx, inst, logger, from.Name(), wrapped)
		} else {
			o.failWorkflow(ctx, inst, logger, wrapped)
		}
		return nil, wrapped
	}

	in := Input{
		DocumentID: req.DocumentID,
		TenantID:   req.TenantID,
		Tenant:     *tenant,
		FilePath:   req.FilePath,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		FileSize:   req.FileSize,
	}

	for stage := from; int(stage) < stageCount; stage++ {
		if err := o.runStage(ctx, inst, logger, stage, in); err != nil {
			return nil, err
		}
	}

	if err := o.writeStatus(ctx, inst, logger, StateCompleted, "", StageSummarization.Name()); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "workflow completed", "attempts", inst.attempts)

	return &Result{
		Status:     ResultCompleted,
		DocumentID: req.DocumentID,
		FinalState: StateCompleted,
	}, nil
}

// runStage executes one stage end to end: entering status write, executor
// invocation under retry and timeout, done status write, output metadata.
func (o *Orchestrator) runStage(ctx context.Context, inst *instance, logger *slog.Logger, stage Stage, in Input) error {
	if err := o.writeStatus(ctx, inst, logger, stage.EnteringState(), stage.Name(), stage.Name()); err != nil {
		return err
	}

	started := time.Now()
	logger.InfoContext(ctx, "stage started", "stage", stage.Name())

	out, err := o.invoke(ctx, inst, stage, in)
	if err != nil {
		o.failStage(ctx, inst, logger, stage, err)
		return fmt.Errorf("stage %s: %w", stage.Name(), err)
	}

	if err := o.writeStatus(ctx, inst, logger, stage.DoneState(), "", stage.Name()); err != nil {
		return err
	}

	o.recordOutput(ctx, logger, inst, stage, out)

	logger.InfoContext(
		ctx, "stage completed",
		"stage", stage.Name(),
		"attempts", inst.attempts[stage],
		"duration", time.Since(started),
	)
	return nil
}

// invoke runs the stage executor under its retry policy. Each attempt holds
// a stage slot for its duration and runs under the stage's hard timeout;
// an attempt that exceeds it is classified as a transient timeout unless
// the surrounding context is what expired.
func (o *Orchestrator) invoke(ctx context.Context, inst *instance, stage Stage, in Input) (*Output, error) {
	executor := o.executors.ForStage(stage)

	policy := stage.Policy()
	if override, ok := o.stagePolicies[stage]; ok {
		policy = override
	}

	var out *Output
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if o.stageSlots != nil {
			if err := o.stageSlots.Acquire(ctx, 1); err != nil {
				return err
			}
			defer o.stageSlots.Release(1)
		}

		inst.attempts[stage]++

		attemptCtx, cancel := context.WithTimeout(ctx, stage.Timeout())
		defer cancel()

		result, err := executor.Execute(attemptCtx, in)
		if err != nil {
			if attemptCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("%w (%s): %w", ErrStageTimeout, stage.Timeout(), err)
			}
			return err
		}
		if result == nil {
			result = &Output{}
		}

		out = result
		return nil
	})

	return out, err
}

// writeStatus validates the transition against the state machine, persists
// it under the status retry policy, and advances the in-memory mirror.
// A rejected transition or exhausted write is a workflow-level failure,
// except when the surrounding context was cancelled: then the failure is
// attributed to failStep so the document remains resumable.
func (o *Orchestrator) writeStatus(ctx context.Context, inst *instance, logger *slog.Logger, to DocumentState, step, failStep string) error {
	if err := ValidateTransition(inst.current, to); err != nil {
		o.failWorkflow(ctx, inst, logger, err)
		return err
	}

	err := o.statusPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		writeCtx, cancel := context.WithTimeout(ctx, statusWriteTimeout)
		defer cancel()
		return o.status.UpdateStatus(writeCtx, inst.documentID, inst.tenantID, to, step)
	})
	if err != nil {
		wrapped := fmt.Errorf("write status %s: %w", to, err)
		if ctx.Err() != nil {
			o.failCancelled(ctx, inst, logger, failStep, wrapped)
		} else {
			o.failWorkflow(ctx, inst, logger, wrapped)
		}
		return wrapped
	}

	inst.current = to
	return nil
}

// failStage records a stage failure. External cancellation overrides the
// error's own classification so the document stays retryable.
func (o *Orchestrator) failStage(ctx context.Context, inst *instance, logger *slog.Logger, stage Stage, err error) {
	detail := ErrorDetail{
		Step:      stage.Name(),
		ErrorType: errorType(err),
		Message:   err.Error(),
		Retryable: Retryable(err),
	}

	if ctx.Err() != nil {
		detail.ErrorType = ErrorTypeCancelled
		detail.Retryable = true
	}

	o.markFailed(ctx, inst, logger, detail)
}

// failCancelled records an externally cancelled execution against the
// stage that was in flight, always retryable, so the document can be
// resumed at that stage.
func (o *Orchestrator) failCancelled(ctx context.Context, inst *instance, logger *slog.Logger, step string, err error) {
	o.markFailed(ctx, inst, logger, ErrorDetail{
		Step:      step,
		ErrorType: ErrorTypeCancelled,
		Message:   err.Error(),
		Retryable: true,
	})
}

// failWorkflow records a failure that did not originate inside a recognized
// stage: tenant resolution, state machine violations, status write
// exhaustion. Never retryable automatically.
func (o *Orchestrator) failWorkflow(ctx context.Context, inst *instance, logger *slog.Logger, err error) {
	o.markFailed(ctx, inst, logger, ErrorDetail{
		Step:      "workflow",
		ErrorType: ErrorTypeWorkflow,
		Message:   err.Error(),
		Retryable: false,
	})
}

// markFailed persists the failure record. The write survives cancellation
// of the surrounding execution so a cancelled document is still marked.
func (o *Orchestrator) markFailed(ctx context.Context, inst *instance, logger *slog.Logger, detail ErrorDetail) {
	writeCtx := context.WithoutCancel(ctx)

	err := o.statusPolicy.Do(writeCtx, func(ctx context.Context, attempt int) error {
		c, cancel := context.WithTimeout(ctx, statusWriteTimeout)
		defer cancel()
		return o.status.MarkFailed(c, inst.documentID, inst.tenantID, detail)
	})
	if err != nil {
		logger.Error("failure record write failed", "step", detail.Step, "error", err)
	}

	inst.current = StateFailed

	logger.Error(
		"workflow failed",
		"step", detail.Step,
		"error_type", detail.ErrorType,
		"retryable", detail.Retryable,
		"error", detail.Message,
	)
}

// recordOutput persists stage output metadata, including the artifact
// locator when the stage produced one. Best-effort: a failed write is
// logged, never propagated.
func (o *Orchestrator) recordOutput(ctx context.Context, logger *slog.Logger, inst *instance, stage Stage, out *Output) {
	if o.metadata == nil || (out.Metadata == nil && out.ArtifactKey == "") {
		return
	}

	record := make(map[string]any, len(out.Metadata)+1)
	for k, v := range out.Metadata {
		record[k] = v
	}
	if out.ArtifactKey != "" {
		record["artifact_locator"] = out.ArtifactKey
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := o.metadata.RecordStageOutput(recordCtx, inst.documentID, stage.Name(), record); err != nil {
		logger.Warn("stage output record failed", "stage", stage.Name(), "error", err)
	}
}
