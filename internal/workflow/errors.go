// Package workflow implements the document processing orchestration core:
// the document state machine, per-stage retry policies, the orchestrator
// that drives one document through the fixed five-stage pipeline, and the
// scheduler that bounds concurrent executions. Stage algorithms and
// persistence live behind the Executor and StatusStore contracts.
package workflow

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for workflow operations.
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrAlreadyRunning = errors.New("workflow already running for document")
	ErrResumeMismatch = errors.New("resume state does not match recorded failure")
	ErrNotResumable   = errors.New("document state does not permit starting a workflow")
	ErrStageTimeout   = errors.New("stage exceeded its execution timeout")
	ErrShuttingDown   = errors.New("scheduler is shutting down")
)

// Error type identifiers recorded in ErrorDetail.ErrorType.
const (
	ErrorTypeProcessing = "processing_error"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeCancelled  = "cancelled"
	ErrorTypeWorkflow   = "workflow_error"
)

// InvalidTransitionError signals that a state transition outside the
// adjacency table was attempted. Always a programming or data-corruption
// signal; never retried.
type InvalidTransitionError struct {
	From DocumentState
	To   DocumentState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf(
		"invalid transition from %s to %s (allowed: %v)",
		e.From, e.To, AllowedTransitions(e.From),
	)
}

// StageError wraps an error produced by a stage executor with its retry
// classification. Executors use Transient and Fatal to classify failures;
// unclassified errors default to transient, matching the pipeline's
// bias toward retrying infrastructure hiccups.
type StageError struct {
	Type      string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable under the stage's retry policy.
func Transient(err error) error {
	return &StageError{Type: ErrorTypeProcessing, Retryable: true, Err: err}
}

// Fatal marks an error as non-retryable; the stage fails immediately
// regardless of remaining attempts.
func Fatal(err error) error {
	return &StageError{Type: ErrorTypeProcessing, Retryable: false, Err: err}
}

// Retryable reports whether an error should be retried under a stage's
// retry policy. Stage timeouts are transient; cancellation and invalid
// transitions are not.
func Retryable(err error) bool {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Retryable
	}

	var transitionErr *InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return false
	}

	switch {
	case errors.Is(err, ErrStageTimeout):
		return true
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrTenantNotFound):
		return false
	}

	return true
}

// errorType derives the ErrorDetail.ErrorType value for a stage failure.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrStageTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Type
	}

	return ErrorTypeProcessing
}
