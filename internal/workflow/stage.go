package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage identifies one of the five fixed pipeline steps, in execution order.
type Stage int

// Pipeline stages in execution order.
const (
	StageTextExtraction Stage = iota
	StageChunking
	StageClassification
	StageVectorization
	StageSummarization

	stageCount = int(StageSummarization) + 1
)

var stageNames = [stageCount]string{
	"text_extraction",
	"chunking",
	"classification",
	"vectorization",
	"summarization",
}

// Name returns the stage's step name as recorded in status writes and
// failure detail.
func (s Stage) Name() string {
	return stageNames[s]
}

func (s Stage) String() string {
	return s.Name()
}

// EnteringState returns the processing state written before the stage runs.
func (s Stage) EnteringState() DocumentState {
	return stepStates[s.Name()]
}

// DoneState returns the state written after the stage completes.
func (s Stage) DoneState() DocumentState {
	switch s {
	case StageTextExtraction:
		return StateTextExtracted
	case StageChunking:
		return StateChunked
	case StageClassification:
		return StateClassified
	case StageVectorization:
		return StateVectorized
	default:
		return StateSummarized
	}
}

// Timeout returns the hard per-attempt execution limit for the stage.
// Extraction and vectorization involve the largest payloads and external
// calls, so they get the longer budget.
func (s Stage) Timeout() time.Duration {
	switch s {
	case StageTextExtraction, StageVectorization:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Policy returns the retry policy applied around the stage's executor.
func (s Stage) Policy() RetryPolicy {
	switch s {
	case StageTextExtraction, StageVectorization:
		return heavyStagePolicy
	default:
		return lightStagePolicy
	}
}

// StageForEntry maps a processing state to the stage it begins.
// The second return is false for non-processing states.
func StageForEntry(state DocumentState) (Stage, bool) {
	for i := range stageCount {
		if Stage(i).EnteringState() == state {
			return Stage(i), true
		}
	}
	return 0, false
}

// nextStage returns the stage whose entering state is reachable from the
// given non-failed state. Used to continue after a completed stage.
func nextStage(state DocumentState) (Stage, bool) {
	if state == StateFailed {
		return 0, false
	}
	for i := range stageCount {
		if CanTransition(state, Stage(i).EnteringState()) {
			return Stage(i), true
		}
	}
	return 0, false
}

// TenantRef is the resolved, read-only tenant context threaded into every
// stage call. Cached by the resolver; never invalidated by this core.
type TenantRef struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	VectorIndexName string    `json:"vector_index_name"`
	VectorIndexHost string    `json:"vector_index_host"`
	VectorRegion    string    `json:"vector_region"`
}

// Input carries the document and tenant scope handed to a stage executor.
// Stages locate upstream artifacts by document id; FilePath and MimeType
// only matter to text extraction.
type Input struct {
	DocumentID uuid.UUID
	TenantID   uuid.UUID
	Tenant     TenantRef
	FilePath   string
	FileName   string
	MimeType   string
	FileSize   int64
}

// Output reports a completed stage invocation. ArtifactKey locates the
// stage's blob output, if any; Metadata holds the stage-specific result
// fields persisted to the document's metadata record.
type Output struct {
	ArtifactKey string
	Metadata    map[string]any
}

// Executor is the contract the orchestrator calls into for one stage.
// Implementations must be idempotent under re-invocation: a retried stage
// may re-run after partially completing, so outputs use overwrite
// semantics. Implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, in Input) (*Output, error)
}

// Executors binds one executor to each pipeline stage.
type Executors struct {
	TextExtraction Executor
	Chunking       Executor
	Classification Executor
	Vectorization  Executor
	Summarization  Executor
}

// ForStage returns the executor bound to the given stage.
func (e *Executors) ForStage(s Stage) Executor {
	switch s {
	case StageTextExtraction:
		return e.TextExtraction
	case StageChunking:
		return e.Chunking
	case StageClassification:
		return e.Classification
	case StageVectorization:
		return e.Vectorization
	default:
		return e.Summarization
	}
}

// Validate confirms every stage has an executor bound.
func (e *Executors) Validate() error {
	for i := range stageCount {
		if e.ForStage(Stage(i)) == nil {
			return fmt.Errorf("no executor bound for stage %s", Stage(i))
		}
	}
	return nil
}
