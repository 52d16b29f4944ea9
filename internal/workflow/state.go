package workflow

// DocumentState represents a document's position in the processing pipeline.
type DocumentState string

// Document processing states.
const (
	StateUploaded DocumentState = "uploaded"

	StateTextExtracting DocumentState = "text_extracting"
	StateTextExtracted  DocumentState = "text_extracted"
	StateChunking       DocumentState = "chunking"
	StateChunked        DocumentState = "chunked"
	StateClassifying    DocumentState = "classifying"
	StateClassified     DocumentState = "classified"
	StateVectorizing    DocumentState = "vectorizing"
	StateVectorized     DocumentState = "vectorized"
	StateSummarizing    DocumentState = "summarizing"
	StateSummarized     DocumentState = "summarized"

	StateCompleted DocumentState = "completed"
	StateFailed    DocumentState = "failed"
)

// transitions is the fixed adjacency table for the document state machine.
// Each processing state advances to its matching done state or to failed;
// failed re-enters any processing state so an external retry can resume at
// the step that broke. Completed has no outgoing edges.
var transitions = map[DocumentState][]DocumentState{
	StateUploaded: {StateTextExtracting, StateFailed},

	StateTextExtracting: {StateTextExtracted, StateFailed},
	StateTextExtracted:  {StateChunking, StateFailed},
	StateChunking:       {StateChunked, StateFailed},
	StateChunked:        {StateClassifying, StateFailed},
	StateClassifying:    {StateClassified, StateFailed},
	StateClassified:     {StateVectorizing, StateFailed},
	StateVectorizing:    {StateVectorized, StateFailed},
	StateVectorized:     {StateSummarizing, StateFailed},
	StateSummarizing:    {StateSummarized, StateFailed},
	StateSummarized:     {StateCompleted},

	StateFailed: {
		StateTextExtracting,
		StateChunking,
		StateClassifying,
		StateVectorizing,
		StateSummarizing,
	},

	StateCompleted: {},
}

// stepStates maps processing step names to their entry processing state.
var stepStates = map[string]DocumentState{
	"text_extraction": StateTextExtracting,
	"chunking":        StateChunking,
	"classification":  StateClassifying,
	"vectorization":   StateVectorizing,
	"summarization":   StateSummarizing,
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to DocumentState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the target states reachable from the given state.
func AllowedTransitions(from DocumentState) []DocumentState {
	return transitions[from]
}

// ValidateTransition returns an InvalidTransitionError if the transition is
// not in the adjacency table. Called defensively before every status write.
func ValidateTransition(from, to DocumentState) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// IsProcessingState reports whether the state indicates a stage is actively running.
func IsProcessingState(s DocumentState) bool {
	switch s {
	case StateTextExtracting, StateChunking, StateClassifying, StateVectorizing, StateSummarizing:
		return true
	}
	return false
}

// IsTerminalState reports whether the state ends automatic progression.
func IsTerminalState(s DocumentState) bool {
	return s == StateCompleted || s == StateFailed
}

// RetryState maps a failed step's name back to its entry processing state,
// for resumption. The second return is false for unrecognized step names.
func RetryState(step string) (DocumentState, bool) {
	s, ok := stepStates[step]
	return s, ok
}

// StepForState returns the processing step name for a processing state.
// The second return is false for non-processing states.
func StepForState(s DocumentState) (string, bool) {
	for step, state := range stepStates {
		if state == s {
			return step, true
		}
	}
	return "", false
}
