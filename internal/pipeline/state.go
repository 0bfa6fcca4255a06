package pipeline

import (
	"sync"

	"github.com/tonimelisma/orderdesk/internal/artifact"
)

// State is the pipeline's position in the submission lifecycle. There is no
// terminal state; Ready and Failed both accept a new submission.
type State int

// Pipeline states.
const (
	StateIdle State = iota
	StateSubmitting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the pipeline state. Artifact is set
// only in StateReady and Err only in StateFailed.
type Snapshot struct {
	State    State
	Artifact *artifact.Handle
	Err      error
	File     string
}

// Phase is what the modal is currently showing.
type Phase int

// Modal phases.
const (
	PhaseLoading Phase = iota
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Action is a button offered by the modal.
type Action int

// Modal actions.
const (
	ActionClose Action = iota
	ActionDownload
)

func (a Action) String() string {
	if a == ActionDownload {
		return "download"
	}

	return "close"
}

// Modal is the user-facing status dialog. Body names the artifact slot shown
// as a preview, empty when there is none.
type Modal struct {
	Visible bool
	Phase   Phase
	Title   string
	Message string
	Body    artifact.Slot
	Actions []Action
}

// User-facing modal text.
const (
	titleSessionRequired = "Session required"
	msgSessionRequired   = "Sign in to upload a spreadsheet."
	titleProcessing      = "Processing"
	msgProcessing        = "We are generating your PDF…"
	titlePreview         = "Preview"
	titleSessionExpired  = "Session expired"
	msgSessionExpired    = "Session expired. Please sign in again."
	titleFailed          = "Something went wrong"
	titleNoFile          = "No file selected"
)

// Input is the file-selection control. Select behaves like a change event:
// it reports a change only when the path differs from the current selection.
// Reset clears the selection so the same path counts as a change again.
type Input struct {
	mu   sync.Mutex
	path string
}

// Select sets the selection and reports whether it changed.
func (in *Input) Select(path string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if path == in.path {
		return false
	}

	in.path = path

	return true
}

// Reset clears the selection.
func (in *Input) Reset() {
	in.mu.Lock()
	in.path = ""
	in.mu.Unlock()
}

// Path returns the current selection.
func (in *Input) Path() string {
	in.mu.Lock()
	defer in.mu.Unlock()

	return in.path
}
