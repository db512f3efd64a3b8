package pipeline

import "fmt"

// State is a pipeline phase.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateSegmenting
	StateGenerating
	StateAssembling
	StateExporting
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSegmenting:
		return "segmenting"
	case StateGenerating:
		return "generating"
	case StateAssembling:
		return "assembling"
	case StateExporting:
		return "exporting"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Progress is emitted on every transition and on each generated step.
type Progress struct {
	State   State
	Message string
	Step    int // 1-based, set while generating
	Total   int // step count once known
	Err     error
}

// String is the status line shown to the user.
func (p Progress) String() string {
	if p.State == StateError && p.Err != nil {
		return "Error: " + p.Err.Error()
	}
	return p.Message
}

// ProgressListener receives progress updates. Listeners run synchronously on
// the pipeline goroutine and must not block.
type ProgressListener func(p Progress)
