package pipeline

import "fmt"

// Phase is the coarse state of a JobRun.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Status is the orchestrator state. Which fields are set depends on Phase:
// Running carries the stage index, kind and description, Succeeded the final
// path, Failed the engine's reason.
type Status struct {
	Phase       Phase     `json:"phase"`
	StageIndex  int       `json:"stageIndex,omitempty"`
	StageKind   StageKind `json:"stageKind,omitempty"`
	Description string    `json:"description,omitempty"`
	FinalPath   string    `json:"finalPath,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Terminal reports whether no further stage will run.
func (s Status) Terminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed || s.Phase == PhaseCancelled
}

func (s Status) String() string {
	switch s.Phase {
	case PhaseRunning:
		return fmt.Sprintf("running(%d, %s)", s.StageIndex, s.StageKind)
	case PhaseSucceeded:
		return fmt.Sprintf("succeeded(%s)", s.FinalPath)
	case PhaseFailed:
		return fmt.Sprintf("failed(%s)", s.Reason)
	default:
		return string(s.Phase)
	}
}

var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseRunning},
	PhaseRunning:   {PhaseRunning, PhaseSucceeded, PhaseFailed, PhaseCancelled},
	PhaseSucceeded: {PhaseIdle, PhaseRunning},
	PhaseFailed:    {PhaseIdle, PhaseRunning},
	PhaseCancelled: {PhaseIdle, PhaseRunning},
}

func canTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
