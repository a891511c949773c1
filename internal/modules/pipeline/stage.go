package pipeline

import (
	"context"
	"fmt"
)

// StageKind names one engine operation.
type StageKind string

const (
	StageTrim   StageKind = "trim"
	StageMerge  StageKind = "merge"
	StageResize StageKind = "resize"
	StageDelete StageKind = "delete"
)

// Stage is one invocation of the engine. Implemented by TrimStage, MergeStage,
// ResizeStage and DeleteStage.
type Stage interface {
	Kind() StageKind
	isStage()
}

// TrimStage cuts Duration seconds starting at Start. Index disambiguates output names.
type TrimStage struct {
	Input    string
	Start    int
	Duration int
	Index    int
}

// MergeStage concatenates Inputs in order. The hint only drives progress percent.
type MergeStage struct {
	Inputs            []string
	TotalDurationHint float64
}

// ResizeStage scales Input to Width x Height. An empty Output lets the engine pick a name.
type ResizeStage struct {
	Input             string
	Width             int
	Height            int
	TotalDurationHint float64
	Output            string
}

// DeleteStage removes Paths, best effort.
type DeleteStage struct {
	Paths []string
}

func (TrimStage) Kind() StageKind   { return StageTrim }
func (MergeStage) Kind() StageKind  { return StageMerge }
func (ResizeStage) Kind() StageKind { return StageResize }
func (DeleteStage) Kind() StageKind { return StageDelete }

func (TrimStage) isStage()   {}
func (MergeStage) isStage()  {}
func (ResizeStage) isStage() {}
func (DeleteStage) isStage() {}

// Engine performs media transformations. Every call blocks until the
// underlying process finishes; progress is reported out of band.
type Engine interface {
	Trim(ctx context.Context, input string, start, duration, index int) (string, error)
	Merge(ctx context.Context, inputs []string, totalDurationHint float64) (string, error)
	Resize(ctx context.Context, input string, width, height int, totalDurationHint float64, output string) (string, error)
	Delete(ctx context.Context, paths []string) error
}

// Executor runs single stages against an Engine. It does not retry and does
// not interpret engine errors.
type Executor struct {
	engine Engine
}

// NewExecutor creates a stage executor
func NewExecutor(engine Engine) *Executor {
	return &Executor{engine: engine}
}

// Run executes stage and returns the artifact path. Delete returns "".
func (e *Executor) Run(ctx context.Context, stage Stage) (string, error) {
	switch s := stage.(type) {
	case TrimStage:
		return e.engine.Trim(ctx, s.Input, s.Start, s.Duration, s.Index)
	case MergeStage:
		return e.engine.Merge(ctx, s.Inputs, s.TotalDurationHint)
	case ResizeStage:
		return e.engine.Resize(ctx, s.Input, s.Width, s.Height, s.TotalDurationHint, s.Output)
	case DeleteStage:
		return "", e.engine.Delete(ctx, s.Paths)
	default:
		return "", fmt.Errorf("unknown stage type %T", stage)
	}
}

// StageError wraps an engine failure with the stage that produced it.
type StageError struct {
	Index int
	Kind  StageKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %d: %v", e.Kind, e.Index, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func describe(stage Stage, position, total int) string {
	switch s := stage.(type) {
	case TrimStage:
		return fmt.Sprintf("Trimming segment %d of %d", position, total)
	case MergeStage:
		return fmt.Sprintf("Merging %d clips", len(s.Inputs))
	case ResizeStage:
		if total > 1 {
			return fmt.Sprintf("Resizing file %d of %d to %dx%d", position, total, s.Width, s.Height)
		}
		return fmt.Sprintf("Resizing to %dx%d", s.Width, s.Height)
	case DeleteStage:
		return fmt.Sprintf("Removing %d temporary %s", len(s.Paths), plural(len(s.Paths), "file", "files"))
	default:
		return string(stage.Kind())
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
