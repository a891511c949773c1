package pipeline

import (
	"errors"
	"fmt"

	"github.com/nextconvert/cutstudio/internal/modules/segments"
)

// JobKind names a pipeline shape.
type JobKind string

const (
	JobTrim       JobKind = "trim"
	JobResize     JobKind = "resize"
	JobMerge      JobKind = "merge"
	JobAutomation JobKind = "automation"
)

var (
	ErrEmptyJob       = errors.New("job has nothing to process")
	ErrInvalidSize    = errors.New("width and height must be positive")
	ErrTooFewInputs   = errors.New("merge requires at least 2 input files")
	ErrMissingSource  = errors.New("source path is required")
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// Job describes one user-triggered run. Implemented by TrimJob, ResizeJob,
// MergeJob and AutomationJob. Jobs are not modified once submitted.
type Job interface {
	Kind() JobKind
	isJob()
}

// TrimJob cuts every segment out of Source. All outputs are final.
type TrimJob struct {
	Source   string
	Segments []segments.Segment
}

// ResizeJob scales every distinct input. PreviewDuration is passed as the
// progress hint for PreviewSource only. OutputPath applies when a single target remains.
type ResizeJob struct {
	Inputs          []string
	Width           int
	Height          int
	OutputPath      string
	PreviewSource   string
	PreviewDuration float64
}

// MergeJob concatenates user-chosen files in order.
type MergeJob struct {
	Inputs            []string
	TotalDurationHint float64
}

// AutomationJob trims Segments out of Source, merges them when there is more
// than one, resizes the result and removes the temporary files.
type AutomationJob struct {
	Source     string
	Segments   []segments.Segment
	Width      int
	Height     int
	OutputPath string
}

func (TrimJob) Kind() JobKind       { return JobTrim }
func (ResizeJob) Kind() JobKind     { return JobResize }
func (MergeJob) Kind() JobKind      { return JobMerge }
func (AutomationJob) Kind() JobKind { return JobAutomation }

func (TrimJob) isJob()       {}
func (ResizeJob) isJob()     {}
func (MergeJob) isJob()      {}
func (AutomationJob) isJob() {}

// Validate checks the shape of job before anything runs.
func Validate(job Job) error {
	switch j := job.(type) {
	case TrimJob:
		if j.Source == "" {
			return ErrMissingSource
		}
		return validateSegments(j.Segments)
	case ResizeJob:
		if len(Dedupe(j.Inputs)) == 0 {
			return ErrEmptyJob
		}
		return validateSize(j.Width, j.Height)
	case MergeJob:
		if len(j.Inputs) < 2 {
			return ErrTooFewInputs
		}
		for _, in := range j.Inputs {
			if in == "" {
				return fmt.Errorf("merge input: %w", ErrMissingSource)
			}
		}
		return nil
	case AutomationJob:
		if j.Source == "" {
			return ErrMissingSource
		}
		if err := validateSegments(j.Segments); err != nil {
			return err
		}
		return validateSize(j.Width, j.Height)
	case nil:
		return ErrEmptyJob
	default:
		return fmt.Errorf("%w: %T", ErrUnknownJobKind, job)
	}
}

func validateSegments(segs []segments.Segment) error {
	if len(segs) == 0 {
		return ErrEmptyJob
	}
	for i, s := range segs {
		if s.Start < 0 || s.Start >= s.End {
			return fmt.Errorf("segment %d: start must be before end", i+1)
		}
	}
	return nil
}

func validateSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidSize
	}
	return nil
}

// Dedupe drops repeated and empty paths, keeping first-seen order.
func Dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func totalDuration(segs []segments.Segment) float64 {
	total := 0
	for _, s := range segs {
		total += s.Duration()
	}
	return float64(total)
}
