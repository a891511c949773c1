package jobs

import (
	"fmt"

	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/segments"
)

// Spec is the stored, serialisable form of a pipeline job. Which fields
// matter depends on Kind.
type Spec struct {
	Kind              pipeline.JobKind   `json:"kind"`
	Source            string             `json:"source,omitempty"`
	Inputs            []string           `json:"inputs,omitempty"`
	Segments          []segments.Segment `json:"segments,omitempty"`
	Width             int                `json:"width,omitempty"`
	Height            int                `json:"height,omitempty"`
	OutputPath        string             `json:"outputPath,omitempty"`
	PreviewSource     string             `json:"previewSource,omitempty"`
	PreviewDuration   float64            `json:"previewDuration,omitempty"`
	TotalDurationHint float64            `json:"totalDurationHint,omitempty"`
}

// Build turns the spec into a validated pipeline job.
func (s Spec) Build() (pipeline.Job, error) {
	var job pipeline.Job
	switch s.Kind {
	case pipeline.JobTrim:
		job = pipeline.TrimJob{Source: s.Source, Segments: s.Segments}
	case pipeline.JobResize:
		job = pipeline.ResizeJob{
			Inputs:          s.Inputs,
			Width:           s.Width,
			Height:          s.Height,
			OutputPath:      s.OutputPath,
			PreviewSource:   s.PreviewSource,
			PreviewDuration: s.PreviewDuration,
		}
	case pipeline.JobMerge:
		job = pipeline.MergeJob{Inputs: s.Inputs, TotalDurationHint: s.TotalDurationHint}
	case pipeline.JobAutomation:
		job = pipeline.AutomationJob{
			Source:     s.Source,
			Segments:   s.Segments,
			Width:      s.Width,
			Height:     s.Height,
			OutputPath: s.OutputPath,
		}
	default:
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownJobKind, s.Kind)
	}

	if err := pipeline.Validate(job); err != nil {
		return nil, err
	}
	return job, nil
}

// MapPaths rewrites every path in the spec with fn, stopping at the first error.
func (s Spec) MapPaths(fn func(string) (string, error)) (Spec, error) {
	var err error
	mapOne := func(p string) string {
		if p == "" || err != nil {
			return p
		}
		var out string
		out, err = fn(p)
		return out
	}

	s.Source = mapOne(s.Source)
	s.PreviewSource = mapOne(s.PreviewSource)
	s.OutputPath = mapOne(s.OutputPath)
	if len(s.Inputs) > 0 {
		inputs := make([]string, len(s.Inputs))
		for i, in := range s.Inputs {
			inputs[i] = mapOne(in)
		}
		s.Inputs = inputs
	}
	if err != nil {
		return Spec{}, err
	}
	return s, nil
}
