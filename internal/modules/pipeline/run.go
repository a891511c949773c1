package pipeline

import "time"

// StageResult is an artifact produced by a stage. Intermediate artifacts are
// owned by the run and are removed once nothing later needs them; Removed is
// set after a cleanup Delete succeeded.
type StageResult struct {
	Kind           StageKind `json:"kind"`
	ArtifactPath   string    `json:"artifactPath"`
	IsIntermediate bool      `json:"isIntermediate"`
	Removed        bool      `json:"removed,omitempty"`
}

// JobRun is the execution record of one Job.
type JobRun struct {
	Job        Job           `json:"-"`
	Status     Status        `json:"status"`
	Artifacts  []StageResult `json:"artifacts"`
	Progress   float64       `json:"progress"`
	Warnings   []string      `json:"warnings,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt,omitempty"`
}

// Outputs lists the non-intermediate artifacts in production order.
func (r JobRun) Outputs() []string {
	var out []string
	for _, a := range r.Artifacts {
		if !a.IsIntermediate {
			out = append(out, a.ArtifactPath)
		}
	}
	return out
}

// Intermediates lists the intermediate artifacts in production order.
func (r JobRun) Intermediates() []string {
	var out []string
	for _, a := range r.Artifacts {
		if a.IsIntermediate {
			out = append(out, a.ArtifactPath)
		}
	}
	return out
}

// Kept lists the intermediate artifacts still on disk: every intermediate
// when cleanup did not run or failed.
func (r JobRun) Kept() []string {
	var out []string
	for _, a := range r.Artifacts {
		if a.IsIntermediate && !a.Removed {
			out = append(out, a.ArtifactPath)
		}
	}
	return out
}

func (r *JobRun) clone() JobRun {
	c := *r
	c.Artifacts = append([]StageResult(nil), r.Artifacts...)
	c.Warnings = append([]string(nil), r.Warnings...)
	return c
}
