// Package pipeline sequences trim, merge, resize and delete stages for a job
// and tracks the artifacts they produce.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nextconvert/cutstudio/internal/modules/progress"
	"go.uber.org/zap"
)

var (
	ErrJobAlreadyRunning = errors.New("a job is already running")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CleanupPolicy decides what happens to intermediate artifacts when a job
// does not succeed.
type CleanupPolicy int

const (
	// KeepOnFailure leaves intermediate artifacts on disk after a failure or cancellation.
	KeepOnFailure CleanupPolicy = iota
	// CleanupOnFailure deletes intermediate artifacts before reporting a failure or cancellation.
	CleanupOnFailure
)

func (p CleanupPolicy) String() string {
	if p == CleanupOnFailure {
		return "cleanup_on_failure"
	}
	return "keep_on_failure"
}

// Observer is notified about run progress. Calls are made from the goroutine
// running the job, never while the orchestrator holds its lock.
type Observer interface {
	StatusChanged(run JobRun)
	StageFinished(kind StageKind, elapsed time.Duration, err error)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCleanupPolicy sets the failure cleanup policy. Default is KeepOnFailure.
func WithCleanupPolicy(policy CleanupPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// WithObserver adds an observer
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, obs)
	}
}

// Orchestrator runs one job at a time. Stages execute strictly in sequence
// and the progress channel is reset before each of them.
type Orchestrator struct {
	exec      *Executor
	progress  *progress.Channel
	logger    *zap.Logger
	policy    CleanupPolicy
	observers []Observer

	mu     sync.Mutex
	active bool
	run    *JobRun
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(exec *Executor, ch *progress.Channel, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:     exec,
		progress: ch,
		logger:   logger,
		policy:   KeepOnFailure,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns a copy of the current run. Before any job it reports Idle.
func (o *Orchestrator) Snapshot() JobRun {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil {
		return JobRun{Status: Status{Phase: PhaseIdle}}
	}
	return o.run.clone()
}

// Reset discards a finished run and returns to Idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active {
		return ErrJobAlreadyRunning
	}
	o.run = nil
	return nil
}

// Run executes job to completion. The returned run is the final snapshot.
// The error is nil only when the run succeeded; a failed stage yields a
// *StageError and cancellation yields the context error.
func (o *Orchestrator) Run(ctx context.Context, job Job) (JobRun, error) {
	if err := Validate(job); err != nil {
		return o.Snapshot(), err
	}

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return JobRun{}, ErrJobAlreadyRunning
	}
	o.active = true
	o.run = &JobRun{
		Job:       job,
		Status:    Status{Phase: PhaseIdle},
		StartedAt: time.Now(),
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}()

	unsubscribe := o.progress.Subscribe(o.mirrorProgress)
	defer unsubscribe()

	o.logger.Info("Job started", zap.String("kind", string(job.Kind())), zap.String("cleanup_policy", o.policy.String()))

	x := &execution{}
	var err error
	switch j := job.(type) {
	case TrimJob:
		err = o.runTrim(ctx, x, j)
	case ResizeJob:
		err = o.runResize(ctx, x, j)
	case MergeJob:
		err = o.runMerge(ctx, x, j)
	case AutomationJob:
		err = o.runAutomation(ctx, x, j)
	}

	if err != nil {
		return o.abort(ctx, x, err)
	}
	o.finish(Status{Phase: PhaseSucceeded, FinalPath: x.final})
	return o.Snapshot(), nil
}

type execution struct {
	stages int
	final  string
}

func (o *Orchestrator) runTrim(ctx context.Context, x *execution, job TrimJob) error {
	for i, seg := range job.Segments {
		stage := TrimStage{Input: job.Source, Start: seg.Start, Duration: seg.Duration(), Index: i + 1}
		out, err := o.runStage(ctx, x, stage, describe(stage, i+1, len(job.Segments)), false)
		if err != nil {
			return err
		}
		x.final = out
	}
	return nil
}

func (o *Orchestrator) runResize(ctx context.Context, x *execution, job ResizeJob) error {
	targets := Dedupe(job.Inputs)
	for i, input := range targets {
		hint := 0.0
		if job.PreviewSource != "" && input == job.PreviewSource {
			hint = job.PreviewDuration
		}
		output := ""
		if len(targets) == 1 {
			output = job.OutputPath
		}

		stage := ResizeStage{Input: input, Width: job.Width, Height: job.Height, TotalDurationHint: hint, Output: output}
		out, err := o.runStage(ctx, x, stage, describe(stage, i+1, len(targets)), false)
		if err != nil {
			return err
		}
		x.final = out
	}
	return nil
}

func (o *Orchestrator) runMerge(ctx context.Context, x *execution, job MergeJob) error {
	stage := MergeStage{Inputs: job.Inputs, TotalDurationHint: job.TotalDurationHint}
	out, err := o.runStage(ctx, x, stage, describe(stage, 1, 1), false)
	if err != nil {
		return err
	}
	x.final = out
	return nil
}

func (o *Orchestrator) runAutomation(ctx context.Context, x *execution, job AutomationJob) error {
	hint := totalDuration(job.Segments)

	trims := make([]string, 0, len(job.Segments))
	for i, seg := range job.Segments {
		stage := TrimStage{Input: job.Source, Start: seg.Start, Duration: seg.Duration(), Index: i + 1}
		out, err := o.runStage(ctx, x, stage, describe(stage, i+1, len(job.Segments)), true)
		if err != nil {
			return err
		}
		trims = append(trims, out)
	}

	resizeInput := trims[0]
	if len(trims) > 1 {
		stage := MergeStage{Inputs: trims, TotalDurationHint: hint}
		merged, err := o.runStage(ctx, x, stage, describe(stage, 1, 1), true)
		if err != nil {
			return err
		}
		resizeInput = merged
	}

	stage := ResizeStage{
		Input:             resizeInput,
		Width:             job.Width,
		Height:            job.Height,
		TotalDurationHint: hint,
		Output:            job.OutputPath,
	}
	out, err := o.runStage(ctx, x, stage, describe(stage, 1, 1), false)
	if err != nil {
		return err
	}
	x.final = out

	o.cleanup(ctx, x)
	return nil
}

// runStage resets progress, publishes the Running status and executes stage.
// An artifact from a stage that returns after ctx was cancelled is recorded as
// intermediate and the cancellation is reported instead.
func (o *Orchestrator) runStage(ctx context.Context, x *execution, stage Stage, description string, intermediate bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	x.stages++
	o.progress.Reset()
	o.setStatus(Status{
		Phase:       PhaseRunning,
		StageIndex:  x.stages,
		StageKind:   stage.Kind(),
		Description: description,
	})

	started := time.Now()
	out, err := o.exec.Run(ctx, stage)
	elapsed := time.Since(started)
	o.notifyStage(stage.Kind(), elapsed, err)

	if err != nil {
		o.logger.Warn("Stage failed",
			zap.Int("stage", x.stages),
			zap.String("kind", string(stage.Kind())),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &StageError{Index: x.stages, Kind: stage.Kind(), Err: err}
	}

	if stage.Kind() == StageDelete {
		return "", nil
	}

	cancelled := ctx.Err() != nil
	o.mu.Lock()
	o.run.Artifacts = append(o.run.Artifacts, StageResult{
		Kind:           stage.Kind(),
		ArtifactPath:   out,
		IsIntermediate: intermediate || cancelled,
	})
	o.mu.Unlock()

	o.logger.Info("Stage completed",
		zap.Int("stage", x.stages),
		zap.String("kind", string(stage.Kind())),
		zap.String("artifact", out),
		zap.Duration("elapsed", elapsed),
	)

	if cancelled {
		return out, ctx.Err()
	}
	return out, nil
}

// cleanup deletes every intermediate artifact in one Delete stage. Errors
// are recorded as warnings and never fail the run.
func (o *Orchestrator) cleanup(ctx context.Context, x *execution) {
	o.mu.Lock()
	paths := o.run.Intermediates()
	o.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	stage := DeleteStage{Paths: paths}
	if _, err := o.runStage(context.WithoutCancel(ctx), x, stage, describe(stage, 1, 1), false); err != nil {
		o.logger.Warn("Cleanup incomplete", zap.Strings("paths", paths), zap.Error(err))
		o.mu.Lock()
		o.run.Warnings = append(o.run.Warnings, fmt.Sprintf("cleanup: %v", errors.Unwrap(err)))
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	for i := range o.run.Artifacts {
		if o.run.Artifacts[i].IsIntermediate {
			o.run.Artifacts[i].Removed = true
		}
	}
	o.mu.Unlock()
}

func (o *Orchestrator) abort(ctx context.Context, x *execution, err error) (JobRun, error) {
	cancelled := ctx.Err() != nil && errors.Is(err, ctx.Err())

	if o.policy == CleanupOnFailure {
		o.cleanup(ctx, x)
	}

	if cancelled {
		o.finish(Status{Phase: PhaseCancelled, Reason: "cancelled"})
		return o.Snapshot(), err
	}

	reason := err.Error()
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		reason = stageErr.Err.Error()
	}
	o.finish(Status{Phase: PhaseFailed, Reason: reason})
	return o.Snapshot(), err
}

func (o *Orchestrator) finish(status Status) {
	o.mu.Lock()
	o.run.FinishedAt = time.Now()
	artifacts := len(o.run.Artifacts)
	o.mu.Unlock()

	o.setStatus(status)
	o.logger.Info("Job finished",
		zap.String("status", status.String()),
		zap.Int("artifacts", artifacts),
	)
}

func (o *Orchestrator) setStatus(status Status) {
	o.mu.Lock()
	from := o.run.Status.Phase
	if !canTransition(from, status.Phase) {
		o.mu.Unlock()
		o.logger.Error("Rejected status transition",
			zap.String("from", string(from)),
			zap.String("to", string(status.Phase)),
			zap.Error(ErrInvalidTransition),
		)
		return
	}
	o.run.Status = status
	if status.Phase == PhaseSucceeded {
		o.run.Progress = 100
	}
	snapshot := o.run.clone()
	o.mu.Unlock()

	for _, obs := range o.observers {
		obs.StatusChanged(snapshot)
	}
}

func (o *Orchestrator) notifyStage(kind StageKind, elapsed time.Duration, err error) {
	for _, obs := range o.observers {
		obs.StageFinished(kind, elapsed, err)
	}
}

func (o *Orchestrator) mirrorProgress(u progress.Update) {
	o.mu.Lock()
	if o.run != nil && o.run.Status.Phase == PhaseRunning {
		o.run.Progress = u.Percent
	}
	o.mu.Unlock()
}
