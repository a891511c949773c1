package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/progress"
	"github.com/nextconvert/cutstudio/internal/shared/metrics"
	"go.uber.org/zap"
)

// EngineFactory returns an engine that reports progress into ch
type EngineFactory func(ch *progress.Channel) pipeline.Engine

// ArtifactPublisher copies finished artifacts to object storage. *storage.Service satisfies it.
type ArtifactPublisher interface {
	Publishing() bool
	Publish(ctx context.Context, localPath string) (string, error)
}

// HandlerConfig contains dependencies for the job handler
type HandlerConfig struct {
	Store         Store
	Events        *EventPublisher
	Publisher     ArtifactPublisher
	NewEngine     EngineFactory
	Metrics       *metrics.Metrics
	CleanupPolicy pipeline.CleanupPolicy
	Logger        *zap.Logger
}

// Handler executes pipeline:run tasks
type Handler struct {
	store     Store
	events    *EventPublisher
	publisher ArtifactPublisher
	newEngine EngineFactory
	metrics   *metrics.Metrics
	policy    pipeline.CleanupPolicy
	logger    *zap.Logger
}

// NewHandler creates a new job handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		store:     cfg.Store,
		events:    cfg.Events,
		publisher: cfg.Publisher,
		newEngine: cfg.NewEngine,
		metrics:   cfg.Metrics,
		policy:    cfg.CleanupPolicy,
		logger:    cfg.Logger,
	}
}

// HandlePipelineRun runs one job on its own orchestrator and progress channel.
// Failures are never retried.
func (h *Handler) HandlePipelineRun(ctx context.Context, task *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	rec, err := h.store.Get(ctx, payload.JobID)
	if errors.Is(err, ErrJobNotFound) {
		h.logger.Warn("Job record is gone, dropping task", zap.String("job_id", payload.JobID))
		return fmt.Errorf("job %s: %w: %w", payload.JobID, err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if !rec.Active() {
		h.logger.Info("Job already finished, skipping",
			zap.String("job_id", rec.ID),
			zap.String("phase", string(rec.Status.Phase)),
		)
		return nil
	}

	logger := h.logger.With(
		zap.String("job_id", rec.ID),
		zap.String("session_id", rec.SessionID),
		zap.String("kind", string(rec.Kind)),
	)

	job, err := rec.Spec.Build()
	if err != nil {
		logger.Error("Stored job is invalid", zap.Error(err))
		now := time.Now()
		run := pipeline.JobRun{
			Status:     pipeline.Status{Phase: pipeline.PhaseFailed, Reason: err.Error()},
			StartedAt:  now,
			FinishedAt: now,
		}
		return h.finish(ctx, rec, run, err, logger)
	}

	ch := progress.NewChannel()
	obs := &runObserver{
		ctx:     context.WithoutCancel(ctx),
		handler: h,
		rec:     rec,
		logger:  logger,
		last:    -1,
	}
	orch := pipeline.NewOrchestrator(
		pipeline.NewExecutor(h.newEngine(ch)),
		ch,
		logger,
		pipeline.WithCleanupPolicy(h.policy),
		pipeline.WithObserver(obs),
	)
	unsubscribe := ch.Subscribe(obs.onProgress)
	defer unsubscribe()

	if h.metrics != nil {
		h.metrics.RecordJobStarted()
	}
	logger.Info("Running job", zap.String("cleanup_policy", h.policy.String()))

	run, runErr := orch.Run(ctx, job)
	return h.finish(ctx, rec, run, runErr, logger)
}

// finish publishes artifacts, stores the final state and announces it
func (h *Handler) finish(ctx context.Context, rec *Record, run pipeline.JobRun, runErr error, logger *zap.Logger) error {
	ctx = context.WithoutCancel(ctx)

	if runErr != nil && !run.Status.Terminal() {
		run.Status = pipeline.Status{Phase: pipeline.PhaseFailed, Reason: runErr.Error()}
		if run.FinishedAt.IsZero() {
			run.FinishedAt = time.Now()
		}
	}
	cleanupWarnings := len(run.Warnings)

	if run.Status.Phase == pipeline.PhaseSucceeded && h.publisher != nil && h.publisher.Publishing() {
		keys, warnings := h.publish(ctx, run.Outputs(), logger)
		run.Warnings = append(run.Warnings, warnings...)
		if err := h.store.SetPublished(ctx, rec.ID, keys); err != nil {
			logger.Error("Failed to record published artifacts", zap.Error(err))
		}
	}

	if err := h.store.UpdateRun(ctx, rec.ID, run); err != nil {
		logger.Error("Failed to store final job state", zap.Error(err))
	}

	status := run.Status
	if h.events != nil {
		h.events.Publish(ctx, Event{
			Type:      terminalEvent(status.Phase),
			JobID:     rec.ID,
			SessionID: rec.SessionID,
			Status:    &status,
			Progress:  run.Progress,
			Outputs:   run.Outputs(),
			Warnings:  run.Warnings,
			Error:     status.Reason,
		})
	}

	if h.metrics != nil {
		elapsed := time.Duration(0)
		if !run.StartedAt.IsZero() {
			elapsed = run.FinishedAt.Sub(run.StartedAt)
		}
		h.metrics.RecordJobFinished(string(rec.Kind), string(status.Phase), elapsed)
		h.metrics.RecordCleanupWarnings(cleanupWarnings)
	}

	if status.Phase == pipeline.PhaseSucceeded {
		logger.Info("Job completed",
			zap.String("final_path", status.FinalPath),
			zap.Strings("outputs", run.Outputs()),
			zap.Int("warnings", len(run.Warnings)),
		)
		return nil
	}

	logger.Warn("Job did not complete",
		zap.String("phase", string(status.Phase)),
		zap.String("reason", status.Reason),
	)
	if runErr == nil {
		runErr = errors.New(string(status.Phase))
	}
	return fmt.Errorf("job %s: %w: %w", rec.ID, runErr, asynq.SkipRetry)
}

func (h *Handler) publish(ctx context.Context, outputs []string, logger *zap.Logger) ([]string, []string) {
	var keys, warnings []string
	for _, path := range outputs {
		key, err := h.publisher.Publish(ctx, path)
		if err != nil {
			logger.Warn("Failed to publish artifact", zap.String("path", path), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("publish: %v", err))
			continue
		}
		keys = append(keys, key)
	}
	return keys, warnings
}

// runObserver mirrors one orchestrator into the job record, events and metrics
type runObserver struct {
	ctx     context.Context
	handler *Handler
	rec     *Record
	logger  *zap.Logger

	mu   sync.Mutex
	last float64
}

// StatusChanged stores and announces non-terminal states. The terminal state
// is written by finish once artifacts are published.
func (o *runObserver) StatusChanged(run pipeline.JobRun) {
	if run.Status.Terminal() {
		return
	}
	if err := o.handler.store.UpdateRun(o.ctx, o.rec.ID, run); err != nil {
		o.logger.Warn("Failed to store job status", zap.Error(err))
	}

	o.mu.Lock()
	o.last = 0
	o.mu.Unlock()

	status := run.Status
	if o.handler.events != nil {
		o.handler.events.Publish(o.ctx, Event{
			Type:        EventStatus,
			JobID:       o.rec.ID,
			SessionID:   o.rec.SessionID,
			Status:      &status,
			Description: status.Description,
		})
	}
}

func (o *runObserver) StageFinished(kind pipeline.StageKind, elapsed time.Duration, err error) {
	if o.handler.metrics != nil {
		o.handler.metrics.RecordStage(string(kind), err == nil, elapsed)
	}
}

// onProgress forwards whole-percent changes. The record is only touched every 10%.
func (o *runObserver) onProgress(u progress.Update) {
	step := math.Floor(u.Percent)

	o.mu.Lock()
	if step == o.last {
		o.mu.Unlock()
		return
	}
	persist := math.Floor(step/10) != math.Floor(o.last/10)
	o.last = step
	o.mu.Unlock()

	o.logger.Debug("Job progress", zap.Float64("percent", u.Percent), zap.String("status", u.Status))

	if o.handler.events != nil {
		o.handler.events.Publish(o.ctx, Event{
			Type:        EventProgress,
			JobID:       o.rec.ID,
			SessionID:   o.rec.SessionID,
			Progress:    u.Percent,
			Description: u.Status,
		})
	}
	if persist {
		if err := o.handler.store.UpdateProgress(o.ctx, o.rec.ID, u.Percent); err != nil {
			o.logger.Debug("Failed to store job progress", zap.Error(err))
		}
	}
}
