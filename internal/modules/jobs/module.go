// Package jobs queues pipeline jobs, keeps their records and runs them on workers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/shared/metrics"
	"go.uber.org/zap"
)

const listLimit = 50

// ErrJobActive is returned when deleting a job that has not finished
var ErrJobActive = errors.New("job is still in progress, cancel it first")

// InvalidSpecError wraps the reason a submitted spec was rejected
type InvalidSpecError struct {
	Err error
}

func (e *InvalidSpecError) Error() string {
	return e.Err.Error()
}

func (e *InvalidSpecError) Unwrap() error {
	return e.Err
}

// Module handles job management on the API side
type Module struct {
	store   Store
	queue   Queue
	events  *EventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewModule creates a new jobs module. events and m may be nil.
func NewModule(store Store, queue Queue, events *EventPublisher, m *metrics.Metrics, logger *zap.Logger) *Module {
	return &Module{
		store:   store,
		queue:   queue,
		events:  events,
		metrics: m,
		logger:  logger,
	}
}

// CreateJob validates spec, records it for sessionID and queues it
func (m *Module) CreateJob(ctx context.Context, sessionID string, spec Spec, priority string) (*Record, error) {
	if _, err := spec.Build(); err != nil {
		return nil, &InvalidSpecError{Err: err}
	}

	rec := &Record{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Kind:      spec.Kind,
		Spec:      spec,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	if err := m.queue.Enqueue(ctx, rec.ID, priority); err != nil {
		now := time.Now()
		run := pipeline.JobRun{
			Status:     pipeline.Status{Phase: pipeline.PhaseFailed, Reason: "could not queue job"},
			FinishedAt: now,
		}
		if updateErr := m.store.UpdateRun(ctx, rec.ID, run); updateErr != nil {
			m.logger.Error("Failed to mark unqueued job as failed", zap.String("job_id", rec.ID), zap.Error(updateErr))
		}
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.RecordJobCreated(string(spec.Kind))
	}
	m.logger.Info("Job created",
		zap.String("job_id", rec.ID),
		zap.String("session_id", sessionID),
		zap.String("kind", string(spec.Kind)),
	)
	return rec, nil
}

// GetJob returns a job owned by sessionID
func (m *Module) GetJob(ctx context.Context, sessionID, jobID string) (*Record, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, ErrJobNotFound
	}
	rec, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.SessionID != sessionID {
		return nil, ErrJobNotFound
	}
	return rec, nil
}

// ListJobs returns the session's recent jobs
func (m *Module) ListJobs(ctx context.Context, sessionID string) ([]*Record, error) {
	records, err := m.store.ListBySession(ctx, sessionID, listLimit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

// CancelJob stops a queued or running job. A queued job is marked cancelled
// here; a running one is reported by its worker once the stage stops.
func (m *Module) CancelJob(ctx context.Context, sessionID, jobID string) (*Record, error) {
	rec, err := m.GetJob(ctx, sessionID, jobID)
	if err != nil {
		return nil, err
	}
	if !rec.Active() {
		return nil, fmt.Errorf("%w: status is %s", ErrJobFinished, rec.Status.Phase)
	}

	removed, err := m.queue.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !removed {
		m.logger.Info("Cancellation requested", zap.String("job_id", jobID))
		return rec, nil
	}

	now := time.Now()
	run := pipeline.JobRun{
		Status:     pipeline.Status{Phase: pipeline.PhaseCancelled},
		Progress:   rec.Progress,
		FinishedAt: now,
	}
	if rec.StartedAt != nil {
		run.StartedAt = *rec.StartedAt
	}
	if err := m.store.UpdateRun(ctx, jobID, run); err != nil {
		return nil, err
	}
	rec.Status = run.Status
	rec.FinishedAt = &now

	if m.events != nil {
		status := rec.Status
		m.events.Publish(ctx, Event{
			Type:      EventCancelled,
			JobID:     jobID,
			SessionID: sessionID,
			Status:    &status,
			Progress:  rec.Progress,
		})
	}
	m.logger.Info("Job cancelled before it started", zap.String("job_id", jobID))
	return rec, nil
}

// DeleteJob removes a finished job's record
func (m *Module) DeleteJob(ctx context.Context, sessionID, jobID string) error {
	rec, err := m.GetJob(ctx, sessionID, jobID)
	if err != nil {
		return err
	}
	if rec.Active() {
		return ErrJobActive
	}
	return m.store.Delete(ctx, jobID)
}
