package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task types
const (
	TypePipelineRun = "pipeline:run"
)

// Queues, by priority
const (
	QueueDefault = "default"
	QueueLow     = "low"
)

const taskTimeout = 2 * time.Hour

// RunPayload identifies the job a pipeline:run task executes
type RunPayload struct {
	JobID string `json:"jobId"`
}

// NewRunTask builds the task for jobID
func NewRunTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(RunPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePipelineRun, data), nil
}

// Queue is what the job module needs from the task queue
type Queue interface {
	Enqueue(ctx context.Context, jobID string, priority string) error
	// Cancel stops jobID. removed is true when the task never started and
	// was dropped from the queue, so no worker will report on it.
	Cancel(ctx context.Context, jobID string) (removed bool, err error)
}

// QueueClient handles job queue operations
type QueueClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *zap.Logger
}

// RedisOpt turns a host:port or redis:// URL into asynq connection options
func RedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err == nil {
		return opt, nil
	}
	// bare host:port
	if _, _, splitErr := net.SplitHostPort(redisURL); splitErr == nil {
		return asynq.RedisClientOpt{Addr: redisURL}, nil
	}
	return nil, fmt.Errorf("parse redis url: %w", err)
}

// NewQueueClient creates a new queue client
func NewQueueClient(opt asynq.RedisConnOpt, logger *zap.Logger) *QueueClient {
	return &QueueClient{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		logger:    logger,
	}
}

// Close closes the queue client
func (q *QueueClient) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

// Enqueue queues a pipeline run. The task id is the job id, so a job can be
// queued once. Stages are never retried.
func (q *QueueClient) Enqueue(ctx context.Context, jobID string, priority string) error {
	task, err := NewRunTask(jobID)
	if err != nil {
		return err
	}

	queue := QueueDefault
	if priority == "low" {
		queue = QueueLow
	}

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
		asynq.Queue(queue),
	)
	if err != nil {
		q.logger.Error("Failed to enqueue pipeline task", zap.String("job_id", jobID), zap.Error(err))
		return fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Info("Pipeline task enqueued",
		zap.String("task_id", info.ID),
		zap.String("job_id", jobID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// Cancel removes a pending task or signals the worker running it
func (q *QueueClient) Cancel(_ context.Context, jobID string) (bool, error) {
	for _, queue := range []string{QueueDefault, QueueLow} {
		info, err := q.inspector.GetTaskInfo(queue, jobID)
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("inspect task: %w", err)
		}

		if info.State == asynq.TaskStateActive {
			q.logger.Info("Cancelling running pipeline task", zap.String("job_id", jobID))
			return false, q.inspector.CancelProcessing(jobID)
		}

		q.logger.Info("Removing queued pipeline task",
			zap.String("job_id", jobID),
			zap.String("state", info.State.String()),
		)
		if err := q.inspector.DeleteTask(queue, jobID); err != nil {
			return false, fmt.Errorf("delete task: %w", err)
		}
		return true, nil
	}
	// already finished and dropped from the queue
	return true, nil
}
