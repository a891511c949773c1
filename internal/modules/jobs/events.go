package jobs

import (
	"context"
	"encoding/json"

	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventsChannel is the Redis channel job events travel on from worker to API
const EventsChannel = "jobs:events"

// EventType names a job event. The values double as websocket message types.
type EventType string

const (
	EventStatus    EventType = "job:status"
	EventProgress  EventType = "job:progress"
	EventCompleted EventType = "job:completed"
	EventFailed    EventType = "job:failed"
	EventCancelled EventType = "job:cancelled"
)

// Event is one change to a running job
type Event struct {
	Type        EventType        `json:"type"`
	JobID       string           `json:"jobId"`
	SessionID   string           `json:"sessionId"`
	Status      *pipeline.Status `json:"status,omitempty"`
	Progress    float64          `json:"progress"`
	Description string           `json:"description,omitempty"`
	Outputs     []string         `json:"outputs,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// terminalEvent picks the event type for a finished run
func terminalEvent(phase pipeline.Phase) EventType {
	switch phase {
	case pipeline.PhaseSucceeded:
		return EventCompleted
	case pipeline.PhaseCancelled:
		return EventCancelled
	case pipeline.PhaseFailed:
		return EventFailed
	default:
		return EventStatus
	}
}

// Broker is the pub/sub surface events are published on. *database.Redis satisfies it.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// EventPublisher sends job events to the API processes
type EventPublisher struct {
	broker Broker
	logger *zap.Logger
}

// NewEventPublisher creates a publisher on broker
func NewEventPublisher(broker Broker, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{broker: broker, logger: logger}
}

// Publish sends ev. Failures are logged; a lost event never fails a job.
func (p *EventPublisher) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to encode job event", zap.String("job_id", ev.JobID), zap.Error(err))
		return
	}
	if err := p.broker.Publish(ctx, EventsChannel, data); err != nil {
		p.logger.Warn("Failed to publish job event",
			zap.String("job_id", ev.JobID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Subscriber opens a subscription. *database.Redis satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Relay forwards events published by workers to a local sink
type Relay struct {
	sub    Subscriber
	sink   func(Event)
	logger *zap.Logger
}

// NewRelay creates a relay that hands every event to sink
func NewRelay(sub Subscriber, sink func(Event), logger *zap.Logger) *Relay {
	return &Relay{sub: sub, sink: sink, logger: logger}
}

// Run blocks until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.sub.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("Relaying job events", zap.String("channel", EventsChannel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.dispatch([]byte(msg.Payload))
		}
	}
}

func (r *Relay) dispatch(payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.Warn("Dropping malformed job event", zap.Error(err))
		return
	}
	r.sink(ev)
}
