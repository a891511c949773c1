package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/progress"
)

// memoryStore is an in-memory Store
type memoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	runs     map[string][]pipeline.Phase
	progress map[string][]float64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records:  map[string]*Record{},
		runs:     map[string][]pipeline.Phase{},
		progress: map[string][]float64{},
	}
}

func (s *memoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.SessionID == rec.SessionID && r.Active() {
			return ErrSessionBusy
		}
	}
	rec.CreatedAt = time.Now()
	rec.Status = pipeline.Status{Phase: pipeline.PhaseIdle}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) ListBySession(_ context.Context, sessionID string, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, r := range s.records {
		if r.SessionID == sessionID && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memoryStore) UpdateRun(_ context.Context, id string, run pipeline.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrJobNotFound
	}
	rec.Status = run.Status
	rec.Progress = run.Progress
	rec.Outputs = run.Outputs()
	rec.Kept = run.Kept()
	rec.Warnings = run.Warnings
	rec.Error = run.Status.Reason
	rec.StartedAt = nullTime(run.StartedAt)
	rec.FinishedAt = nullTime(run.FinishedAt)
	s.runs[id] = append(s.runs[id], run.Status.Phase)
	return nil
}

func (s *memoryStore) UpdateProgress(_ context.Context, id string, percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = append(s.progress[id], percent)
	return nil
}

func (s *memoryStore) SetPublished(_ context.Context, id string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Published = keys
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memoryStore) phases(id string) []pipeline.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.Phase(nil), s.runs[id]...)
}

// fakeQueue records enqueued ids
type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []string
	cancelled  []string
	enqueueErr error
	removed    bool
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID string, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, jobID)
	return q.removed, nil
}

// fakeBroker collects published events
type fakeBroker struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	if b.err != nil {
		return b.err
	}
	if channel != EventsChannel {
		return errors.New("unexpected channel " + channel)
	}
	var ev Event
	if err := json.Unmarshal(message.([]byte), &ev); err != nil {
		return err
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) types() []EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []EventType
	for _, ev := range b.events {
		out = append(out, ev.Type)
	}
	return out
}

func (b *fakeBroker) last() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

// stubEngine produces predictable paths and reports progress in steps
type stubEngine struct {
	ch        *progress.Channel
	failOn    pipeline.StageKind
	blockOn   pipeline.StageKind
	started   chan struct{}
	deletions [][]string
}

func (e *stubEngine) step(ctx context.Context, kind pipeline.StageKind) error {
	for _, p := range []float64{25, 50, 100} {
		e.ch.Push(progress.Update{Percent: p, Status: "processing"})
	}
	if kind == e.blockOn {
		close(e.started)
		<-ctx.Done()
		return ctx.Err()
	}
	if kind == e.failOn {
		return errors.New("FFmpeg process exited with code 1")
	}
	return nil
}

func (e *stubEngine) Trim(ctx context.Context, input string, start, duration, index int) (string, error) {
	if err := e.step(ctx, pipeline.StageTrim); err != nil {
		return "", err
	}
	return fmt.Sprintf("/data/working/clip_part%d.mp4", index), nil
}

func (e *stubEngine) Merge(ctx context.Context, inputs []string, _ float64) (string, error) {
	if err := e.step(ctx, pipeline.StageMerge); err != nil {
		return "", err
	}
	return "/data/working/merged.mp4", nil
}

func (e *stubEngine) Resize(ctx context.Context, input string, width, height int, _ float64, output string) (string, error) {
	if err := e.step(ctx, pipeline.StageResize); err != nil {
		return "", err
	}
	if output != "" {
		return output, nil
	}
	return "/data/output/final.mp4", nil
}

func (e *stubEngine) Delete(_ context.Context, paths []string) error {
	e.deletions = append(e.deletions, paths)
	return nil
}

// fakePublisher pretends to upload to object storage
type fakePublisher struct {
	enabled bool
	fail    map[string]bool
	paths   []string
}

func (p *fakePublisher) Publishing() bool { return p.enabled }

func (p *fakePublisher) Publish(_ context.Context, localPath string) (string, error) {
	if p.fail[localPath] {
		return "", errors.New("access denied")
	}
	p.paths = append(p.paths, localPath)
	return "output/" + filepath.Base(localPath), nil
}
