package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/modules/jobs"
	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
)

const testSession = "0b6b2c4e-7b43-4d7e-9d2a-6f1c0b0a1e11"

// serve runs h with the test session and chi URL params set
func serve(h http.HandlerFunc, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithSession(ctx, testSession)

	rec := httptest.NewRecorder()
	h(rec, req.WithContext(ctx))
	return rec
}

// baseResolver confines paths to /data like storage.Service.Resolve
type baseResolver struct{}

func (baseResolver) Resolve(p string) (string, error) {
	if strings.Contains(p, "..") || (filepath.IsAbs(p) && !strings.HasPrefix(p, "/data/")) {
		return "", storage.ErrOutsideBase
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	return "/data/" + p, nil
}

// Exists treats every path except ones naming "missing" as present
func (baseResolver) Exists(_ context.Context, p string) (bool, error) {
	return !strings.Contains(p, "missing"), nil
}

type memoryPresets struct {
	mu     sync.Mutex
	saved  map[string]presets.Custom
	failOn error
}

func newMemoryPresets() *memoryPresets {
	return &memoryPresets{saved: map[string]presets.Custom{}}
}

func (m *memoryPresets) Save(_ context.Context, sessionID string, c presets.Custom) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sessionID] = c
	return nil
}

func (m *memoryPresets) Load(_ context.Context, sessionID string) (presets.Custom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return presets.Custom{}, m.failOn
	}
	c, ok := m.saved[sessionID]
	if !ok {
		return presets.Custom{}, presets.ErrNoCustomPreset
	}
	return c, nil
}

func (m *memoryPresets) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, sessionID)
	return nil
}

// fakeJobs records the spec it was asked to create
type fakeJobs struct {
	created   []jobs.Spec
	priority  string
	createErr error
	record    *jobs.Record
	getErr    error
	cancelErr error
	deleteErr error
}

func (f *fakeJobs) CreateJob(_ context.Context, sessionID string, spec jobs.Spec, priority string) (*jobs.Record, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, err := spec.Build(); err != nil {
		return nil, &jobs.InvalidSpecError{Err: err}
	}
	f.created = append(f.created, spec)
	f.priority = priority
	return &jobs.Record{ID: "job-1", SessionID: sessionID, Kind: spec.Kind, Spec: spec,
		Status: pipeline.Status{Phase: pipeline.PhaseIdle}, CreatedAt: time.Now()}, nil
}

func (f *fakeJobs) GetJob(_ context.Context, _, id string) (*jobs.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.record == nil || f.record.ID != id {
		return nil, jobs.ErrJobNotFound
	}
	return f.record, nil
}

func (f *fakeJobs) ListJobs(context.Context, string) ([]*jobs.Record, error) {
	if f.record == nil {
		return []*jobs.Record{}, nil
	}
	return []*jobs.Record{f.record}, nil
}

func (f *fakeJobs) CancelJob(_ context.Context, _, id string) (*jobs.Record, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.GetJob(context.Background(), "", id)
}

func (f *fakeJobs) DeleteJob(context.Context, string, string) error {
	return f.deleteErr
}

type fakeDownloads struct {
	enabled bool
	err     error
}

func (f fakeDownloads) Publishing() bool { return f.enabled }

func (f fakeDownloads) DownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://bucket.example/" + key + "?sig=1", nil
}

type fakeProber struct {
	info *media.MediaInfo
	path string
}

func (f *fakeProber) Probe(_ context.Context, path string) (*media.MediaInfo, error) {
	f.path = path
	if f.info == nil {
		return nil, errors.New("ffprobe failed")
	}
	return f.info, nil
}

// diskStore writes uploads under dir like storage.Service
type diskStore struct {
	dir string
}

func (d diskStore) Store(_ context.Context, zone storage.Zone, name string, r io.Reader) (*storage.FileInfo, error) {
	path := filepath.Join(d.dir, string(zone), "f1"+filepath.Ext(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := io.Copy(f, r)
	if err != nil {
		return nil, err
	}
	return &storage.FileInfo{ID: "f1", Name: name, Path: path, Zone: zone, Size: n}, nil
}

func (d diskStore) BasePath() string { return d.dir }

func presetSize(w, h int) presets.Custom {
	return presets.Custom{Width: w, Height: h}
}
