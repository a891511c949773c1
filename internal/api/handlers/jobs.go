package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/modules/jobs"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"github.com/nextconvert/cutstudio/internal/modules/segments"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
	"go.uber.org/zap"
)

const downloadExpiry = time.Hour

// JobService is the job module as seen by HTTP. *jobs.Module satisfies it.
type JobService interface {
	CreateJob(ctx context.Context, sessionID string, spec jobs.Spec, priority string) (*jobs.Record, error)
	GetJob(ctx context.Context, sessionID, jobID string) (*jobs.Record, error)
	ListJobs(ctx context.Context, sessionID string) ([]*jobs.Record, error)
	CancelJob(ctx context.Context, sessionID, jobID string) (*jobs.Record, error)
	DeleteJob(ctx context.Context, sessionID, jobID string) error
}

// Downloader signs links to published artifacts. *storage.Service satisfies it.
type Downloader interface {
	Publishing() bool
	DownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// JobHandlerConfig contains dependencies for the job handler
type JobHandlerConfig struct {
	Jobs      JobService
	Segments  *segments.Registry
	Presets   CustomPresets
	Paths     PathResolver
	Downloads Downloader
	Logger    *zap.Logger
}

// JobHandler handles job-related endpoints
type JobHandler struct {
	jobs      JobService
	segments  *segments.Registry
	presets   CustomPresets
	paths     PathResolver
	downloads Downloader
	logger    *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(cfg JobHandlerConfig) *JobHandler {
	return &JobHandler{
		jobs:      cfg.Jobs,
		segments:  cfg.Segments,
		presets:   cfg.Presets,
		paths:     cfg.Paths,
		downloads: cfg.Downloads,
		logger:    cfg.Logger,
	}
}

// CreateJobRequest is a job spec plus submission options. Trim and
// automation jobs without segments use the session's segment set. Preset is
// a fixed preset id or "custom" and fills in a missing width and height.
type CreateJobRequest struct {
	jobs.Spec
	Preset   string `json:"preset,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// CreateJob queues a pipeline job for the session
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	ctx := r.Context()
	sessionID := middleware.SessionID(ctx)
	spec := req.Spec

	if len(spec.Segments) == 0 && (spec.Kind == pipeline.JobTrim || spec.Kind == pipeline.JobAutomation) {
		spec.Segments = h.segments.For(sessionID).List()
	}

	if req.Preset != "" && spec.Width == 0 && spec.Height == 0 {
		size, err := h.presetSize(ctx, sessionID, req.Preset)
		if err != nil {
			h.writeJobError(w, err)
			return
		}
		spec.Width, spec.Height = size.Width, size.Height
	}

	spec, err := spec.MapPaths(h.paths.Resolve)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	rec, err := h.jobs.CreateJob(ctx, sessionID, spec, req.Priority)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *JobHandler) presetSize(ctx context.Context, sessionID, id string) (presets.Custom, error) {
	if id == presets.CustomKey || id == "custom" {
		return h.presets.Load(ctx, sessionID)
	}
	p, ok := presets.Lookup(id)
	if !ok {
		return presets.Custom{}, errUnknownPreset
	}
	return presets.Custom{Width: p.Width, Height: p.Height}, nil
}

var errUnknownPreset = errors.New("unknown preset")

// ListJobs returns the session's recent jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	records, err := h.jobs.ListJobs(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetJob returns a specific job
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := h.jobs.GetJob(r.Context(), middleware.SessionID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelJob asks a queued or running job to stop. The response carries the
// record as it stands; a running job reports Cancelled over the websocket.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rec, err := h.jobs.CancelJob(r.Context(), middleware.SessionID(r.Context()), jobID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	h.logger.Info("Job cancel requested", zap.String("job_id", jobID))
	writeJSON(w, http.StatusAccepted, rec)
}

// DeleteJob removes a finished job
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.jobs.DeleteJob(r.Context(), middleware.SessionID(r.Context()), jobID); err != nil {
		h.writeJobError(w, err)
		return
	}

	h.logger.Info("Job deleted", zap.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// DownloadLink is a signed URL for one published artifact
type DownloadLink struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Downloads returns signed links for the job's published artifacts
func (h *JobHandler) Downloads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.jobs.GetJob(ctx, middleware.SessionID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	if h.downloads == nil || !h.downloads.Publishing() || len(rec.Published) == 0 {
		writeError(w, http.StatusNotFound, "NOT_PUBLISHED", "job has no published artifacts")
		return
	}

	expires := time.Now().Add(downloadExpiry).UTC()
	links := make([]DownloadLink, 0, len(rec.Published))
	for _, key := range rec.Published {
		url, err := h.downloads.DownloadURL(ctx, key, downloadExpiry)
		if errors.Is(err, storage.ErrObjectMissing) {
			writeError(w, http.StatusGone, "ARTIFACT_GONE", err.Error())
			return
		}
		if err != nil {
			h.logger.Error("Failed to sign download", zap.String("key", key), zap.Error(err))
			writeError(w, http.StatusBadGateway, "STORAGE", "failed to sign download")
			return
		}
		links = append(links, DownloadLink{Key: key, URL: url, ExpiresAt: expires})
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *JobHandler) writeJobError(w http.ResponseWriter, err error) {
	var invalid *jobs.InvalidSpecError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_JOB", invalid.Error())
	case errors.Is(err, storage.ErrOutsideBase):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PATH", err.Error())
	case errors.Is(err, errUnknownPreset), errors.Is(err, presets.ErrNoCustomPreset):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PRESET", err.Error())
	case errors.Is(err, jobs.ErrSessionBusy):
		writeError(w, http.StatusConflict, "SESSION_BUSY", err.Error())
	case errors.Is(err, jobs.ErrJobActive), errors.Is(err, jobs.ErrJobFinished):
		writeError(w, http.StatusConflict, "JOB_STATE", err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
	default:
		h.logger.Error("Job request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "job request failed")
	}
}
