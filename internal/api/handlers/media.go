package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
	"go.uber.org/zap"
)

// Prober reads media metadata. *media.Processor satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.MediaInfo, error)
}

// PathResolver maps client paths into the storage directory. *storage.Service satisfies it.
type PathResolver interface {
	Resolve(path string) (string, error)
}

// MediaFiles resolves client paths and checks that they exist
type MediaFiles interface {
	PathResolver
	Exists(ctx context.Context, path string) (bool, error)
}

// MediaHandler handles media-related endpoints
type MediaHandler struct {
	prober Prober
	files  MediaFiles
	logger *zap.Logger
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(prober Prober, files MediaFiles, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		prober: prober,
		files:  files,
		logger: logger,
	}
}

// ProbeRequest represents a media probe request
type ProbeRequest struct {
	Path string `json:"path"`
}

// Probe extracts metadata from a media file
func (h *MediaHandler) Probe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	path, err := h.files.Resolve(req.Path)
	if errors.Is(err, storage.ErrOutsideBase) {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PATH", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to resolve path")
		return
	}

	exists, err := h.files.Exists(r.Context(), path)
	if err != nil {
		h.logger.Error("Failed to stat file", zap.Error(err), zap.String("path", path))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to read file")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "file not found")
		return
	}

	info, err := h.prober.Probe(r.Context(), path)
	if err != nil {
		h.logger.Warn("Failed to probe file", zap.Error(err), zap.String("path", path))
		writeError(w, http.StatusUnprocessableEntity, "PROBE_FAILED", "failed to probe file")
		return
	}

	writeJSON(w, http.StatusOK, info)
}
