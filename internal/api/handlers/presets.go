package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"go.uber.org/zap"
)

// CustomPresets stores the session's custom size. *presets.Store satisfies it.
type CustomPresets interface {
	Save(ctx context.Context, sessionID string, c presets.Custom) error
	Load(ctx context.Context, sessionID string) (presets.Custom, error)
	Clear(ctx context.Context, sessionID string) error
}

// PresetsHandler handles resize preset operations
type PresetsHandler struct {
	custom CustomPresets
	logger *zap.Logger
}

// NewPresetsHandler creates a new presets handler
func NewPresetsHandler(custom CustomPresets, logger *zap.Logger) *PresetsHandler {
	return &PresetsHandler{custom: custom, logger: logger}
}

// PresetsResponse lists the fixed presets and the fallback size
type PresetsResponse struct {
	Presets []presets.Preset `json:"presets"`
	Default presets.Custom   `json:"default"`
}

// ListPresets returns the fixed presets
func (h *PresetsHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PresetsResponse{
		Presets: presets.List(),
		Default: presets.Custom{Width: presets.DefaultWidth, Height: presets.DefaultHeight},
	})
}

// GetCustom returns the session's saved size
func (h *PresetsHandler) GetCustom(w http.ResponseWriter, r *http.Request) {
	c, err := h.custom.Load(r.Context(), middleware.SessionID(r.Context()))
	if errors.Is(err, presets.ErrNoCustomPreset) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to load custom preset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load custom preset")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SaveCustom replaces the session's saved size
func (h *PresetsHandler) SaveCustom(w http.ResponseWriter, r *http.Request) {
	var req presets.Custom
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	err := h.custom.Save(r.Context(), middleware.SessionID(r.Context()), req)
	if errors.Is(err, presets.ErrInvalidPreset) {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PRESET", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to save custom preset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to save custom preset")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ClearCustom forgets the session's saved size
func (h *PresetsHandler) ClearCustom(w http.ResponseWriter, r *http.Request) {
	if err := h.custom.Clear(r.Context(), middleware.SessionID(r.Context())); err != nil {
		h.logger.Error("Failed to clear custom preset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to clear custom preset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
