package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/modules/segments"
	"github.com/nextconvert/cutstudio/internal/modules/timecode"
	"go.uber.org/zap"
)

// SegmentHandler edits the session's segment set
type SegmentHandler struct {
	registry *segments.Registry
	logger   *zap.Logger
}

// NewSegmentHandler creates a new segment handler
func NewSegmentHandler(registry *segments.Registry, logger *zap.Logger) *SegmentHandler {
	return &SegmentHandler{registry: registry, logger: logger}
}

// SegmentView is a segment with its timestamps formatted for display
type SegmentView struct {
	segments.Segment
	StartText string `json:"startText"`
	EndText   string `json:"endText"`
	Duration  int    `json:"duration"`
}

// AddSegmentRequest carries two HH:MM:SS timestamps
type AddSegmentRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func viewOf(s segments.Segment) SegmentView {
	return SegmentView{
		Segment:   s,
		StartText: timecode.FormatSeconds(s.Start),
		EndText:   timecode.FormatSeconds(s.End),
		Duration:  s.Duration(),
	}
}

func (h *SegmentHandler) set(r *http.Request) *segments.Set {
	return h.registry.For(middleware.SessionID(r.Context()))
}

// List returns the segments in insertion order
func (h *SegmentHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.set(r).List()
	views := make([]SegmentView, 0, len(list))
	for _, s := range list {
		views = append(views, viewOf(s))
	}
	writeJSON(w, http.StatusOK, views)
}

// Add appends a segment. Malformed or reversed timestamps are rejected with 422.
func (h *SegmentHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddSegmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	seg, err := h.set(r).Add(req.Start, req.End)
	var verr *segments.ValidationError
	if errors.As(err, &verr) {
		code := "INVALID_FORMAT"
		if verr.Kind == segments.RangeOrder {
			code = "RANGE_ORDER"
		}
		writeError(w, http.StatusUnprocessableEntity, code, verr.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to add segment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to add segment")
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(seg))
}

// Remove deletes one segment. Unknown ids are ignored.
func (h *SegmentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.set(r).Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Clear empties the set
func (h *SegmentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.set(r).Clear()
	w.WriteHeader(http.StatusNoContent)
}
