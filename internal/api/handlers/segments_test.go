package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nextconvert/cutstudio/internal/modules/segments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSegmentHandlerLifecycle(t *testing.T) {
	registry := segments.NewRegistry()
	h := NewSegmentHandler(registry, zap.NewNop())

	rec := serve(h.Add, http.MethodPost, "/api/v1/segments", `{"start":"00:00:05","end":"00:00:15"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var added SegmentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	assert.Equal(t, 5, added.Start)
	assert.Equal(t, 15, added.End)
	assert.Equal(t, 10, added.Duration)
	assert.Equal(t, "00:00:05", added.StartText)
	assert.NotEmpty(t, added.ID)

	rec = serve(h.Add, http.MethodPost, "/api/v1/segments", `{"start":"00:00:20","end":"00:00:50"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(h.List, http.MethodGet, "/api/v1/segments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []SegmentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, 20, list[1].Start)

	rec = serve(h.Remove, http.MethodDelete, "/api/v1/segments/"+added.ID, "", map[string]string{"id": added.ID})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, registry.For(testSession).Len())

	rec = serve(h.Clear, http.MethodDelete, "/api/v1/segments", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, registry.For(testSession).Len())
}

func TestSegmentHandlerRejectsBadInput(t *testing.T) {
	registry := segments.NewRegistry()
	h := NewSegmentHandler(registry, zap.NewNop())

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad format", `{"start":"5s","end":"00:00:15"}`, http.StatusUnprocessableEntity, "INVALID_FORMAT"},
		{"reversed", `{"start":"00:00:15","end":"00:00:05"}`, http.StatusUnprocessableEntity, "RANGE_ORDER"},
		{"equal", `{"start":"00:00:15","end":"00:00:15"}`, http.StatusUnprocessableEntity, "RANGE_ORDER"},
		{"not json", `{`, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.Add, http.MethodPost, "/api/v1/segments", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
	assert.Equal(t, 0, registry.For(testSession).Len())
}
