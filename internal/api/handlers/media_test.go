package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProbe(t *testing.T) {
	prober := &fakeProber{info: &media.MediaInfo{Format: "mov,mp4", Duration: 62.5, Width: 1920, Height: 1080}}
	h := NewMediaHandler(prober, baseResolver{}, zap.NewNop())

	rec := serve(h.Probe, http.MethodPost, "/api/v1/media/probe", `{"path":"upload/f1.mp4"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/data/upload/f1.mp4", prober.path)

	var info media.MediaInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 62.5, info.Duration)
	assert.Equal(t, 1920, info.Width)
}

func TestProbeErrors(t *testing.T) {
	tests := []struct {
		name   string
		prober *fakeProber
		body   string
		status int
		code   string
	}{
		{"outside storage", &fakeProber{info: &media.MediaInfo{}}, `{"path":"../etc/passwd"}`, http.StatusUnprocessableEntity, "INVALID_PATH"},
		{"missing file", &fakeProber{info: &media.MediaInfo{}}, `{"path":"upload/missing.mp4"}`, http.StatusNotFound, "FILE_NOT_FOUND"},
		{"probe fails", &fakeProber{}, `{"path":"upload/f1.mp4"}`, http.StatusUnprocessableEntity, "PROBE_FAILED"},
		{"bad body", &fakeProber{}, `[]`, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMediaHandler(tt.prober, baseResolver{}, zap.NewNop())
			rec := serve(h.Probe, http.MethodPost, "/api/v1/media/probe", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}
