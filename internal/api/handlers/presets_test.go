package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListPresets(t *testing.T) {
	h := NewPresetsHandler(newMemoryPresets(), zap.NewNop())

	rec := serve(h.ListPresets, http.MethodGet, "/api/v1/presets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body PresetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, presets.List(), body.Presets)
	assert.Equal(t, presets.Custom{Width: 1280, Height: 720}, body.Default)
}

func TestCustomPresetRoundTrip(t *testing.T) {
	store := newMemoryPresets()
	h := NewPresetsHandler(store, zap.NewNop())

	rec := serve(h.GetCustom, http.MethodGet, "/api/v1/presets/custom", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h.SaveCustom, http.MethodPut, "/api/v1/presets/custom", `{"width":854,"height":480}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h.GetCustom, http.MethodGet, "/api/v1/presets/custom", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got presets.Custom
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, presets.Custom{Width: 854, Height: 480}, got)

	rec = serve(h.ClearCustom, http.MethodDelete, "/api/v1/presets/custom", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.saved)
}

func TestSaveCustomPresetValidation(t *testing.T) {
	h := NewPresetsHandler(newMemoryPresets(), zap.NewNop())

	rec := serve(h.SaveCustom, http.MethodPut, "/api/v1/presets/custom", `{"width":0,"height":480}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(h.SaveCustom, http.MethodPut, "/api/v1/presets/custom", `{"w":1,"h":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCustomPresetStoreError(t *testing.T) {
	store := newMemoryPresets()
	store.failOn = errors.New("redis down")
	h := NewPresetsHandler(store, zap.NewNop())

	rec := serve(h.GetCustom, http.MethodGet, "/api/v1/presets/custom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
