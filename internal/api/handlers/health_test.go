package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := serve(h.Health, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := serve(NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": ok}).Ready, http.MethodGet, "/api/v1/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": down}).Ready, http.MethodGet, "/api/v1/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "healthy", body.Services["postgres"])
	assert.Equal(t, "unhealthy: connection refused", body.Services["redis"])
}
