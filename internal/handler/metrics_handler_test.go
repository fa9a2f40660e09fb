package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    nil,
	}, zap.NewNop())

	c, rec := newTestContext(http.MethodGet, "/ready", "")
	handler.Ready(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	checks := envelope.Data.(map[string]interface{})["checks"].(map[string]interface{})
	assert.Equal(t, "up", checks["postgres"])
	assert.NotContains(t, checks, "redis")
}

func TestMetricsHandlerReadyDependencyDown(t *testing.T) {
	handler := NewMetricsHandler(nil, map[string]Pinger{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, nil)

	c, rec := newTestContext(http.MethodGet, "/ready", "")
	handler.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerSnapshotAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordRejectedWeights()
	handler := NewMetricsHandler(metrics, nil, nil)

	c, rec := newTestContext(http.MethodGet, "/metrics/summary", "")
	handler.Snapshot(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(1), envelope.Data.(map[string]interface{})["rejected_weight_proposals"])

	c, rec = newTestContext(http.MethodGet, "/metrics", "")
	handler.Prometheus(c)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "gradebook_rejected_weight_proposals_total 1")
}
