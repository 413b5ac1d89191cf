package coordination

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunusovt983/selfheal/monitoring"
)

func TestHTTPCoordinatorReportHealth(t *testing.T) {
	var got healthReport
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/report_health", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	c := NewHTTPCoordinator(server.URL, nil)
	err := c.ReportHealth(context.Background(), "bitswap",
		monitoring.HealthStatus{Level: monitoring.StatusDegraded, Reason: "latency"},
		monitoring.HealthMetrics{ResponseTime: 300 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, "bitswap", got.Component)
	assert.Equal(t, monitoring.StatusDegraded, got.Status.Level)
	assert.Equal(t, 300*time.Millisecond, got.Metrics.ResponseTime)
}

func TestHTTPCoordinatorRequestHealing(t *testing.T) {
	var got healingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/request_healing", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	c := NewHTTPCoordinator(server.URL, nil)
	err := c.RequestHealing(context.Background(), "operator", "bitswap", "manual_intervention")
	require.NoError(t, err)

	assert.Equal(t, "operator", got.Target)
	assert.Equal(t, "bitswap", got.Component)
	assert.Equal(t, "manual_intervention", got.Action)
}

func TestHTTPCoordinatorErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewHTTPCoordinator(server.URL, nil)
	err := c.RequestHealing(context.Background(), "operator", "bitswap", "restart")
	assert.Error(t, err)
}

func TestNopCoordinator(t *testing.T) {
	var c Coordinator = NopCoordinator{}
	assert.NoError(t, c.ReportHealth(context.Background(), "x", monitoring.HealthStatus{}, monitoring.HealthMetrics{}))
	assert.NoError(t, c.RequestHealing(context.Background(), "a", "b", "c"))
}
