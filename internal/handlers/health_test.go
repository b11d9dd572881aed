package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubPinger answers pings with a fixed error.
type stubPinger struct {
	err   error
	calls int
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("ping without deadline")
	}
	return p.err
}

func newHealthRouter(h *HealthHandler) *gin.Engine {
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)
	router.GET("/api/v1/info", h.Info)
	return router
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHealthHandler_Health(t *testing.T) {
	// Liveness does not touch the database.
	db := &stubPinger{err: errors.New("down")}
	w := get(newHealthRouter(NewHealthHandler(db, "", "test")), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	assert.Zero(t, db.calls)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		expectedStatus int
		expectedBody   ReadyResponse
	}{
		{
			name:           "database connected",
			expectedStatus: http.StatusOK,
			expectedBody:   ReadyResponse{Status: "ready", Database: "connected"},
		},
		{
			name:           "database unreachable",
			pingErr:        errors.New("dial tcp: connection refused"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   ReadyResponse{Status: "not_ready", Database: "disconnected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &stubPinger{err: tt.pingErr}
			w := get(newHealthRouter(NewHealthHandler(db, "", "test")), "/health/ready")

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response ReadyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedBody, response)
			assert.Equal(t, 1, db.calls)
		})
	}
}

func TestHealthHandler_Info(t *testing.T) {
	handler := NewHealthHandler(&stubPinger{}, "https://matrikkel.example.com/api", "production")
	handler.startTime = time.Now().Add(-26 * time.Hour)

	w := get(newHealthRouter(handler), "/api/v1/info")

	assert.Equal(t, http.StatusOK, w.Code)
	var response InfoResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, APIVersion, response.Version)
	assert.Equal(t, "production", response.Environment)
	assert.Equal(t, "https://matrikkel.example.com/api", response.Registry)
	assert.Contains(t, response.Uptime, "1d 2h")
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "formats seconds only", duration: 45 * time.Second, expected: "0h 0m 45s"},
		{name: "formats minutes and seconds", duration: 5*time.Minute + 30*time.Second, expected: "0h 5m 30s"},
		{name: "formats hours, minutes and seconds", duration: 2*time.Hour + 15*time.Minute + 45*time.Second, expected: "2h 15m 45s"},
		{name: "formats days", duration: 3*24*time.Hour + 5*time.Hour + 30*time.Minute + 15*time.Second, expected: "3d 5h 30m 15s"},
		{name: "formats exactly one day", duration: 24 * time.Hour, expected: "1d 0h 0m 0s"},
		{name: "formats zero duration", duration: 0, expected: "0h 0m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUptime(tt.duration))
		})
	}
}

func BenchmarkHealthHandler_Health(b *testing.B) {
	router := newHealthRouter(NewHealthHandler(&stubPinger{}, "", "test"))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
}
