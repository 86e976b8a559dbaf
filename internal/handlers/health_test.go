package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Get(t *testing.T) {
	cfg := testConfig()
	handler := NewHealthHandler(cfg, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.True(t, response.OK)
	assert.Equal(t, "test/primary", response.Model)
	assert.Equal(t, []string{"test/primary", "test/backup"}, response.ModelCandidates)
	assert.Equal(t, "test/repair", response.RepairModel)
	assert.Equal(t, "throughput", response.Provider.Sort.By)
	assert.Equal(t, 800, response.Generation.MaxTokens)
	assert.True(t, response.HasAPIKey)

	// The key itself must never appear in the response.
	assert.NotContains(t, w.Body.String(), "test-key")
}

func TestHealthHandler_ReportsMissingKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	handler := NewHealthHandler(cfg, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.OK, "missing key degrades turns, not health")
	assert.False(t, response.HasAPIKey)
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHealthHandler(testConfig(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
