package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/trail-engine/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*OpenRouterService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	svc := NewOpenRouterService("test-key", server.URL, "http://localhost", "Test", 0.7, 800, 10*time.Second, testLogger())
	return svc, server
}

func writeStreamFrames(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, frame := range frames {
		fmt.Fprintf(w, "data: %s\n\n", frame)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestStreamTurn_AccumulatesTokens(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var payload chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.True(t, payload.Stream)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		writeStreamFrames(w,
			`{"model":"test/model-a","choices":[{"delta":{"content":"The "}}]}`,
			`this frame is not json`,
			`{"choices":[{"delta":{"content":"trail."}}]}`,
			`{"choices":[{"delta":{"content":""},"finish_reason":"stop"}]}`,
		)
	})

	var tokens []string
	result, err := svc.StreamTurn(context.Background(), []string{"test/model-a"}, nil, chat.ProviderPreferences{}, func(token string) {
		tokens = append(tokens, token)
	})
	require.NoError(t, err)

	assert.Equal(t, "The trail.", result.Raw)
	assert.Equal(t, []string{"The ", "trail."}, tokens)
	assert.Equal(t, "test/model-a", result.Model)
	assert.Equal(t, "stop", result.FinishReason)
}

func TestStreamTurn_ModelFromHeader(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Openrouter-Model", "test/served-model")
		writeStreamFrames(w, `{"choices":[{"delta":{"content":"ok"}}]}`)
	})

	result, err := svc.StreamTurn(context.Background(), []string{"test/model-a"}, nil, chat.ProviderPreferences{}, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "test/served-model", result.Model)
}

func TestStreamTurn_RetriesCandidatesOnRejectedModel(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var payload chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		// The combined request and the bad candidate are rejected; the
		// second candidate alone streams fine.
		if len(payload.Models) > 1 || payload.Model == "test/bad" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
			return
		}
		writeStreamFrames(w, `{"model":"test/good","choices":[{"delta":{"content":"saved"},"finish_reason":"stop"}]}`)
	})

	result, err := svc.StreamTurn(context.Background(), []string{"test/bad", "test/good"}, nil, chat.ProviderPreferences{}, func(string) {})
	require.NoError(t, err)

	assert.Equal(t, "saved", result.Raw)
	assert.Equal(t, "test/good", result.Model)
	assert.Equal(t, int32(3), calls.Load(), "combined attempt plus one retry per candidate")
}

func TestStreamTurn_NonRetryableErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded"}}`)
	})

	_, err := svc.StreamTurn(context.Background(), []string{"test/a", "test/b"}, nil, chat.ProviderPreferences{}, func(string) {})
	require.Error(t, err)

	httpErr, ok := err.(*HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Equal(t, "upstream exploded", httpErr.Message)
	assert.Equal(t, int32(1), calls.Load(), "server errors are not retried per-model")
}

func TestStreamTurn_NoModels(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := svc.StreamTurn(context.Background(), []string{"", ""}, nil, chat.ProviderPreferences{}, func(string) {})
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var payload chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.False(t, payload.Stream)
		assert.Equal(t, "test/repair", payload.Model)
		assert.Equal(t, 0.0, payload.Temperature)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"test/repair","choices":[{"message":{"role":"assistant","content":"repaired"},"finish_reason":"stop"}]}`)
	})

	content, err := svc.Complete(context.Background(), "test/repair", nil, 0, 900)
	require.NoError(t, err)
	assert.Equal(t, "repaired", content)
}

func TestComplete_ErrorEnvelope(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"rate limited","code":429}}`)
	})

	_, err := svc.Complete(context.Background(), "test/repair", nil, 0, 900)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestComplete_NoChoices(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model":"test/repair","choices":[]}`)
	})

	_, err := svc.Complete(context.Background(), "test/repair", nil, 0, 900)
	assert.Error(t, err)
}

func TestIsModelRetryable(t *testing.T) {
	assert.True(t, IsModelRetryable(&HTTPError{Status: 400}))
	assert.True(t, IsModelRetryable(&HTTPError{Status: 404}))
	assert.True(t, IsModelRetryable(&HTTPError{Status: 422}))
	assert.False(t, IsModelRetryable(&HTTPError{Status: 500}))
	assert.False(t, IsModelRetryable(fmt.Errorf("plain error")))
}

func TestReadErrorMessage_FallsBackToRawBody(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad gateway from the edge")
	})

	_, err := svc.Complete(context.Background(), "test/model", nil, 0, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad gateway from the edge")
}
