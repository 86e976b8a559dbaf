package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/trail-engine/pkg/chat"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

const streamDoneSentinel = "[DONE]"

// maxStreamLineBytes bounds a single SSE frame from the upstream.
const maxStreamLineBytes = 1024 * 1024

// HTTPError is a non-2xx response from the completions API. The status
// code decides whether client-side model fallback applies.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openrouter request failed (%d): %s", e.Status, e.Message)
}

// IsModelRetryable reports whether an error looks like a model-id
// problem (bad request, not found, unprocessable) rather than a
// transient network failure, so retrying with a different candidate
// model is worthwhile.
func IsModelRetryable(err error) bool {
	httpErr, ok := err.(*HTTPError)
	if !ok {
		return false
	}
	switch httpErr.Status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// OpenRouterService implements TurnStreamer against the OpenRouter
// chat-completions API.
type OpenRouterService struct {
	apiKey      string
	baseURL     string
	siteURL     string
	siteName    string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOpenRouterService creates a new OpenRouter client. An empty baseURL
// selects the production API.
func NewOpenRouterService(apiKey, baseURL, siteURL, siteName string, temperature float64, maxTokens int, timeout time.Duration, logger *slog.Logger) *OpenRouterService {
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	return &OpenRouterService{
		apiKey:      apiKey,
		baseURL:     baseURL,
		siteURL:     siteURL,
		siteName:    siteName,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// chatRequest is the completions request payload. Models carries the
// full candidate list for provider-side fallback.
type chatRequest struct {
	Model       string                    `json:"model"`
	Models      []string                  `json:"models,omitempty"`
	Stream      bool                      `json:"stream"`
	Temperature float64                   `json:"temperature"`
	MaxTokens   int                       `json:"max_tokens,omitempty"`
	Messages    []chat.ChatMessage        `json:"messages"`
	Provider    *chat.ProviderPreferences `json:"provider,omitempty"`
}

// chatResponse is the non-streaming completions response.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// streamFrame is one data: frame of a streaming response.
type streamFrame struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// errorBody is the best-effort shape of an upstream error payload.
type errorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// StreamTurn issues a streaming completion. The full candidate list is
// passed upstream for provider-side fallback; if the request itself is
// rejected in the retryable class, each candidate model is retried
// sequentially client-side until one succeeds or all are exhausted.
func (s *OpenRouterService) StreamTurn(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(token string)) (*StreamResult, error) {
	candidates := dedupeModels(models)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no models were configured")
	}

	result, err := s.streamOnce(ctx, candidates, messages, provider, onToken)
	if err == nil {
		return result, nil
	}

	if !IsModelRetryable(err) || len(candidates) < 2 {
		return nil, err
	}

	s.logger.Warn("Streaming request rejected, retrying candidates individually", "error", err)

	lastErr := err
	for _, model := range candidates {
		result, retryErr := s.streamOnce(ctx, []string{model}, messages, provider, onToken)
		if retryErr == nil {
			return result, nil
		}
		s.logger.Warn("Candidate model failed", "model", model, "error", retryErr)
		lastErr = retryErr
	}
	return nil, lastErr
}

func (s *OpenRouterService) streamOnce(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(token string)) (*StreamResult, error) {
	payload := chatRequest{
		Model:       models[0],
		Models:      models,
		Stream:      true,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Messages:    messages,
		Provider:    &provider,
	}

	resp, err := s.doRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	result := &StreamResult{
		Model: firstNonEmpty(resp.Header.Get("X-Openrouter-Model"), resp.Header.Get("X-Model")),
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == streamDoneSentinel {
			continue
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Malformed frames are skipped, not fatal.
			s.logger.Debug("Skipping malformed stream frame", "error", err)
			continue
		}

		if result.Model == "" && frame.Model != "" {
			result.Model = frame.Model
		}
		if len(frame.Choices) == 0 {
			continue
		}
		choice := frame.Choices[0]
		if choice.FinishReason != "" {
			result.FinishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			result.Raw += choice.Delta.Content
			onToken(choice.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response stream: %w", err)
	}

	if result.Model == "" {
		result.Model = models[0]
	}
	return result, nil
}

// Complete issues a non-streaming completion against a single model and
// returns the message content. Used for repair and narrative-recovery
// calls, which carry their own temperature and token budget.
func (s *OpenRouterService) Complete(ctx context.Context, model string, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error) {
	payload := chatRequest{
		Model:       model,
		Stream:      false,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    messages,
	}

	resp, err := s.doRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("API error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from API")
	}
	return completion.Choices[0].Message.Content, nil
}

func (s *OpenRouterService) doRequest(ctx context.Context, payload chatRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", s.siteURL)
	req.Header.Set("X-Title", s.siteName)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, &HTTPError{
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp),
		}
	}

	return resp, nil
}

// readErrorMessage pulls a human-readable message out of an error
// response, trying the JSON envelope first and falling back to the raw
// body text.
func readErrorMessage(resp *http.Response) string {
	fallback := fmt.Sprintf("request failed (%d)", resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fallback
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	return fallback
}

func dedupeModels(models []string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		unique = append(unique, model)
	}
	return unique
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
