package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/trail-engine/pkg/chat"
)

// MockTurnStreamer is a mock implementation of TurnStreamer for testing.
type MockTurnStreamer struct {
	StreamTurnFunc func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(token string)) (*StreamResult, error)
	CompleteFunc   func(ctx context.Context, model string, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error)

	// Track calls for testing
	StreamTurnCalls []StreamTurnCall
	CompleteCalls   []CompleteCall

	mu sync.Mutex // protects call slices
}

type StreamTurnCall struct {
	Models   []string
	Messages []chat.ChatMessage
}

type CompleteCall struct {
	Model       string
	Messages    []chat.ChatMessage
	Temperature float64
	MaxTokens   int
}

// NewMockTurnStreamer creates a new mock streamer.
func NewMockTurnStreamer() *MockTurnStreamer {
	return &MockTurnStreamer{
		StreamTurnCalls: make([]StreamTurnCall, 0),
		CompleteCalls:   make([]CompleteCall, 0),
	}
}

func (m *MockTurnStreamer) StreamTurn(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(token string)) (*StreamResult, error) {
	m.mu.Lock()
	m.StreamTurnCalls = append(m.StreamTurnCalls, StreamTurnCall{Models: models, Messages: messages})
	m.mu.Unlock()

	if m.StreamTurnFunc != nil {
		return m.StreamTurnFunc(ctx, models, messages, provider, onToken)
	}
	return &StreamResult{Model: models[0], FinishReason: "stop"}, nil
}

func (m *MockTurnStreamer) Complete(ctx context.Context, model string, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{Model: model, Messages: messages, Temperature: temperature, MaxTokens: maxTokens})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, model, messages, temperature, maxTokens)
	}
	return "", nil
}
