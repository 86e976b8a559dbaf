package services

import (
	"context"

	"github.com/jwebster45206/trail-engine/pkg/chat"
)

// StreamResult is the outcome of one streamed completion: the full
// accumulated text, the model that actually produced it (provider-side
// routing may substitute a different model than requested), and the
// terminal finish reason.
type StreamResult struct {
	Raw          string
	Model        string
	FinishReason string
}

// TurnStreamer is the upstream surface the turn orchestrator depends on.
type TurnStreamer interface {
	// StreamTurn issues a streaming completion against the ordered model
	// candidate list, invoking onToken for every incremental chunk.
	StreamTurn(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(token string)) (*StreamResult, error)

	// Complete issues a non-streaming completion against a single model
	// and returns the message content.
	Complete(ctx context.Context, model string, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error)
}
