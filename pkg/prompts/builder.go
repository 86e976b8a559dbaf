package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/extract"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

const minTranscriptChars = 120

// Builder constructs the message array for one turn using a fluent
// interface. It separates prompt assembly from turn orchestration.
type Builder struct {
	mode            string
	playerInput     string
	trailState      *state.TrailState
	transcript      []chat.TranscriptMessage
	hints           chat.ClientHints
	transcriptTurns int
	transcriptChars int
}

// New creates a prompt builder with default transcript limits.
func New() *Builder {
	return &Builder{
		transcriptTurns: 12,
		transcriptChars: 900,
	}
}

// WithMode sets the turn mode ("start" or "turn").
func (b *Builder) WithMode(mode string) *Builder {
	b.mode = mode
	return b
}

// WithPlayerInput sets the player's raw command.
func (b *Builder) WithPlayerInput(input string) *Builder {
	b.playerInput = input
	return b
}

// WithState sets the previous committed state.
func (b *Builder) WithState(ts *state.TrailState) *Builder {
	b.trailState = ts
	return b
}

// WithTranscript sets the client-provided conversation window.
func (b *Builder) WithTranscript(transcript []chat.TranscriptMessage) *Builder {
	b.transcript = transcript
	return b
}

// WithClientHints sets client-side input observations.
func (b *Builder) WithClientHints(hints chat.ClientHints) *Builder {
	b.hints = hints
	return b
}

// WithTranscriptLimits sets the transcript window size (entries kept and
// characters kept per entry).
func (b *Builder) WithTranscriptLimits(turns, chars int) *Builder {
	b.transcriptTurns = turns
	b.transcriptChars = chars
	return b
}

// Build constructs the system + user message pair for the streaming call.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.trailState == nil {
		return nil, fmt.Errorf("trail state is required")
	}

	stateJSON, err := json.Marshal(b.trailState)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize trail state: %w", err)
	}

	transcriptJSON, err := json.Marshal(CompactTranscript(b.transcript, b.transcriptTurns, b.transcriptChars))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transcript: %w", err)
	}

	hint := "no"
	if b.hints.AnachronisticInput {
		hint = "yes"
	}

	userContent := strings.Join([]string{
		"Mode: " + b.mode,
		"Player input: " + orStart(b.playerInput),
		"Anachronism hint from client: " + hint,
		"Current state JSON:",
		string(stateJSON),
		"Recent transcript JSON:",
		string(transcriptJSON),
		"Advance the simulation by one coherent turn and return narrative plus <STATE> JSON.",
	}, "\n\n")

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: SystemPrompt},
		{Role: chat.ChatRoleUser, Content: userContent},
	}, nil
}

// CompactTranscript keeps the last maxTurns entries, clamps roles to the
// known set, and tail-slices each entry's text so the oldest context is
// shed first.
func CompactTranscript(transcript []chat.TranscriptMessage, maxTurns, maxChars int) []chat.TranscriptMessage {
	if maxTurns < 1 {
		maxTurns = 1
	}
	if maxChars < minTranscriptChars {
		maxChars = minTranscriptChars
	}

	start := 0
	if len(transcript) > maxTurns {
		start = len(transcript) - maxTurns
	}

	compacted := make([]chat.TranscriptMessage, 0, len(transcript)-start)
	for _, msg := range transcript[start:] {
		role := msg.Role
		switch role {
		case chat.ChatRoleSystem, chat.ChatRoleAssistant, chat.ChatRoleUser:
		default:
			role = chat.ChatRoleAssistant
		}
		compacted = append(compacted, chat.TranscriptMessage{
			Role: role,
			Text: tail(msg.Text, maxChars),
		})
	}
	return compacted
}

// RepairMessages builds the first repair call: temperature-0, JSON only,
// with the previous state and the raw output as context.
func RepairMessages(previous *state.TrailState, mode, playerInput, rawText string) []chat.ChatMessage {
	previousJSON, _ := json.MarshalIndent(previous, "", "  ")

	userContent := strings.Join([]string{
		"Previous state JSON:",
		string(previousJSON),
		"Mode: " + mode,
		"Player input: " + orStart(playerInput),
		"Model raw output:",
		rawText,
		"Respond with one corrected JSON object that matches the required game state schema.",
	}, "\n\n")

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: repairSystemPrompt},
		{Role: chat.ChatRoleUser, Content: userContent},
	}
}

// StrictRepairMessages builds the second, stricter repair call. It lists
// the exact required top-level keys and includes the first round's
// output as further context.
func StrictRepairMessages(previous *state.TrailState, mode, playerInput, rawText, firstRepairOutput string) []chat.ChatMessage {
	previousJSON, _ := json.Marshal(previous)

	userContent := strings.Join([]string{
		"Required top-level keys:",
		strings.Join(extract.RequiredStateKeys, ", "),
		"Previous state JSON:",
		string(previousJSON),
		"Mode: " + mode,
		"Player input: " + orStart(playerInput),
		"Original model output:",
		rawText,
		"Your previous repair output:",
		firstRepairOutput,
		"Return exactly one JSON object now.",
	}, "\n\n")

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: strictRepairSystemPrompt},
		{Role: chat.ChatRoleUser, Content: userContent},
	}
}

// RecoveryMessages builds the narrative-recovery call used when the
// streamed narration was truncated.
func RecoveryMessages(mode, playerInput string, previous, next *state.TrailState, partialNarrative string) []chat.ChatMessage {
	previousJSON, _ := json.Marshal(previous)
	nextJSON, _ := json.Marshal(next)

	partial := partialNarrative
	if partial == "" {
		partial = "(none)"
	}

	userContent := strings.Join([]string{
		"Mode: " + mode,
		"Player input: " + orStart(playerInput),
		"Previous state JSON:",
		string(previousJSON),
		"Resolved next state JSON:",
		string(nextJSON),
		"Partial narration to complete:",
		partial,
		"Write 3-6 sentences that feel complete and consistent with the resolved next state.",
	}, "\n\n")

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: recoverySystemPrompt},
		{Role: chat.ChatRoleUser, Content: userContent},
	}
}

func orStart(playerInput string) string {
	if playerInput == "" {
		return "(start)"
	}
	return playerInput
}

// tail keeps the final maxChars characters of s.
func tail(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[len(runes)-maxChars:])
}
