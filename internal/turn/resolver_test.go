package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/trail-engine/internal/config"
	"github.com/jwebster45206/trail-engine/internal/services"
	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/extract"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		APIKey:          "test-key",
		Model:           "test/primary",
		ModelFallbacks:  []string{"test/backup"},
		RepairModel:     "test/repair",
		MaxTokens:       800,
		Temperature:     0.7,
		TranscriptTurns: config.DefaultTranscriptTurns,
		TranscriptChars: config.DefaultTranscriptChars,

		ProviderSort:          "throughput",
		ProviderPartition:     "none",
		ProviderMinThroughput: 18,
		ProviderMaxLatency:    8,
	}
}

// recordingEmitter captures every event the resolver emits, in order.
type recordingEmitter struct {
	tokens     []string
	states     []*state.TrailState
	narratives []string
	metas      []chat.MetaEvent
	errors     []string
	dones      []bool
}

func (e *recordingEmitter) Token(token string) { e.tokens = append(e.tokens, token) }
func (e *recordingEmitter) State(st *state.TrailState, narrative string) {
	e.states = append(e.states, st)
	e.narratives = append(e.narratives, narrative)
}
func (e *recordingEmitter) Meta(meta chat.MetaEvent) { e.metas = append(e.metas, meta) }
func (e *recordingEmitter) Error(message string)     { e.errors = append(e.errors, message) }
func (e *recordingEmitter) Done(ok bool)             { e.dones = append(e.dones, ok) }

// streamOutput builds a well-formed model response: narration followed
// by a tagged state block.
func streamOutput(narrative string, ts *state.TrailState) string {
	data, _ := json.Marshal(ts)
	return fmt.Sprintf("%s\n\n<STATE>\n%s\n</STATE>", narrative, data)
}

func stateRequest(t *testing.T, mode, playerInput string, ts *state.TrailState) *chat.TurnRequest {
	t.Helper()
	req := &chat.TurnRequest{Mode: mode, PlayerInput: playerInput}
	if ts != nil {
		data, err := json.Marshal(ts)
		require.NoError(t, err)
		req.State = data
	}
	return req
}

const completeNarrative = "Your wagon rolls west out of Independence under a clear spring sky."

func TestResolve_StartTurnCommitsStreamedState(t *testing.T) {
	previous := state.NewTrailState("sess-1")
	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		raw := streamOutput(completeNarrative, previous)
		onToken(completeNarrative)
		return &services.StreamResult{Raw: raw, Model: models[0], FinishReason: "stop"}, nil
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeStart, "", previous), emitter)

	require.Len(t, emitter.states, 1)
	require.Len(t, emitter.metas, 1)
	assert.Equal(t, []bool{true}, emitter.dones)
	assert.Empty(t, emitter.errors)
	assert.Equal(t, []string{completeNarrative}, emitter.tokens)

	committed := emitter.states[0]
	assert.Equal(t, "sess-1", committed.SessionID)
	assert.Equal(t, 0.0, committed.Turn.Index, "start turns do not advance the counter")
	assert.Equal(t, completeNarrative, emitter.narratives[0])

	meta := emitter.metas[0]
	assert.Equal(t, extract.SourceStateTag, meta.StateSource)
	assert.Equal(t, "test/primary", meta.Model)
	assert.Equal(t, "stop", meta.FinishReason)
	assert.Empty(t, mock.CompleteCalls, "a clean turn needs no repair calls")
}

func TestResolve_RepairRecoversMissingState(t *testing.T) {
	previous := state.NewTrailState("sess-1")
	previous.Turn.Index = 4

	repaired := *previous
	repaired.Turn.Index = 5
	repaired.Progress.MilesTraveled = 24
	repairedJSON, err := json.Marshal(&repaired)
	require.NoError(t, err)

	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		return &services.StreamResult{Raw: completeNarrative, Model: models[0], FinishReason: "stop"}, nil
	}
	mock.CompleteFunc = func(ctx context.Context, model string, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error) {
		return string(repairedJSON), nil
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeTurn, "press on", previous), emitter)

	require.Len(t, emitter.states, 1)
	assert.Equal(t, StateSourceRepair, emitter.metas[0].StateSource)
	assert.Equal(t, 5.0, emitter.states[0].Turn.Index)
	assert.Equal(t, 24.0, emitter.states[0].Progress.MilesTraveled)

	require.Len(t, mock.CompleteCalls, 1, "first repair round sufficed")
	assert.Equal(t, "test/repair", mock.CompleteCalls[0].Model)
	assert.Equal(t, 0.0, mock.CompleteCalls[0].Temperature)
}

func TestResolve_DerivedFallbackWhenRepairFails(t *testing.T) {
	previous := state.NewTrailState("sess-1")
	previous.Turn.Index = 4
	previous.Resources.Oxen = 4

	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		return &services.StreamResult{Raw: completeNarrative, Model: models[0], FinishReason: "stop"}, nil
	}
	// Default CompleteFunc returns empty output: both repair rounds fail.

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeTurn, "press on", previous), emitter)

	require.Len(t, emitter.states, 1)
	assert.Equal(t, []bool{true}, emitter.dones, "the turn still commits")
	assert.Equal(t, StateSourceDerivedFallback, emitter.metas[0].StateSource)

	committed := emitter.states[0]
	assert.Equal(t, 5.0, committed.Turn.Index)
	assert.Equal(t, 2.0, committed.Progress.MilesTraveled, "miles scale with the ox team")
	assert.Equal(t, "press on", committed.Turn.LastCommand)
	assert.NotEmpty(t, committed.Turn.LastOutcomeSummary)
	assert.Len(t, mock.CompleteCalls, 2, "both repair rounds were tried")
}

func TestResolve_TurnIndexOnlyMovesForward(t *testing.T) {
	previous := state.NewTrailState("sess-1")
	previous.Turn.Index = 7

	stale := *previous
	stale.Turn.Index = 3

	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		return &services.StreamResult{Raw: streamOutput(completeNarrative, &stale), Model: models[0], FinishReason: "stop"}, nil
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeTurn, "press on", previous), emitter)

	require.Len(t, emitter.states, 1)
	assert.Equal(t, 8.0, emitter.states[0].Turn.Index)
}

func TestResolve_NarrativeRecoveryOnLengthStop(t *testing.T) {
	previous := state.NewTrailState("sess-1")
	recovered := "The river crossing goes badly but the wagon holds together and the party camps on the far bank."

	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		return &services.StreamResult{Raw: streamOutput("The river", previous), Model: models[0], FinishReason: "length"}, nil
	}
	mock.CompleteFunc = func(ctx context.Context, model string, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error) {
		return recovered, nil
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeTurn, "ford the river", previous), emitter)

	require.Len(t, emitter.narratives, 1)
	assert.Equal(t, recovered, emitter.narratives[0])

	require.Len(t, mock.CompleteCalls, 1)
	assert.Equal(t, 0.4, mock.CompleteCalls[0].Temperature)
	assert.Equal(t, 260, mock.CompleteCalls[0].MaxTokens)
	assert.Equal(t, "length", emitter.metas[0].FinishReason)
}

func TestResolve_StreamFailureEmitsErrorThenDone(t *testing.T) {
	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		return nil, fmt.Errorf("upstream unreachable")
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeTurn, "press on", nil), emitter)

	assert.Empty(t, emitter.states)
	assert.Equal(t, []string{"upstream unreachable"}, emitter.errors)
	assert.Equal(t, []bool{false}, emitter.dones)
}

func TestResolve_MalformedClientStateStartsFresh(t *testing.T) {
	mock := services.NewMockTurnStreamer()
	var captured []chat.ChatMessage
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		captured = messages
		fresh := state.NewTrailState("ignored")
		return &services.StreamResult{Raw: streamOutput(completeNarrative, fresh), Model: models[0], FinishReason: "stop"}, nil
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	emitter := &recordingEmitter{}
	req := &chat.TurnRequest{Mode: state.ModeStart, State: json.RawMessage(`"not an object"`)}
	resolver.Resolve(context.Background(), req, emitter)

	require.Len(t, emitter.states, 1)
	assert.Equal(t, []bool{true}, emitter.dones)
	require.NotEmpty(t, captured)
	assert.Equal(t, chat.ChatRoleSystem, captured[0].Role)
}

func TestResolve_ModelCandidatesPassedThrough(t *testing.T) {
	previous := state.NewTrailState("sess-1")
	mock := services.NewMockTurnStreamer()
	mock.StreamTurnFunc = func(ctx context.Context, models []string, messages []chat.ChatMessage, provider chat.ProviderPreferences, onToken func(string)) (*services.StreamResult, error) {
		return &services.StreamResult{Raw: streamOutput(completeNarrative, previous), Model: models[0], FinishReason: "stop"}, nil
	}

	resolver := NewResolver(mock, testConfig(), testLogger())
	resolver.Resolve(context.Background(), stateRequest(t, state.ModeTurn, "go", previous), &recordingEmitter{})

	require.Len(t, mock.StreamTurnCalls, 1)
	assert.Equal(t, []string{"test/primary", "test/backup"}, mock.StreamTurnCalls[0].Models)
}
