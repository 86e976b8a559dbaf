// Package turn drives the resolution of one game turn: stream the model
// response, extract a state block, repair it when the model misbehaved,
// and fall back to a synthetic state so the game can always advance.
package turn

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jwebster45206/trail-engine/internal/config"
	"github.com/jwebster45206/trail-engine/internal/services"
	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/extract"
	"github.com/jwebster45206/trail-engine/pkg/prompts"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

// Budgets for the auxiliary non-streaming calls. Repair runs at
// temperature zero; narrative recovery stays low but not frozen.
const (
	repairMaxTokens       = 1200
	strictRepairMaxTokens = 900
	recoveryMaxTokens     = 260
	recoveryTemperature   = 0.4
)

// StateSourceRepair and StateSourceDerivedFallback extend the extractor
// sources for states produced after extraction failed.
const (
	StateSourceRepair          = "repair"
	StateSourceDerivedFallback = "derived-fallback"
)

// minNarrativeLen is the shortest narration accepted as complete.
const minNarrativeLen = 40

var (
	openTagAtEndRe = regexp.MustCompile(`(?i)<STATE>\s*$`)
	completeEndRe  = regexp.MustCompile(`[.!?]["')\]]?$`)
)

// Emitter receives the turn's externally-visible events, in order. The
// HTTP handler implements it over SSE; tests record it in memory.
type Emitter interface {
	Token(token string)
	State(st *state.TrailState, narrative string)
	Meta(meta chat.MetaEvent)
	Error(message string)
	Done(ok bool)
}

// Resolver is the per-turn state machine. It holds no per-request state;
// one Resolver serves concurrent turns.
type Resolver struct {
	streamer services.TurnStreamer
	cfg      *config.Config
	logger   *slog.Logger
}

// NewResolver creates a turn resolver.
func NewResolver(streamer services.TurnStreamer, cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		streamer: streamer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Resolve runs one full turn against an already-open event stream. Every
// path ends with Done: ok on commit, not-ok after an error event. No
// error crosses this boundary; the stream is the only output.
func (r *Resolver) Resolve(ctx context.Context, req *chat.TurnRequest, emit Emitter) {
	startedAt := time.Now()

	mode := req.NormalizedMode()
	playerInput := strings.TrimSpace(req.PlayerInput)

	candidate := req.StateCandidate()
	defaultState := state.NewTrailState(sessionIDOf(candidate))
	previous := state.Normalize(candidate, defaultState)
	if previous == nil {
		previous = defaultState
	}

	providerPrefs := chat.NewProviderPreferences(
		r.cfg.ProviderSort,
		r.cfg.ProviderPartition,
		r.cfg.ProviderMinThroughput,
		r.cfg.ProviderMaxLatency,
	)

	messages, err := prompts.New().
		WithMode(mode).
		WithPlayerInput(playerInput).
		WithState(previous).
		WithTranscript(req.Transcript).
		WithClientHints(req.ClientHints).
		WithTranscriptLimits(r.cfg.TranscriptTurns, r.cfg.TranscriptChars).
		Build()
	if err != nil {
		r.fail(emit, err.Error())
		return
	}

	streamResult, err := r.streamer.StreamTurn(ctx, r.cfg.ModelCandidates(), messages, providerPrefs, emit.Token)
	if err != nil {
		r.logger.Error("Turn stream failed", "error", err)
		r.fail(emit, err.Error())
		return
	}

	raw := streamResult.Raw
	extraction := extract.Extract(raw)

	var parsed any
	stateSource := extraction.Source
	if extraction.ParsedState != nil {
		parsed = extraction.ParsedState
	}
	narrative := extraction.Narrative

	if parsed == nil {
		if repaired := r.repairState(ctx, previous, mode, playerInput, raw); repaired != nil {
			parsed = repaired
			stateSource = StateSourceRepair
		}
	}

	if parsed == nil {
		parsed = state.DeriveFallback(previous, mode, playerInput, narrative)
		stateSource = StateSourceDerivedFallback
	}

	normalized := state.Normalize(parsed, previous)
	if normalized == nil {
		// Should not happen; the fallback always normalizes.
		normalized = state.Normalize(state.DeriveFallback(previous, mode, playerInput, narrative), previous)
		stateSource = StateSourceDerivedFallback
	}
	if normalized == nil {
		r.fail(emit, firstNonEmpty(extraction.Err, "failed to parse trail state from model output"))
		return
	}

	// Commit: the turn index only moves forward, whatever the model said.
	floor := float64(0)
	if mode == state.ModeTurn {
		floor = previous.Turn.Index + 1
	}
	committed := *normalized
	committed.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	committed.Turn.Index = math.Max(normalized.Turn.Index, floor)
	if mode == state.ModeTurn {
		committed.Turn.LastCommand = playerInput
	}

	if r.needsNarrativeRecovery(streamResult.FinishReason, raw, narrative) {
		if recovered := r.recoverNarrative(ctx, mode, playerInput, previous, &committed, narrative); recovered != "" {
			narrative = recovered
		}
	}

	emit.State(&committed, narrative)
	emit.Meta(chat.MetaEvent{
		Model:        streamResult.Model,
		DurationMs:   time.Since(startedAt).Milliseconds(),
		OutputChars:  len(raw),
		FinishReason: firstNonEmpty(streamResult.FinishReason, "unknown"),
		StateSource:  stateSource,
		ProviderSort: providerPrefs.Sort,
	})
	emit.Done(true)
}

// repairState runs the two-round repair ladder. Both rounds are
// temperature-zero completions against the repair model; any error or
// unparseable output just falls through to the next rung.
func (r *Resolver) repairState(ctx context.Context, previous *state.TrailState, mode, playerInput, rawText string) map[string]any {
	content, err := r.streamer.Complete(ctx, r.cfg.RepairModel,
		prompts.RepairMessages(previous, mode, playerInput, rawText), 0, repairMaxTokens)
	if err != nil {
		r.logger.Warn("First repair attempt failed", "error", err)
	} else if result := extract.Extract(content); result.ParsedState != nil {
		return result.ParsedState
	}

	strictContent, err := r.streamer.Complete(ctx, r.cfg.RepairModel,
		prompts.StrictRepairMessages(previous, mode, playerInput, rawText, content), 0, strictRepairMaxTokens)
	if err != nil {
		r.logger.Warn("Strict repair attempt failed", "error", err)
		return nil
	}
	if result := extract.Extract(strictContent); result.ParsedState != nil {
		return result.ParsedState
	}
	return nil
}

// needsNarrativeRecovery decides whether the streamed narration was cut
// off: an explicit length stop, a dangling open state tag, or text that
// just does not read as finished.
func (r *Resolver) needsNarrativeRecovery(finishReason, rawText, narrative string) bool {
	if finishReason == "length" {
		return true
	}
	if openTagAtEndRe.MatchString(rawText) {
		return true
	}
	return narrativeLooksCutOff(narrative)
}

func narrativeLooksCutOff(narrative string) bool {
	trimmed := strings.TrimSpace(narrative)
	if trimmed == "" {
		return true
	}
	if utf8.RuneCountInString(trimmed) < minNarrativeLen {
		return true
	}
	return !completeEndRe.MatchString(trimmed)
}

// recoverNarrative asks the repair model for a complete 3-6 sentence
// narration consistent with the committed state. Best effort only; an
// empty return keeps the streamed narrative.
func (r *Resolver) recoverNarrative(ctx context.Context, mode, playerInput string, previous, next *state.TrailState, partial string) string {
	content, err := r.streamer.Complete(ctx, r.cfg.RepairModel,
		prompts.RecoveryMessages(mode, playerInput, previous, next, partial), recoveryTemperature, recoveryMaxTokens)
	if err != nil {
		r.logger.Warn("Narrative recovery failed", "error", err)
		return ""
	}
	return strings.TrimSpace(extract.StripStateBlock(content))
}

func (r *Resolver) fail(emit Emitter, message string) {
	if message == "" {
		message = "unknown proxy error while resolving trail turn"
	}
	emit.Error(message)
	emit.Done(false)
}

// sessionIDOf recovers the session id from an untrusted state candidate
// so a fresh default state stays in the same session.
func sessionIDOf(candidate any) string {
	obj, ok := candidate.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := obj["sessionId"].(string)
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
