package chat

import (
	"encoding/json"
	"math"

	"github.com/jwebster45206/trail-engine/pkg/state"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// ChatMessage is a single message in a completion request. The shape is
// defined by the chat-completions wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptMessage is one entry of the client-held conversation log,
// sent back with each turn so the model keeps recent context.
type TranscriptMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ClientHints carry client-side observations about the player's input.
type ClientHints struct {
	AnachronisticInput bool `json:"anachronisticInput"`
}

// TurnRequest is the body of POST /turn. State is the previous committed
// state as the client last saw it, kept as raw JSON so a mangled or
// stale shape never fails the request; the normalizer decides what
// survives. Null or absent state means a brand-new run.
type TurnRequest struct {
	Mode        string              `json:"mode"`
	PlayerInput string              `json:"playerInput"`
	State       json.RawMessage     `json:"state"`
	Transcript  []TranscriptMessage `json:"transcript"`
	ClientHints ClientHints         `json:"clientHints"`
}

// NormalizedMode clamps the requested mode: anything that is not an
// explicit start is a turn.
func (tr *TurnRequest) NormalizedMode() string {
	if tr.Mode == state.ModeStart {
		return state.ModeStart
	}
	return state.ModeTurn
}

// StateCandidate decodes the raw previous state for normalization. It
// returns nil when the field is absent, null, or unparseable.
func (tr *TurnRequest) StateCandidate() any {
	if len(tr.State) == 0 {
		return nil
	}
	var candidate any
	if err := json.Unmarshal(tr.State, &candidate); err != nil {
		return nil
	}
	return candidate
}

// SSE payloads for the turn stream, one type per event name.

// TokenEvent relays one streamed token ("token").
type TokenEvent struct {
	Token string `json:"token"`
}

// StateEvent carries the committed state and narrative ("state").
type StateEvent struct {
	State     *state.TrailState `json:"state"`
	Narrative string            `json:"narrative"`
}

// MetaEvent carries turn telemetry ("meta").
type MetaEvent struct {
	Model        string       `json:"model"`
	DurationMs   int64        `json:"durationMs"`
	OutputChars  int          `json:"outputChars"`
	FinishReason string       `json:"finishReason"`
	StateSource  string       `json:"stateSource"`
	ProviderSort ProviderSort `json:"providerSort"`
}

// ErrorEvent carries a human-readable failure ("error").
type ErrorEvent struct {
	Message string `json:"message"`
}

// DoneEvent terminates every stream ("done"). The client treats stream
// end as the sole liveness signal; Ok distinguishes success from an
// aborted turn.
type DoneEvent struct {
	Ok bool `json:"ok"`
}

// ProviderSort is the routing-preference sort strategy forwarded to the
// upstream API and echoed in turn metadata.
type ProviderSort struct {
	By        string `json:"by"`
	Partition string `json:"partition"`
}

// ProviderPreferences are upstream-API-level hints about which backing
// providers to prefer, independent of model choice.
type ProviderPreferences struct {
	AllowFallbacks         bool         `json:"allow_fallbacks"`
	Sort                   ProviderSort `json:"sort"`
	PreferredMinThroughput float64      `json:"preferred_min_throughput"`
	PreferredMaxLatency    float64      `json:"preferred_max_latency"`
}

// NewProviderPreferences normalizes the configured routing knobs into a
// preferences object the upstream API accepts.
func NewProviderPreferences(sortBy, partition string, minThroughput, maxLatency float64) ProviderPreferences {
	switch sortBy {
	case "price", "throughput", "latency":
	default:
		sortBy = "throughput"
	}
	if partition != "model" {
		partition = "none"
	}
	return ProviderPreferences{
		AllowFallbacks:         true,
		Sort:                   ProviderSort{By: sortBy, Partition: partition},
		PreferredMinThroughput: math.Max(1, minThroughput),
		PreferredMaxLatency:    math.Max(1, maxLatency),
	}
}
