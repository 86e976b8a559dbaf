package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/trail-engine/internal/config"
	"github.com/jwebster45206/trail-engine/internal/turn"
	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

// maxRequestBodyBytes bounds the turn request body. State plus a bounded
// transcript window fits comfortably under this.
const maxRequestBodyBytes = 1 << 20

// ErrorResponse is the JSON error envelope for pre-stream failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TurnHandler handles POST /turn: it validates the request, opens the
// SSE stream, and hands the turn to the resolver. Errors before the
// stream opens are plain JSON with a non-2xx status; once streaming has
// begun every failure travels as an error event, because the transport
// cannot renegotiate the status after headers are sent.
type TurnHandler struct {
	resolver *turn.Resolver
	cfg      *config.Config
	logger   *slog.Logger
}

// NewTurnHandler creates a new turn handler.
func NewTurnHandler(resolver *turn.Resolver, cfg *config.Config, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for turn endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	if h.cfg.APIKey == "" {
		h.logger.Error("Turn requested without a configured API key")
		h.writeError(w, http.StatusInternalServerError, "OPENROUTER_API_KEY is not configured.")
		return
	}

	var request chat.TurnRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid turn request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	h.logger.Info("Turn started",
		"mode", request.NormalizedMode(),
		"remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	emitter := &sseEmitter{w: w, flusher: flusher, logger: h.logger}

	h.resolver.Resolve(r.Context(), &request, emitter)
}

func (h *TurnHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// sseEmitter writes resolver events to the response stream, flushing
// after every event so tokens reach the client as they arrive.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger
}

func (e *sseEmitter) Token(token string) {
	e.send("token", chat.TokenEvent{Token: token})
}

func (e *sseEmitter) State(st *state.TrailState, narrative string) {
	e.send("state", chat.StateEvent{State: st, Narrative: narrative})
}

func (e *sseEmitter) Meta(meta chat.MetaEvent) {
	e.send("meta", meta)
}

func (e *sseEmitter) Error(message string) {
	e.send("error", chat.ErrorEvent{Message: message})
}

func (e *sseEmitter) Done(ok bool) {
	e.send("done", chat.DoneEvent{Ok: ok})
}

func (e *sseEmitter) send(eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		e.logger.Error("Failed to marshal SSE data", "error", err, "event", eventType)
		return
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\n", eventType); err != nil {
		e.logger.Error("Failed to write event type", "error", err)
		return
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", dataJSON); err != nil {
		e.logger.Error("Failed to write event data", "error", err)
		return
	}

	if e.flusher != nil {
		e.flusher.Flush()
	}
}
