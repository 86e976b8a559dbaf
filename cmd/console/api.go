package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/extract"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

// ErrorResponse matches the API's pre-stream JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// turnEvent is one decoded SSE event from the /turn stream, delivered to
// the UI through a channel.
type turnEvent struct {
	kind      string // token, state, meta, error, done, fail
	token     string
	state     *state.TrailState
	narrative string
	meta      chat.MetaEvent
	message   string
	ok        bool
	err       error
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// streamTurn posts one turn request and forwards each SSE event to the
// channel. The channel is closed when the stream ends; transport-level
// failures arrive as a final "fail" event.
func streamTurn(ctx context.Context, client *http.Client, baseURL string, turnReq *chat.TurnRequest, events chan<- turnEvent) {
	defer close(events)

	jsonData, err := json.Marshal(turnReq)
	if err != nil {
		events <- turnEvent{kind: "fail", err: fmt.Errorf("failed to marshal request: %w", err)}
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/turn", bytes.NewBuffer(jsonData))
	if err != nil {
		events <- turnEvent{kind: "fail", err: fmt.Errorf("failed to create request: %w", err)}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		events <- turnEvent{kind: "fail", err: fmt.Errorf("failed to reach the trail server: %w", err)}
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			events <- turnEvent{kind: "fail", err: fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))}
			return
		}
		events <- turnEvent{kind: "fail", err: fmt.Errorf("turn request failed: %s", errorResp.Error)}
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			events <- turnEvent{kind: "fail", err: ctx.Err()}
			return
		default:
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			eventName = ""
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			eventName = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := []byte(strings.TrimPrefix(line, "data: "))
		if decoded, ok := decodeTurnEvent(eventName, data); ok {
			events <- decoded
		}
	}

	if err := scanner.Err(); err != nil {
		events <- turnEvent{kind: "fail", err: fmt.Errorf("error reading turn stream: %w", err)}
	}
}

func decodeTurnEvent(name string, data []byte) (turnEvent, bool) {
	switch name {
	case "token":
		var payload chat.TokenEvent
		if json.Unmarshal(data, &payload) != nil {
			return turnEvent{}, false
		}
		return turnEvent{kind: "token", token: payload.Token}, true
	case "state":
		var payload chat.StateEvent
		if json.Unmarshal(data, &payload) != nil {
			return turnEvent{}, false
		}
		return turnEvent{kind: "state", state: payload.State, narrative: payload.Narrative}, true
	case "meta":
		var payload chat.MetaEvent
		if json.Unmarshal(data, &payload) != nil {
			return turnEvent{}, false
		}
		return turnEvent{kind: "meta", meta: payload}, true
	case "error":
		var payload chat.ErrorEvent
		if json.Unmarshal(data, &payload) != nil {
			return turnEvent{}, false
		}
		return turnEvent{kind: "error", message: payload.Message}, true
	case "done":
		var payload chat.DoneEvent
		if json.Unmarshal(data, &payload) != nil {
			return turnEvent{}, false
		}
		return turnEvent{kind: "done", ok: payload.Ok}, true
	default:
		return turnEvent{}, false
	}
}

var (
	stateStartRe      = regexp.MustCompile(`(?i)<\s*STATE\b`)
	partialStateEndRe = regexp.MustCompile(`(?i)<\s*S(?:\s*T(?:\s*A(?:\s*T(?:\s*E?)?)?)?)?$`)
)

// toVisibleNarrative trims the state block, including a half-streamed
// opening tag, so raw JSON never flashes on screen mid-stream.
func toVisibleNarrative(rawText string) string {
	if loc := stateStartRe.FindStringIndex(rawText); loc != nil {
		return strings.TrimRight(rawText[:loc[0]], " \t\n")
	}
	if loc := partialStateEndRe.FindStringIndex(rawText); loc != nil {
		return strings.TrimRight(rawText[:loc[0]], " \t\n")
	}
	return strings.TrimRight(extract.StripStateBlock(rawText), " \t\n")
}
