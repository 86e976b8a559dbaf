package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalState carries every required top-level key with just enough
// shape to pass the key check.
const minimalState = `{"sessionId":"s1","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z","calendar":{},"progress":{"landmark":"Fort Laramie"},"party":{},"resources":{},"conditions":{},"flags":{},"turn":{"index":3}}`

func TestExtract_StateTag(t *testing.T) {
	raw := "The oxen strain against the mud.\n\n<STATE>\n" + minimalState + "\n</STATE>"

	result := Extract(raw)
	require.NotNil(t, result.ParsedState)

	assert.Equal(t, SourceStateTag, result.Source)
	assert.Equal(t, "s1", result.ParsedState["sessionId"])
	assert.Equal(t, "The oxen strain against the mud.", result.Narrative)
	assert.NotContains(t, result.Narrative, "<STATE>")
	assert.Empty(t, result.Err)
}

func TestExtract_StateTagBeatsFencedJSON(t *testing.T) {
	tagged := strings.Replace(minimalState, `"s1"`, `"tagged"`, 1)
	fenced := strings.Replace(minimalState, `"s1"`, `"fenced"`, 1)
	raw := "```json\n" + fenced + "\n```\n\nOnward.\n\n<STATE>" + tagged + "</STATE>"

	result := Extract(raw)
	require.NotNil(t, result.ParsedState)

	assert.Equal(t, SourceStateTag, result.Source)
	assert.Equal(t, "tagged", result.ParsedState["sessionId"])
}

func TestExtract_OpenStateTag(t *testing.T) {
	// Stream cut off before the closing tag; the JSON itself is whole.
	raw := "A hard climb through the pass.\n\n<STATE>\n" + minimalState

	result := Extract(raw)
	require.NotNil(t, result.ParsedState)
	assert.Equal(t, SourceOpenTag, result.Source)
}

func TestExtract_FencedJSON(t *testing.T) {
	raw := "Here is the updated state:\n\n```json\n" + minimalState + "\n```"

	result := Extract(raw)
	require.NotNil(t, result.ParsedState)
	assert.Equal(t, SourceFencedJSON, result.Source)
}

func TestExtract_InlineJSON(t *testing.T) {
	raw := "The party presses on. " + minimalState + " That was the day."

	result := Extract(raw)
	require.NotNil(t, result.ParsedState)
	assert.Equal(t, SourceInlineJSON, result.Source)
	assert.Contains(t, result.Narrative, "The party presses on.")
	assert.NotContains(t, result.Narrative, `"sessionId"`)
}

func TestExtract_EnvelopeUnwrap(t *testing.T) {
	raw := `<STATE>{"narration":"done","state":` + minimalState + `}</STATE>`

	result := Extract(raw)
	require.NotNil(t, result.ParsedState)
	assert.Equal(t, SourceStateTag, result.Source)
	assert.Equal(t, "s1", result.ParsedState["sessionId"])
}

func TestExtract_WholeText(t *testing.T) {
	result := Extract(minimalState)
	require.NotNil(t, result.ParsedState)

	// The inline scan finds the object first; whole-text is the last rung
	// and only fires for bare JSON with no braces found earlier, so assert
	// the candidate itself rather than the source here.
	assert.Equal(t, "s1", result.ParsedState["sessionId"])
}

func TestExtract_NoState(t *testing.T) {
	raw := "You cannot ford the river here. The water is too deep."

	result := Extract(raw)
	assert.Nil(t, result.ParsedState)
	assert.Equal(t, SourceNone, result.Source)
	assert.Equal(t, raw, result.Narrative)
	assert.NotEmpty(t, result.Err)
}

func TestExtract_IncompleteObjectRejected(t *testing.T) {
	raw := `<STATE>{"sessionId":"s1","progress":{}}</STATE> The rest was lost.`

	result := Extract(raw)
	assert.Nil(t, result.ParsedState)
	assert.Equal(t, SourceNone, result.Source)
}

func TestBalancedJSONObjects_StringAware(t *testing.T) {
	// Braces and escaped quotes inside string values must not confuse
	// the scanner.
	text := `before {"a":"open { brace","b":"quote \" then }"} after {"c":1}`

	objects := BalancedJSONObjects(text, 10)
	require.Len(t, objects, 2)
	assert.Equal(t, `{"a":"open { brace","b":"quote \" then }"}`, objects[0])
	assert.Equal(t, `{"c":1}`, objects[1])
}

func TestBalancedJSONObjects_Limit(t *testing.T) {
	text := strings.Repeat("{} ", 50)
	assert.Len(t, BalancedJSONObjects(text, 24), 24)
}

func TestBalancedJSONObjects_UnbalancedIgnored(t *testing.T) {
	assert.Empty(t, BalancedJSONObjects(`} {"never closed":`, 10))
}

func TestStripStateBlock(t *testing.T) {
	raw := "Day breaks.\n\n<STATE>{\"x\":1}</STATE>\n\n\n\nThe trail continues."

	stripped := StripStateBlock(raw)
	assert.Equal(t, "Day breaks.\n\nThe trail continues.", stripped)
}
