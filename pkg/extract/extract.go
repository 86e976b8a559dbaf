// Package extract locates an embeddable trail-state JSON object inside
// raw model output. The model is asked to end every response with one
// <STATE>...</STATE> block, but in practice it also wraps the block in
// commentary, fences it in markdown, truncates it mid-stream, or nests
// it inside an envelope object. The layered search here trades
// strictness for recall; strict coercion is the normalizer's job.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Sources identify which search strategy produced the state candidate,
// in priority order.
const (
	SourceStateTag   = "state-tag"
	SourceOpenTag    = "state-open-tag"
	SourceFencedJSON = "fenced-json"
	SourceInlineJSON = "inline-json"
	SourceWholeText  = "whole-text"
	SourceNone       = "none"
)

// maxInlineCandidates bounds the balanced-brace scan so pathological
// output cannot turn extraction into a parse storm.
const maxInlineCandidates = 24

// RequiredStateKeys are the top-level keys a candidate object must carry
// (directly, or one level down under "state") to be accepted as a trail
// state. Presence only; value validation happens during normalization.
var RequiredStateKeys = []string{
	"sessionId",
	"createdAt",
	"updatedAt",
	"calendar",
	"progress",
	"party",
	"resources",
	"conditions",
	"flags",
	"turn",
}

var (
	stateTagRe     = regexp.MustCompile(`(?is)<STATE>\s*(.*?)\s*</STATE>`)
	openStateTagRe = regexp.MustCompile(`(?is)<STATE>\s*(.*)$`)
	fencedRe       = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")
	stripTagRe     = regexp.MustCompile(`(?is)<STATE>.*?</STATE>`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	fenceOpenRe    = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceCloseRe   = regexp.MustCompile("(?i)```$")
)

// Result is the outcome of one extraction pass. ParsedState is nil when
// no strategy produced an acceptable object; Narrative is always the
// best-effort visible text with state markers stripped.
type Result struct {
	ParsedState map[string]any
	Narrative   string
	Source      string
	Err         string
}

type match struct {
	parsedState map[string]any
	source      string
	matchedText string
}

// Extract runs the layered search against the full accumulated model
// output and separates the narrative from the state block.
func Extract(rawText string) Result {
	found := parseStateFromText(rawText)
	if found == nil {
		return Result{
			Narrative: StripStateBlock(rawText),
			Source:    SourceNone,
			Err:       "model output did not include parseable trail state",
		}
	}

	narrative := StripStateBlock(rawText)
	if found.matchedText != "" {
		narrative = strings.ReplaceAll(narrative, found.matchedText, " ")
		narrative = strings.TrimSpace(blankRunRe.ReplaceAllString(narrative, "\n\n"))
	}

	return Result{
		ParsedState: found.parsedState,
		Narrative:   narrative,
		Source:      found.source,
	}
}

// parseStateFromText tries each strategy in strict priority order and
// returns the first candidate that parses and passes the key check.
func parseStateFromText(rawText string) *match {
	text := rawText
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tried := make(map[string]bool)
	attempt := func(candidateText, source string) *match {
		key := source + ":" + candidateText
		if tried[key] {
			return nil
		}
		tried[key] = true

		parsed := parseStateCandidate(candidateText)
		if parsed == nil {
			return nil
		}
		return &match{parsedState: parsed, source: source, matchedText: candidateText}
	}

	for _, m := range stateTagRe.FindAllStringSubmatch(text, -1) {
		if found := attempt(m[1], SourceStateTag); found != nil {
			return found
		}
	}

	if m := openStateTagRe.FindStringSubmatch(text); m != nil {
		if found := attempt(m[1], SourceOpenTag); found != nil {
			return found
		}
	}

	for _, m := range fencedRe.FindAllStringSubmatch(text, -1) {
		if found := attempt(m[1], SourceFencedJSON); found != nil {
			return found
		}
	}

	for _, objectText := range BalancedJSONObjects(text, maxInlineCandidates) {
		if found := attempt(objectText, SourceInlineJSON); found != nil {
			return found
		}
	}

	return attempt(text, SourceWholeText)
}

// parseStateCandidate parses one candidate substring, shedding stray
// markdown fences first, and unwraps an enveloped state.
func parseStateCandidate(rawCandidate string) map[string]any {
	cleaned := strings.TrimSpace(rawCandidate)
	cleaned = fenceOpenRe.ReplaceAllString(cleaned, "")
	cleaned = fenceCloseRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil
	}
	return unwrapStateCandidate(parsed)
}

func unwrapStateCandidate(candidate any) map[string]any {
	obj, ok := candidate.(map[string]any)
	if !ok {
		return nil
	}
	if looksLikeTrailState(obj) {
		return obj
	}
	if inner, ok := obj["state"].(map[string]any); ok && looksLikeTrailState(inner) {
		return inner
	}
	return nil
}

func looksLikeTrailState(obj map[string]any) bool {
	for _, key := range RequiredStateKeys {
		if _, ok := obj[key]; !ok {
			return false
		}
	}
	return true
}

// BalancedJSONObjects scans text for top-level balanced-brace spans,
// skipping braces inside quoted strings and honoring escape sequences,
// and returns up to limit candidates in order of appearance.
func BalancedJSONObjects(text string, limit int) []string {
	var candidates []string

	start := -1
	depth := 0
	inString := false
	escaping := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaping:
				escaping = false
			case c == '\\':
				escaping = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidates = append(candidates, text[start:i+1])
				start = -1
				if len(candidates) >= limit {
					return candidates
				}
			}
		}
	}

	return candidates
}

// StripStateBlock removes closed <STATE> blocks and collapses the blank
// runs they leave behind.
func StripStateBlock(text string) string {
	stripped := stripTagRe.ReplaceAllString(text, "")
	stripped = blankRunRe.ReplaceAllString(stripped, "\n\n")
	return strings.TrimSpace(stripped)
}
