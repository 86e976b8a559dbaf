package state

import (
	"math"
	"strings"
	"time"
)

// Modes for a turn request. A start turn boots a fresh run; a turn mode
// request advances an existing one.
const (
	ModeStart = "start"
	ModeTurn  = "turn"
)

const fallbackSummaryPlaceholder = "A difficult day passes on the trail."

// DeriveFallback synthesizes a plausible next state without any model
// call. It is the last rung of the recovery ladder: when extraction and
// both repair rounds fail, the game still advances by exactly one
// measurable step. Pure aside from the updatedAt timestamp, and
// deterministic for identical inputs.
func DeriveFallback(previous *TrailState, mode, playerInput, narrative string) *TrailState {
	base := previous
	if base == nil {
		base = NewTrailState("")
	}

	next := *base
	next.Party.Members = append([]Member(nil), base.Party.Members...)

	now := time.Now().UTC()
	next.UpdatedAt = now.Format(time.RFC3339)

	if date, err := parseTimestamp(base.Calendar.DateISO); err == nil {
		if mode == ModeTurn {
			date = date.AddDate(0, 0, 1)
		}
		next.Calendar.DateISO = date.UTC().Format(time.RFC3339)
	} else {
		next.Calendar.DateISO = now.Format(time.RFC3339)
	}

	// A slow but steady day's travel, scaled by the team that remains.
	var fallbackMiles float64
	if mode == ModeTurn {
		fallbackMiles = math.Min(8, math.Max(1, math.Round(base.Resources.Oxen/2)))
	}
	next.Progress.MilesTraveled = math.Max(0, base.Progress.MilesTraveled+fallbackMiles)
	next.Progress.MilesRemaining = math.Max(0, base.Progress.MilesRemaining-fallbackMiles)

	if mode == ModeTurn {
		next.Turn.Index = base.Turn.Index + 1
		next.Turn.LastCommand = playerInput
	}

	summary := CollapseWhitespace(narrative)
	if summary == "" {
		summary = fallbackSummaryPlaceholder
	}
	next.Turn.LastOutcomeSummary = truncate(summary, maxSummaryLen)

	return &next
}

// CollapseWhitespace trims a string and squeezes every whitespace run
// down to a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
