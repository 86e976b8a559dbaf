package state

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Maximum lengths for free-text fields. Model output is untrusted and
// occasionally runs away; everything user-visible is truncated.
const (
	maxMemberNameLen  = 32
	maxLandmarkLen    = 96
	maxWeatherLen     = 64
	maxTerrainLen     = 64
	maxTrailRiskLen   = 32
	maxLossReasonLen  = 240
	maxLastCommandLen = 320
	maxSummaryLen     = 600
)

const maxCounterValue = 10000

// Normalize coerces an untrusted candidate into a schema-valid TrailState,
// substituting fields from previous (or a fresh default state when previous
// is nil) whenever a value is missing, mistyped, or out of range. It returns
// nil only when the candidate is not an object. It never panics and performs
// no I/O.
func Normalize(candidate any, previous *TrailState) *TrailState {
	obj, ok := asObject(candidate)
	if !ok {
		return nil
	}

	fallback := previous
	if fallback == nil {
		fallback = NewTrailState("")
	}

	now := time.Now().UTC().Format(time.RFC3339)

	members := normalizeMembers(field(obj, "party", "members"), fallback.Party.Members)
	milesTraveled := clampNumber(field(obj, "progress", "milesTraveled"), 0, TotalTrailMiles, fallback.Progress.MilesTraveled)
	milesRemaining := clampNumber(
		field(obj, "progress", "milesRemaining"),
		0, TotalTrailMiles,
		math.Max(0, TotalTrailMiles-milesTraveled),
	)

	sessionID := asString(obj["sessionId"], fallback.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	normalized := &TrailState{
		SessionID: sessionID,
		CreatedAt: asISODate(obj["createdAt"], orString(fallback.CreatedAt, now)),
		UpdatedAt: asISODate(obj["updatedAt"], now),
		Calendar: Calendar{
			DateISO: asISODate(field(obj, "calendar", "dateIso"), fallback.Calendar.DateISO),
			Season:  strings.ToLower(asString(field(obj, "calendar", "season"), orString(fallback.Calendar.Season, "unknown"))),
		},
		Progress: Progress{
			MilesTraveled:  milesTraveled,
			MilesRemaining: milesRemaining,
			Landmark:       truncate(asString(field(obj, "progress", "landmark"), fallback.Progress.Landmark), maxLandmarkLen),
		},
		Party: Party{
			Members:    members,
			AliveCount: normalizeAliveCount(members, field(obj, "party", "aliveCount")),
		},
		Resources: Resources{
			Food:        clampNumber(field(obj, "resources", "food"), 0, 5000, fallback.Resources.Food),
			Ammo:        clampNumber(field(obj, "resources", "ammo"), 0, 2000, fallback.Resources.Ammo),
			Medicine:    clampNumber(field(obj, "resources", "medicine"), 0, 500, fallback.Resources.Medicine),
			Clothing:    clampNumber(field(obj, "resources", "clothing"), 0, 500, fallback.Resources.Clothing),
			Money:       clampNumber(field(obj, "resources", "money"), 0, 100000, fallback.Resources.Money),
			Oxen:        clampNumber(field(obj, "resources", "oxen"), 0, 32, fallback.Resources.Oxen),
			WagonHealth: clampNumber(field(obj, "resources", "wagonHealth"), 0, 100, fallback.Resources.WagonHealth),
		},
		Conditions: Conditions{
			Weather:   truncate(asString(field(obj, "conditions", "weather"), fallback.Conditions.Weather), maxWeatherLen),
			Terrain:   truncate(asString(field(obj, "conditions", "terrain"), fallback.Conditions.Terrain), maxTerrainLen),
			TrailRisk: truncate(asString(field(obj, "conditions", "trailRisk"), fallback.Conditions.TrailRisk), maxTrailRiskLen),
		},
		Flags: Flags{
			Won:              asBool(field(obj, "flags", "won")),
			Lost:             asBool(field(obj, "flags", "lost")),
			LossReason:       truncate(asString(field(obj, "flags", "lossReason"), fallback.Flags.LossReason), maxLossReasonLen),
			HardshipCount:    clampNumber(field(obj, "flags", "hardshipCount"), 0, maxCounterValue, fallback.Flags.HardshipCount),
			AnachronismCount: clampNumber(field(obj, "flags", "anachronismCount"), 0, maxCounterValue, fallback.Flags.AnachronismCount),
		},
		Turn: Turn{
			Index:              clampNumber(field(obj, "turn", "index"), 0, maxCounterValue, fallback.Turn.Index),
			LastCommand:        truncate(asString(field(obj, "turn", "lastCommand"), fallback.Turn.LastCommand), maxLastCommandLen),
			LastOutcomeSummary: truncate(asString(field(obj, "turn", "lastOutcomeSummary"), fallback.Turn.LastOutcomeSummary), maxSummaryLen),
		},
	}

	// Won wins ties.
	if normalized.Flags.Won && normalized.Flags.Lost {
		normalized.Flags.Lost = false
	}

	return normalized
}

// asObject accepts decoded-JSON maps directly and converts TrailState
// values (such as the fallback deriver's output) through a JSON round
// trip. Anything else, arrays included, is rejected.
func asObject(candidate any) (map[string]any, bool) {
	switch v := candidate.(type) {
	case map[string]any:
		return v, true
	case *TrailState:
		if v == nil {
			return nil, false
		}
		return stateToObject(*v)
	case TrailState:
		return stateToObject(v)
	default:
		return nil, false
	}
}

func stateToObject(ts TrailState) (map[string]any, bool) {
	data, err := json.Marshal(ts)
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// field resolves obj[section][key], tolerating a missing or mistyped
// section.
func field(obj map[string]any, section, key string) any {
	nested, ok := obj[section].(map[string]any)
	if !ok {
		return nil
	}
	return nested[key]
}

func clampNumber(value any, min, max, fallback float64) float64 {
	numeric, ok := toFloat(value)
	if !ok || math.IsNaN(numeric) || math.IsInf(numeric, 0) {
		return fallback
	}
	return math.Min(max, math.Max(min, numeric))
}

// toFloat reports whether value carries a usable number. An explicit
// JSON null is not one: nulls fall back to the previous value upstream
// in clampNumber, never coerce to zero.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(value any, fallback string) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fallback
}

func asBool(value any) bool {
	b, ok := value.(bool)
	return ok && b
}

func orString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// asISODate re-emits any parseable timestamp in RFC 3339 UTC; everything
// else falls back.
func asISODate(value any, fallback string) string {
	s, ok := value.(string)
	if !ok {
		return fallback
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return fallback
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func normalizeMembers(value any, fallbackMembers []Member) []Member {
	raw, ok := value.([]any)
	if !ok {
		return fallbackMembers
	}

	members := make([]Member, 0, len(raw))
	for i, entry := range raw {
		memberObj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		defaultName := "Member " + strconv.Itoa(i+1)
		if i < len(fallbackMembers) && fallbackMembers[i].Name != "" {
			defaultName = fallbackMembers[i].Name
		}
		members = append(members, Member{
			Name:   truncate(asString(memberObj["name"], defaultName), maxMemberNameLen),
			Health: clampNumber(memberObj["health"], 0, 100, 100),
			Status: strings.ToLower(asString(memberObj["status"], "unknown")),
		})
	}

	if len(members) == 0 {
		return fallbackMembers
	}
	return members
}

// normalizeAliveCount prefers the candidate count when it is a usable
// number, clamped to the party size; otherwise it re-derives the count
// from member statuses.
func normalizeAliveCount(members []Member, candidate any) float64 {
	living := 0
	for _, m := range members {
		if !memberIsDead(m.Status) {
			living++
		}
	}
	return clampNumber(candidate, 0, float64(len(members)), float64(living))
}

func memberIsDead(status string) bool {
	lowered := strings.ToLower(status)
	return strings.Contains(lowered, "dead") || strings.Contains(lowered, "deceased")
}
