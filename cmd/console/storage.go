package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

const (
	activeRunFile   = "active_run.json"
	leaderboardFile = "leaderboard.json"

	maxLeaderboardEntries = 100
	maxPlayerNameLen      = 24
	anonymousPlayerName   = "Anonymous Pioneer"
)

var playerNameCharsRe = regexp.MustCompile(`[^A-Za-z0-9 '\-]`)

var playerNameCaser = cases.Title(language.English)

// ActiveRun is the on-disk snapshot of an in-progress game. The server
// holds nothing between turns, so this file is the only save.
type ActiveRun struct {
	State        *state.TrailState        `json:"state"`
	Transcript   []chat.TranscriptMessage `json:"transcript"`
	AwaitingName bool                     `json:"awaitingName"`
	ScoreSaved   bool                     `json:"scoreSaved"`
	SavedAt      string                   `json:"savedAt"`
}

// LeaderboardEntry is one finished run on the local leaderboard.
type LeaderboardEntry struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Score         int     `json:"score"`
	Won           bool    `json:"won"`
	MilesTraveled float64 `json:"milesTraveled"`
	Turns         float64 `json:"turns"`
	EndedAt       string  `json:"endedAt"`
	LossReason    string  `json:"lossReason"`
}

// Storage persists the active run and leaderboard as JSON files under a
// single directory. All reads are forgiving: a missing or corrupt file
// behaves like an empty one.
type Storage struct {
	dir string
}

// NewStorage creates the storage rooted at dir, creating it if needed.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".trail-engine")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Storage{dir: dir}, nil
}

// LoadActiveRun returns the persisted run, or nil when there is none.
func (s *Storage) LoadActiveRun() *ActiveRun {
	var run ActiveRun
	if !s.readJSON(activeRunFile, &run) {
		return nil
	}
	if run.State == nil && len(run.Transcript) == 0 {
		return nil
	}
	return &run
}

// SaveActiveRun writes the run snapshot. A snapshot with no progress
// clears the save instead.
func (s *Storage) SaveActiveRun(run ActiveRun) {
	if run.State == nil && len(run.Transcript) == 0 {
		s.ClearActiveRun()
		return
	}
	run.SavedAt = time.Now().UTC().Format(time.RFC3339)
	s.writeJSON(activeRunFile, run)
}

// ClearActiveRun removes the save file.
func (s *Storage) ClearActiveRun() {
	_ = os.Remove(filepath.Join(s.dir, activeRunFile))
}

// LoadLeaderboard returns the sorted leaderboard, best score first.
func (s *Storage) LoadLeaderboard() []LeaderboardEntry {
	var entries []LeaderboardEntry
	if !s.readJSON(leaderboardFile, &entries) {
		return nil
	}

	kept := entries[:0]
	for _, entry := range entries {
		if entry.Name == "" {
			entry.Name = anonymousPlayerName
		}
		kept = append(kept, entry)
	}
	return capLeaderboard(kept)
}

// AddLeaderboardEntry appends one finished run and returns the updated
// sorted board.
func (s *Storage) AddLeaderboardEntry(entry LeaderboardEntry) []LeaderboardEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.EndedAt == "" {
		entry.EndedAt = time.Now().UTC().Format(time.RFC3339)
	}
	entries := capLeaderboard(append(s.LoadLeaderboard(), entry))
	s.writeJSON(leaderboardFile, entries)
	return entries
}

func capLeaderboard(entries []LeaderboardEntry) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].EndedAt > entries[j].EndedAt
	})
	if len(entries) > maxLeaderboardEntries {
		entries = entries[:maxLeaderboardEntries]
	}
	return entries
}

func (s *Storage) readJSON(name string, target any) bool {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func (s *Storage) writeJSON(name string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(s.dir, name), data, 0o644)
}

// SanitizePlayerName collapses whitespace, strips everything outside a
// conservative character set, caps the length, and title-cases what
// remains. An empty result falls back to the anonymous name.
func SanitizePlayerName(input string) string {
	collapsed := state.CollapseWhitespace(input)
	cleaned := playerNameCharsRe.ReplaceAllString(collapsed, "")
	runes := []rune(cleaned)
	if len(runes) > maxPlayerNameLen {
		runes = runes[:maxPlayerNameLen]
	}
	cleaned = strings.TrimSpace(string(runes))
	if cleaned == "" {
		return anonymousPlayerName
	}
	return playerNameCaser.String(cleaned)
}
