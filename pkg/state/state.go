package state

import (
	"time"

	"github.com/google/uuid"
)

// TotalTrailMiles is the fixed length of the trail from Independence to Oregon.
const TotalTrailMiles = 2040

// StartDateISO is the in-world date every run begins on.
const StartDateISO = "1848-04-01T12:00:00Z"

// Calendar tracks the in-world date and season.
type Calendar struct {
	DateISO string `json:"dateIso"`
	Season  string `json:"season"`
}

// Progress tracks distance along the trail. MilesTraveled and
// MilesRemaining are clamped independently and are not forced to sum to
// TotalTrailMiles; drift across turns is accepted behavior.
type Progress struct {
	MilesTraveled  float64 `json:"milesTraveled"`
	MilesRemaining float64 `json:"milesRemaining"`
	Landmark       string  `json:"landmark"`
}

// Member is a single party member. Status is free text from the model;
// anything matching "dead" or "deceased" counts the member as lost.
type Member struct {
	Name   string  `json:"name"`
	Health float64 `json:"health"`
	Status string  `json:"status"`
}

// Party is the ordered member list plus the alive headcount.
type Party struct {
	Members    []Member `json:"members"`
	AliveCount float64  `json:"aliveCount"`
}

// Resources are the numeric supply pools.
type Resources struct {
	Food        float64 `json:"food"`
	Ammo        float64 `json:"ammo"`
	Medicine    float64 `json:"medicine"`
	Clothing    float64 `json:"clothing"`
	Money       float64 `json:"money"`
	Oxen        float64 `json:"oxen"`
	WagonHealth float64 `json:"wagonHealth"`
}

// Conditions describe the current environment in free text.
type Conditions struct {
	Weather   string `json:"weather"`
	Terrain   string `json:"terrain"`
	TrailRisk string `json:"trailRisk"`
}

// Flags hold the terminal markers and running counters. Won and Lost are
// mutually exclusive; normalization forces Lost false when both arrive true.
type Flags struct {
	Won              bool    `json:"won"`
	Lost             bool    `json:"lost"`
	LossReason       string  `json:"lossReason"`
	HardshipCount    float64 `json:"hardshipCount"`
	AnachronismCount float64 `json:"anachronismCount"`
}

// Turn tracks the turn counter and the last resolved command.
type Turn struct {
	Index              float64 `json:"index"`
	LastCommand        string  `json:"lastCommand"`
	LastOutcomeSummary string  `json:"lastOutcomeSummary"`
}

// TrailState is the canonical snapshot of one Oregon Trail session. The
// server never stores it; the client carries it between turns and sends
// it back with each request.
type TrailState struct {
	SessionID  string     `json:"sessionId"`
	CreatedAt  string     `json:"createdAt"`
	UpdatedAt  string     `json:"updatedAt"`
	Calendar   Calendar   `json:"calendar"`
	Progress   Progress   `json:"progress"`
	Party      Party      `json:"party"`
	Resources  Resources  `json:"resources"`
	Conditions Conditions `json:"conditions"`
	Flags      Flags      `json:"flags"`
	Turn       Turn       `json:"turn"`
}

// NewSessionID returns an opaque identifier for a new run.
func NewSessionID() string {
	return uuid.New().String()
}

// NewTrailState creates the default starting state. An empty sessionID
// gets a fresh one.
func NewTrailState(sessionID string) *TrailState {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return &TrailState{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Calendar: Calendar{
			DateISO: StartDateISO,
			Season:  "spring",
		},
		Progress: Progress{
			MilesTraveled:  0,
			MilesRemaining: TotalTrailMiles,
			Landmark:       "Independence, Missouri",
		},
		Party: Party{
			Members: []Member{
				{Name: "Party Leader", Health: 100, Status: "healthy"},
				{Name: "Scout", Health: 100, Status: "healthy"},
				{Name: "Wagon Cook", Health: 100, Status: "healthy"},
				{Name: "Navigator", Health: 100, Status: "healthy"},
				{Name: "Blacksmith", Health: 100, Status: "healthy"},
			},
			AliveCount: 5,
		},
		Resources: Resources{
			Food:        200,
			Ammo:        80,
			Medicine:    20,
			Clothing:    20,
			Money:       400,
			Oxen:        4,
			WagonHealth: 100,
		},
		Conditions: Conditions{
			Weather:   "clear",
			Terrain:   "plains",
			TrailRisk: "moderate",
		},
		Flags: Flags{},
		Turn: Turn{
			Index:              0,
			LastCommand:        "",
			LastOutcomeSummary: "Your party assembles at Independence.",
		},
	}
}

// IsGameOver reports whether the run has reached a terminal state.
func (ts *TrailState) IsGameOver() bool {
	if ts == nil {
		return false
	}
	return ts.Flags.Won || ts.Flags.Lost
}
