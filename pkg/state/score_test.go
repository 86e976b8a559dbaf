package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_NilIsZero(t *testing.T) {
	assert.Equal(t, 0, Score(nil))
}

func TestScore_StartingStateBaseline(t *testing.T) {
	ts := NewTrailState("session-1")

	// 5 alive * 420 + food 200*0.4 + ammo 80*0.9 + medicine 20*22 +
	// clothing 20*10 + money 400*0.35 + oxen 4*120 + wagon 100*7
	assert.Equal(t, 4212, Score(ts))
}

func TestScore_WinOutscoresLoss(t *testing.T) {
	won := NewTrailState("session-1")
	won.Progress.MilesTraveled = TotalTrailMiles
	won.Flags.Won = true

	lost := NewTrailState("session-2")
	lost.Progress.MilesTraveled = TotalTrailMiles
	lost.Flags.Lost = true

	assert.Greater(t, Score(won), Score(lost))
}

func TestScore_DeathsAndAnachronismsCost(t *testing.T) {
	clean := NewTrailState("session-1")

	bereaved := NewTrailState("session-2")
	bereaved.Party.AliveCount = 3

	sloppy := NewTrailState("session-3")
	sloppy.Flags.AnachronismCount = 4

	assert.Less(t, Score(bereaved), Score(clean))
	assert.Less(t, Score(sloppy), Score(clean))
}

func TestScore_NeverNegative(t *testing.T) {
	ts := NewTrailState("session-1")
	ts.Party.AliveCount = 0
	ts.Resources = Resources{}
	ts.Flags.Lost = true
	ts.Flags.AnachronismCount = 50
	ts.Turn.Index = 200

	assert.Equal(t, 0, Score(ts))
}
