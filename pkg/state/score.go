package state

import "math"

// Score rates a finished (or in-progress) run. Weights favor reaching
// Oregon with the party intact over hoarding supplies; deaths,
// anachronisms, and slow runs cost points. Never negative.
func Score(ts *TrailState) int {
	if ts == nil {
		return 0
	}

	partySize := len(ts.Party.Members)
	alive := ts.Party.AliveCount
	deaths := math.Max(0, float64(partySize)-alive)

	var winBonus, lossPenalty float64
	if ts.Flags.Won {
		winBonus = 2600
	}
	if ts.Flags.Lost {
		lossPenalty = 1250
	}

	raw := ts.Progress.MilesTraveled*2.2 +
		alive*420 +
		ts.Resources.Food*0.4 +
		ts.Resources.Ammo*0.9 +
		ts.Resources.Medicine*22 +
		ts.Resources.Clothing*10 +
		ts.Resources.Money*0.35 +
		ts.Resources.Oxen*120 +
		ts.Resources.WagonHealth*7 +
		ts.Flags.HardshipCount*35 +
		winBonus -
		deaths*620 -
		ts.Flags.AnachronismCount*130 -
		ts.Turn.Index*24 -
		lossPenalty

	if raw < 0 {
		return 0
	}
	return int(math.Round(raw))
}
