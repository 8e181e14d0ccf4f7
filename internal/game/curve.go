package game

import "math"

// tierSpeeds accelerates the curve as the multiplier climbs. The tier
// is keyed on the current multiplier, not elapsed time, which keeps
// the curve continuous across tier boundaries.
var tierSpeeds = []struct {
	threshold float64
	speed     float64
}{
	{100, 4.0},
	{50, 3.0},
	{25, 2.5},
	{10, 2.0},
	{5, 1.5},
	{2, 1.2},
}

// TierSpeed returns the growth speed for the given current multiplier.
func TierSpeed(multiplier float64) float64 {
	for _, t := range tierSpeeds {
		if multiplier >= t.threshold {
			return t.speed
		}
	}
	return 1.0
}

// NextMultiplier recomputes the displayed multiplier from the elapsed
// round time, with the speed tier taken from the multiplier as of the
// previous tick. Truncated to two decimals, never below 1.00.
func NextMultiplier(current, elapsedSeconds float64) float64 {
	speed := TierSpeed(current)
	m := math.Floor(math.Pow(math.E, 0.012*speed*elapsedSeconds*10)*100) / 100
	if m < 1.0 {
		return 1.0
	}
	return m
}
