// Package rating converts league-table rows into bounded team strength scores.
package rating

import (
	"sort"

	"github.com/fixturelab/leaguesim/internal/models"
)

// Config holds the weights and shaping constants for the power index.
// All values are plain data so a Config can be passed by value and overridden
// per call.
type Config struct {
	// Weights for the three normalized sub-metrics, in order:
	// points-per-game, goal-difference-per-game, recent form.
	Weights [3]float64

	// PointsPerGameCap scales points-per-game and form into [0,100].
	PointsPerGameCap float64
	// GoalDiffWindow is the symmetric per-game goal-difference window
	// re-based onto [0,100]. A team at -GoalDiffWindow scores 0, at
	// +GoalDiffWindow scores 100.
	GoalDiffWindow float64

	// MinIndex and MaxIndex bound the final power index. The narrow band is
	// deliberate: it stops rating separation alone from making any single
	// match near-certain.
	MinIndex float64
	MaxIndex float64

	// RelegationThreshold is the table position past which the hope bonus
	// starts accruing.
	RelegationThreshold int
	// HopeBonusPerPlace is added per position below the threshold, scaled by
	// season progress so early-season tables don't over-amplify danger.
	HopeBonusPerPlace float64
	// SurvivalPointsThreshold and SurvivalBonus give a small lift to teams
	// with very few points on the board.
	SurvivalPointsThreshold int
	SurvivalBonus           float64
	// BonusAttenuation multiplies the summed situational bonuses.
	BonusAttenuation float64

	// RoundsPerOpponent is how many times each pair of teams meets over the
	// season (2 for a standard home-and-away league). Used to derive games
	// remaining from games played.
	RoundsPerOpponent int
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Weights:                 [3]float64{0.5, 0.3, 0.2},
		PointsPerGameCap:        2.0,
		GoalDiffWindow:          1.0,
		MinIndex:                45,
		MaxIndex:                65,
		RelegationThreshold:     15,
		HopeBonusPerPlace:       1.5,
		SurvivalPointsThreshold: 10,
		SurvivalBonus:           2.0,
		BonusAttenuation:        0.5,
		RoundsPerOpponent:       2,
	}
}

// NeutralIndex is the rating assigned to a team with no games played.
func (c Config) NeutralIndex() float64 {
	return (c.MinIndex + c.MaxIndex) / 2
}

// Compute derives one RatingEntry per standing. Pure: no randomness, no
// mutation of the input. Fails with models.ErrInsufficientData when standings
// is empty.
func Compute(standings []models.Standing, cfg Config) ([]models.RatingEntry, error) {
	if len(standings) == 0 {
		return nil, models.ErrInsufficientData
	}

	positions := tablePositions(standings)
	seasonGames := cfg.RoundsPerOpponent * (len(standings) - 1)

	entries := make([]models.RatingEntry, 0, len(standings))
	for i, s := range standings {
		entry := models.RatingEntry{
			TeamID:   s.TeamID,
			TeamName: s.TeamName,
			Played:   s.Played,
			Points:   s.Points,
		}

		if s.Played == 0 {
			entry.PowerIndex = cfg.NeutralIndex()
			entries = append(entries, entry)
			continue
		}

		played := float64(s.Played)
		entry.PointsPerGameScore = clamp(float64(s.Points)/played/cfg.PointsPerGameCap*100, 0, 100)
		gdPerGame := float64(s.GoalDifference()) / played
		entry.GoalDiffScore = clamp((gdPerGame+cfg.GoalDiffWindow)/(2*cfg.GoalDiffWindow)*100, 0, 100)
		entry.FormScore = clamp(formPointsPerGame(s.RecentForm)/cfg.PointsPerGameCap*100, 0, 100)

		// The weighted sum lives on [0,100]; the final clamp squeezes it into
		// the narrow index band, which is the intended compression.
		index := cfg.Weights[0]*entry.PointsPerGameScore +
			cfg.Weights[1]*entry.GoalDiffScore +
			cfg.Weights[2]*entry.FormScore

		remaining := seasonGames - s.Played
		if remaining < 0 {
			remaining = 0
		}
		index += cfg.situationalBonus(positions[i], s.Points, s.Played, remaining)

		entry.PowerIndex = clamp(index, cfg.MinIndex, cfg.MaxIndex)
		entries = append(entries, entry)
	}
	return entries, nil
}

// situationalBonus sums the hope and survival adjustments. The hope bonus
// grows as a team sits deeper past the relegation threshold and is scaled by
// season progress: with many matches left the table says little about danger.
func (c Config) situationalBonus(position, points, played, remaining int) float64 {
	var bonus float64
	if position > c.RelegationThreshold {
		progress := float64(played) / float64(played+remaining)
		bonus += c.HopeBonusPerPlace * float64(position-c.RelegationThreshold) * progress
	}
	if points < c.SurvivalPointsThreshold {
		bonus += c.SurvivalBonus
	}
	return bonus * c.BonusAttenuation
}

// formPointsPerGame scores a W/D/L string with the 3/1/0 rule, averaged over
// its length. Unknown characters are ignored.
func formPointsPerGame(form string) float64 {
	if form == "" {
		return 0
	}
	var points, games int
	for _, r := range form {
		switch r {
		case 'W', 'w':
			points += 3
			games++
		case 'D', 'd':
			points++
			games++
		case 'L', 'l':
			games++
		}
	}
	if games == 0 {
		return 0
	}
	return float64(points) / float64(games)
}

// tablePositions ranks standings by points, goal difference, then goals for,
// returning a 1-based position per input index. Supplied positions are not
// trusted: some providers send stale or zeroed values.
func tablePositions(standings []models.Standing) []int {
	order := make([]int, len(standings))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := standings[order[a]], standings[order[b]]
		if sa.Points != sb.Points {
			return sa.Points > sb.Points
		}
		if sa.GoalDifference() != sb.GoalDifference() {
			return sa.GoalDifference() > sb.GoalDifference()
		}
		return sa.GoalsFor > sb.GoalsFor
	})
	positions := make([]int, len(standings))
	for rank, idx := range order {
		positions[idx] = rank + 1
	}
	return positions
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
