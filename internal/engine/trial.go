package engine

import (
	"fmt"
	"sort"

	"github.com/fixturelab/leaguesim/internal/models"
)

// trialState is one team's mutable running totals inside a single trial.
// States live in a contiguous arena indexed by a stable team slot, so trials
// never alias each other's data and the per-match resort stays cache-friendly.
type trialState struct {
	teamID       string
	played       int
	won          int
	drawn        int
	lost         int
	goalsFor     int
	goalsAgainst int
	points       int
}

func (t *trialState) goalDiff() int {
	return t.goalsFor - t.goalsAgainst
}

// RunTrial replays one full season: fixtures already reflected in the
// baseline must not be passed in (the baseline is cloned, never recomputed).
// Finished fixtures in the slice are applied with their recorded score;
// everything else is sampled. Fixtures must be in chronological order.
// Returns the final table, positions 1..T.
func RunTrial(fixtures []models.Fixture, baseline []models.Standing, ratings []models.RatingEntry, sampler *Sampler, rng RandomSource) ([]models.FinalStanding, error) {
	if len(baseline) == 0 {
		return nil, models.ErrInsufficientData
	}

	arena := make([]trialState, len(baseline))
	slots := make(map[string]int, len(baseline))
	ratingBySlot := make([]models.RatingEntry, len(baseline))
	for i, s := range baseline {
		arena[i] = trialState{
			teamID:       s.TeamID,
			played:       s.Played,
			won:          s.Won,
			drawn:        s.Drawn,
			lost:         s.Lost,
			goalsFor:     s.GoalsFor,
			goalsAgainst: s.GoalsAgainst,
			points:       s.Points,
		}
		slots[s.TeamID] = i
	}
	for _, r := range ratings {
		if slot, ok := slots[r.TeamID]; ok {
			ratingBySlot[slot] = r
		}
	}

	// positions[slot] is recomputed lazily before each sampled match so that
	// mid-season momentum inside this trial shifts later fixtures.
	positions := make([]int, len(arena))
	order := make([]int, len(arena))
	dirty := true

	for _, f := range fixtures {
		homeSlot, ok := slots[f.HomeTeamID]
		if !ok {
			return nil, fmt.Errorf("fixture %s: unknown home team %s", f.ID, f.HomeTeamID)
		}
		awaySlot, ok := slots[f.AwayTeamID]
		if !ok {
			return nil, fmt.Errorf("fixture %s: unknown away team %s", f.ID, f.AwayTeamID)
		}

		var homeGoals, awayGoals int
		if f.Finished() {
			homeGoals, awayGoals = f.HomeScore, f.AwayScore
		} else {
			if dirty {
				recomputePositions(arena, order, positions)
				dirty = false
			}
			remaining := perTeamRemaining(sampler.SeasonLength(),
				arena[homeSlot].played, arena[awaySlot].played)
			_, homeGoals, awayGoals = sampler.Sample(
				ratingBySlot[homeSlot], ratingBySlot[awaySlot],
				positions[homeSlot], positions[awaySlot],
				remaining, rng,
			)
		}
		applyScore(&arena[homeSlot], &arena[awaySlot], homeGoals, awayGoals)
		dirty = true
	}

	recomputePositions(arena, order, positions)
	final := make([]models.FinalStanding, len(arena))
	for slot := range arena {
		final[positions[slot]-1] = models.FinalStanding{
			TeamID:       arena[slot].teamID,
			Position:     positions[slot],
			Points:       arena[slot].points,
			GoalsFor:     arena[slot].goalsFor,
			GoalsAgainst: arena[slot].goalsAgainst,
		}
	}
	return final, nil
}

// perTeamRemaining derives how many matches the sides still play this season,
// from the further-progressed of the two. The sampler's hope nudge expects
// per-team games left, not the league-wide pending fixture count.
func perTeamRemaining(seasonLength, homePlayed, awayPlayed int) int {
	played := homePlayed
	if awayPlayed > played {
		played = awayPlayed
	}
	if remaining := seasonLength - played; remaining > 0 {
		return remaining
	}
	return 0
}

// applyScore updates both sides' running totals with the 3/1/0 points rule.
func applyScore(home, away *trialState, homeGoals, awayGoals int) {
	home.played++
	away.played++
	home.goalsFor += homeGoals
	home.goalsAgainst += awayGoals
	away.goalsFor += awayGoals
	away.goalsAgainst += homeGoals

	switch {
	case homeGoals > awayGoals:
		home.won++
		away.lost++
		home.points += 3
	case homeGoals < awayGoals:
		away.won++
		home.lost++
		away.points += 3
	default:
		home.drawn++
		away.drawn++
		home.points++
		away.points++
	}
}

// recomputePositions ranks the arena by points desc, goal difference desc,
// goals for desc, goals against asc. Ties beyond that keep stable slot order.
func recomputePositions(arena []trialState, order, positions []int) {
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := &arena[order[a]], &arena[order[b]]
		if ta.points != tb.points {
			return ta.points > tb.points
		}
		if ta.goalDiff() != tb.goalDiff() {
			return ta.goalDiff() > tb.goalDiff()
		}
		if ta.goalsFor != tb.goalsFor {
			return ta.goalsFor > tb.goalsFor
		}
		return ta.goalsAgainst < tb.goalsAgainst
	})
	for rank, slot := range order {
		positions[slot] = rank + 1
	}
}
