package engine

import (
	"math"
	"sort"

	"github.com/fixturelab/leaguesim/internal/models"
)

// AggregateConfig defines the table zones used for summary probabilities.
// Defaults reflect a 20-team league: position 1 wins the title, 1..4 qualify
// outright, 5..6 take the secondary European band, and the bottom 3 go down.
type AggregateConfig struct {
	TitleCutoff        int
	TopFourCutoff      int
	TopSixCutoff       int
	RelegationZoneSize int
}

// DefaultAggregateConfig returns the 20-team league defaults.
func DefaultAggregateConfig() AggregateConfig {
	return AggregateConfig{
		TitleCutoff:        1,
		TopFourCutoff:      4,
		TopSixCutoff:       6,
		RelegationZoneSize: 3,
	}
}

// Aggregate folds N independent trial tables into one prediction per team.
// Probabilities are percentages rounded to two decimals; each team's position
// distribution sums to 100 within rounding tolerance. Output is sorted by
// descending title probability.
func Aggregate(trials [][]models.FinalStanding, baseline []models.Standing, cfg AggregateConfig) ([]models.TeamPrediction, error) {
	if len(trials) == 0 || len(trials[0]) == 0 {
		return nil, models.ErrInsufficientData
	}

	teamCount := len(trials[0])
	slots := make(map[string]int, teamCount)
	predictions := make([]models.TeamPrediction, teamCount)
	for i, fs := range trials[0] {
		slots[fs.TeamID] = i
		predictions[i] = models.TeamPrediction{
			TeamID:               fs.TeamID,
			PositionDistribution: make(map[int]float64, teamCount),
		}
	}
	// Provider-supplied positions can be stale or zeroed, so the current
	// position is ranked from the baseline records instead.
	currentPos := baselinePositions(baseline)
	for _, s := range baseline {
		if slot, ok := slots[s.TeamID]; ok {
			predictions[slot].TeamName = s.TeamName
			predictions[slot].CurrentPosition = currentPos[s.TeamID]
		}
	}

	counts := make([][]int, teamCount)
	pointsSum := make([]int, teamCount)
	positionSum := make([]int, teamCount)
	for i := range counts {
		counts[i] = make([]int, teamCount+1)
	}

	for _, table := range trials {
		for _, fs := range table {
			slot, ok := slots[fs.TeamID]
			if !ok || fs.Position < 1 || fs.Position > teamCount {
				return nil, models.ErrInsufficientData
			}
			counts[slot][fs.Position]++
			pointsSum[slot] += fs.Points
			positionSum[slot] += fs.Position
		}
	}

	n := float64(len(trials))
	relegationStart := teamCount - cfg.RelegationZoneSize + 1
	for slot := range predictions {
		p := &predictions[slot]

		var title, topFour, topSix, relegation int
		for pos := 1; pos <= teamCount; pos++ {
			c := counts[slot][pos]
			if pos <= cfg.TitleCutoff {
				title += c
			}
			if pos <= cfg.TopFourCutoff {
				topFour += c
			}
			if pos > cfg.TopFourCutoff && pos <= cfg.TopSixCutoff {
				topSix += c
			}
			if pos >= relegationStart {
				relegation += c
			}
		}

		p.TitleProbability = round2(float64(title) / n * 100)
		p.TopFourProbability = round2(float64(topFour) / n * 100)
		p.TopSixProbability = round2(float64(topSix) / n * 100)
		p.RelegationProbability = round2(float64(relegation) / n * 100)
		p.AverageFinalPosition = round2(float64(positionSum[slot]) / n)
		p.AverageFinalPoints = round2(float64(pointsSum[slot]) / n)
		p.PositionDistribution = distribution(counts[slot], n)
	}

	sort.SliceStable(predictions, func(a, b int) bool {
		if predictions[a].TitleProbability != predictions[b].TitleProbability {
			return predictions[a].TitleProbability > predictions[b].TitleProbability
		}
		if predictions[a].AverageFinalPosition != predictions[b].AverageFinalPosition {
			return predictions[a].AverageFinalPosition < predictions[b].AverageFinalPosition
		}
		// Exact ties order by team ID so the output never depends on
		// which trial table happened to come first.
		return predictions[a].TeamID < predictions[b].TeamID
	})
	return predictions, nil
}

// baselinePositions ranks the baseline by points desc, goal difference desc,
// goals for desc, with stable input order beyond that, returning a 1-based
// position per team ID.
func baselinePositions(baseline []models.Standing) map[string]int {
	order := make([]int, len(baseline))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := baseline[order[a]], baseline[order[b]]
		if sa.Points != sb.Points {
			return sa.Points > sb.Points
		}
		if sa.GoalDifference() != sb.GoalDifference() {
			return sa.GoalDifference() > sb.GoalDifference()
		}
		return sa.GoalsFor > sb.GoalsFor
	})
	positions := make(map[string]int, len(baseline))
	for rank, idx := range order {
		positions[baseline[idx].TeamID] = rank + 1
	}
	return positions
}

// distribution converts a position histogram to percentages rounded to two
// decimals. The rounding residual is folded into the largest bucket so the
// values still sum to 100.
func distribution(counts []int, n float64) map[int]float64 {
	dist := make(map[int]float64, len(counts)-1)
	var sum float64
	largest, largestPos := -1, 0
	for pos := 1; pos < len(counts); pos++ {
		if counts[pos] == 0 {
			continue
		}
		v := round2(float64(counts[pos]) / n * 100)
		dist[pos] = v
		sum += v
		if counts[pos] > largest {
			largest = counts[pos]
			largestPos = pos
		}
	}
	if largestPos != 0 {
		dist[largestPos] = round2(dist[largestPos] + 100 - sum)
	}
	return dist
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
