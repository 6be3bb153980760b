package engine

import (
	"math"
	"testing"

	"github.com/fixturelab/leaguesim/internal/models"
)

func ratingEntry(id string, index float64) models.RatingEntry {
	return models.RatingEntry{TeamID: id, TeamName: id, PowerIndex: index}
}

func TestProbabilities_SumToOne(t *testing.T) {
	s := NewSampler(DefaultSamplerConfig())
	indexes := []float64{45, 50, 55, 60, 65}
	for _, hi := range indexes {
		for _, ai := range indexes {
			for homePos := 1; homePos <= 20; homePos += 7 {
				for awayPos := 1; awayPos <= 20; awayPos += 7 {
					pH, pD, pA := s.Probabilities(ratingEntry("h", hi), ratingEntry("a", ai), homePos, awayPos, 10)
					sum := pH + pD + pA
					if math.Abs(sum-1) > 1e-9 {
						t.Fatalf("probabilities sum to %v for indexes (%v, %v) positions (%d, %d)",
							sum, hi, ai, homePos, awayPos)
					}
					if pA < 0 {
						t.Fatalf("negative away probability %v", pA)
					}
				}
			}
		}
	}
}

func TestProbabilities_WithinBounds(t *testing.T) {
	cfg := DefaultSamplerConfig()
	s := NewSampler(cfg)

	// Maximum rating separation plus best position gap must still respect
	// the clamps.
	pH, pD, _ := s.Probabilities(ratingEntry("h", 65), ratingEntry("a", 45), 1, 20, 2)
	if pH > cfg.MaxWinProbability {
		t.Errorf("home win probability %v exceeds ceiling %v", pH, cfg.MaxWinProbability)
	}
	if pD < cfg.MinDrawProbability || pD > cfg.MaxDrawProbability {
		t.Errorf("draw probability %v outside [%v, %v]", pD, cfg.MinDrawProbability, cfg.MaxDrawProbability)
	}

	pH, _, _ = s.Probabilities(ratingEntry("h", 45), ratingEntry("a", 65), 20, 1, 2)
	if pH < cfg.MinWinProbability {
		t.Errorf("home win probability %v below floor %v", pH, cfg.MinWinProbability)
	}
}

func TestProbabilities_CloserRatingsDrawMore(t *testing.T) {
	s := NewSampler(DefaultSamplerConfig())
	_, closeDraw, _ := s.Probabilities(ratingEntry("h", 55), ratingEntry("a", 54), 5, 6, 10)
	_, farDraw, _ := s.Probabilities(ratingEntry("h", 65), ratingEntry("a", 45), 1, 20, 10)
	if !(closeDraw > farDraw) {
		t.Errorf("close ratings should draw more: close=%v far=%v", closeDraw, farDraw)
	}
}

func TestSample_ScoreConsistentWithOutcome(t *testing.T) {
	s := NewSampler(DefaultSamplerConfig())
	rng := NewSource(7)
	home := ratingEntry("h", 58)
	away := ratingEntry("a", 52)

	for i := 0; i < 5000; i++ {
		outcome, hg, ag := s.Sample(home, away, 3, 8, 12, rng)
		switch outcome {
		case HomeWin:
			if hg <= ag {
				t.Fatalf("home win with score %d-%d", hg, ag)
			}
		case AwayWin:
			if ag <= hg {
				t.Fatalf("away win with score %d-%d", hg, ag)
			}
		case Draw:
			if hg != ag {
				t.Fatalf("draw with score %d-%d", hg, ag)
			}
		}
		if hg < 0 || hg > 3 || ag < 0 || ag > 3 {
			t.Fatalf("score %d-%d outside synthetic range", hg, ag)
		}
	}
}

func TestSample_StrongerHomeWinsMoreOften(t *testing.T) {
	s := NewSampler(DefaultSamplerConfig())
	rng := NewSource(11)
	strong := ratingEntry("strong", 63)
	weak := ratingEntry("weak", 46)

	const n = 20000
	var strongWins, weakWins int
	for i := 0; i < n; i++ {
		if outcome, _, _ := s.Sample(strong, weak, 1, 18, 10, rng); outcome == HomeWin {
			strongWins++
		}
		if outcome, _, _ := s.Sample(weak, strong, 18, 1, 10, rng); outcome == HomeWin {
			weakWins++
		}
	}
	if !(strongWins > weakWins) {
		t.Errorf("stronger home side should win more: strong=%d weak=%d", strongWins, weakWins)
	}
}

func TestSample_Reproducible(t *testing.T) {
	s := NewSampler(DefaultSamplerConfig())
	home := ratingEntry("h", 57)
	away := ratingEntry("a", 51)

	first := make([]Outcome, 100)
	second := make([]Outcome, 100)
	rngA, rngB := NewSource(99), NewSource(99)
	for i := range first {
		first[i], _, _ = s.Sample(home, away, 4, 9, 20, rngA)
		second[i], _, _ = s.Sample(home, away, 4, 9, 20, rngB)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("outcome %d diverged: %v vs %v", i, first[i], second[i])
		}
	}
}
