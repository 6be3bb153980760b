// Package engine implements the stochastic core: match outcome sampling,
// single-trial season replay, and cross-trial aggregation.
package engine

import (
	"math"

	"github.com/fixturelab/leaguesim/internal/models"
)

// Outcome is a sampled match result.
type Outcome int

const (
	HomeWin Outcome = iota
	Draw
	AwayWin
)

// SamplerConfig holds the probability-shaping constants. These are tuned
// defaults carried over for behavioral parity, not a validated model of
// football outcomes.
type SamplerConfig struct {
	// StrengthScale multiplies the log-compressed rating gap before tanh
	// squashing; StrengthSwing bounds the squashed term's contribution.
	StrengthScale float64
	StrengthSwing float64

	// HomeAdvantage is the flat probability added to the home side.
	HomeAdvantage float64

	// PositionNudgePerPlace and PositionNudgeMax shape the bounded,
	// symmetric table-position adjustment.
	PositionNudgePerPlace float64
	PositionNudgeMax      float64

	// HopeNudge lifts the lower-placed side late in the season; attenuated
	// by SeasonLength the more matches remain.
	HopeNudge    float64
	SeasonLength int

	// VolatilityChance gates the random volatility term; when the gate
	// passes, a uniform draw from [-VolatilityRange, +VolatilityRange] is
	// added.
	VolatilityChance float64
	VolatilityRange  float64

	// MinWinProbability and MaxWinProbability clamp the home-win chance so
	// no single match becomes near-certain.
	MinWinProbability float64
	MaxWinProbability float64

	// Draw probability: DrawBase minus DrawClosenessFactor per point of
	// rating gap, clamped to [MinDrawProbability, MaxDrawProbability].
	DrawBase            float64
	DrawClosenessFactor float64
	MinDrawProbability  float64
	MaxDrawProbability  float64

	// MaxWinnerGoals bounds the synthetic scoreline for decisive outcomes;
	// draws use MaxDrawGoals per side.
	MaxWinnerGoals int
	MaxDrawGoals   int
}

// DefaultSamplerConfig returns the tuned defaults.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		StrengthScale:         8.0,
		StrengthSwing:         0.08,
		HomeAdvantage:         0.04,
		PositionNudgePerPlace: 0.002,
		PositionNudgeMax:      0.02,
		HopeNudge:             0.02,
		SeasonLength:          38,
		VolatilityChance:      0.30,
		VolatilityRange:       0.04,
		MinWinProbability:     0.42,
		MaxWinProbability:     0.58,
		DrawBase:              0.32,
		DrawClosenessFactor:   0.01,
		MinDrawProbability:    0.20,
		MaxDrawProbability:    0.35,
		MaxWinnerGoals:        3,
		MaxDrawGoals:          3,
	}
}

// Sampler produces probabilistic match results from two ratings and table
// context. Safe for concurrent use: all state lives in the config and the
// caller-supplied RandomSource.
type Sampler struct {
	cfg SamplerConfig
}

// NewSampler returns a sampler with the given config.
func NewSampler(cfg SamplerConfig) *Sampler {
	return &Sampler{cfg: cfg}
}

// SeasonLength returns the configured per-team season length. Callers pass
// `remaining` in the same unit: matches one side has left, not league-wide
// fixture counts.
func (s *Sampler) SeasonLength() int {
	return s.cfg.SeasonLength
}

// Probabilities returns the (home, draw, away) distribution for a match,
// before the volatility gate. The three values sum to 1.
func (s *Sampler) Probabilities(home, away models.RatingEntry, homePos, awayPos, remaining int) (float64, float64, float64) {
	pHome := s.homeWinProbability(home, away, homePos, awayPos, remaining, 0)
	pDraw := s.drawProbability(home, away)
	if pHome+pDraw > 1 {
		pDraw = 1 - pHome
	}
	return pHome, pDraw, 1 - pHome - pDraw
}

// Sample draws one outcome plus a synthetic scoreline consistent with it.
// Finished fixtures must never reach the sampler; the trial loop applies
// their recorded scores directly.
func (s *Sampler) Sample(home, away models.RatingEntry, homePos, awayPos, remaining int, rng RandomSource) (Outcome, int, int) {
	var volatility float64
	if rng.Float64() < s.cfg.VolatilityChance {
		volatility = (rng.Float64()*2 - 1) * s.cfg.VolatilityRange
	}
	pHome := s.homeWinProbability(home, away, homePos, awayPos, remaining, volatility)
	pDraw := s.drawProbability(home, away)
	if pHome+pDraw > 1 {
		pDraw = 1 - pHome
	}

	var outcome Outcome
	switch u := rng.Float64(); {
	case u < pHome:
		outcome = HomeWin
	case u < pHome+pDraw:
		outcome = Draw
	default:
		outcome = AwayWin
	}

	homeGoals, awayGoals := s.syntheticScore(outcome, rng)
	return outcome, homeGoals, awayGoals
}

// homeWinProbability assembles the home side's win chance: a tanh-squashed
// log rating gap, home advantage, a bounded position nudge, a time-weighted
// hope nudge, and the caller's volatility term, clamped into the win band.
func (s *Sampler) homeWinProbability(home, away models.RatingEntry, homePos, awayPos, remaining int, volatility float64) float64 {
	gap := math.Log(home.PowerIndex+1) - math.Log(away.PowerIndex+1)
	strength := math.Tanh(gap*s.cfg.StrengthScale) * s.cfg.StrengthSwing

	// Positive when the home side sits higher in the table.
	posNudge := clamp(float64(awayPos-homePos)*s.cfg.PositionNudgePerPlace,
		-s.cfg.PositionNudgeMax, s.cfg.PositionNudgeMax)

	// The hope nudge favors the side deeper in the table, fading out the
	// more matches remain: desperation only sharpens late in the season.
	var hope float64
	if s.cfg.SeasonLength > 0 && remaining < s.cfg.SeasonLength {
		urgency := 1 - float64(remaining)/float64(s.cfg.SeasonLength)
		if homePos > awayPos {
			hope = s.cfg.HopeNudge * urgency
		} else if awayPos > homePos {
			hope = -s.cfg.HopeNudge * urgency
		}
	}

	p := 0.5 + strength + s.cfg.HomeAdvantage + posNudge + hope + volatility
	return clamp(p, s.cfg.MinWinProbability, s.cfg.MaxWinProbability)
}

// drawProbability grows as the two ratings converge.
func (s *Sampler) drawProbability(home, away models.RatingEntry) float64 {
	gap := math.Abs(home.PowerIndex - away.PowerIndex)
	return clamp(s.cfg.DrawBase-gap*s.cfg.DrawClosenessFactor,
		s.cfg.MinDrawProbability, s.cfg.MaxDrawProbability)
}

// syntheticScore invents a scoreline consistent with the outcome: the winner
// scores 1..MaxWinnerGoals uniformly and the loser strictly fewer; draws
// share a uniform 0..MaxDrawGoals tally.
func (s *Sampler) syntheticScore(outcome Outcome, rng RandomSource) (int, int) {
	switch outcome {
	case HomeWin:
		winner := 1 + rng.Intn(s.cfg.MaxWinnerGoals)
		return winner, rng.Intn(winner)
	case AwayWin:
		winner := 1 + rng.Intn(s.cfg.MaxWinnerGoals)
		return rng.Intn(winner), winner
	default:
		goals := rng.Intn(s.cfg.MaxDrawGoals + 1)
		return goals, goals
	}
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
