// Package models defines the core domain entities: standings, fixtures, ratings,
// predictions, and persisted simulation results.
package models

import (
	"errors"
	"fmt"
	"time"
)

// MaxTrialCount is the upper bound on trials accepted in a single request.
const MaxTrialCount = 10000

// Standing is one team's current league-table row, as supplied by the
// standings provider. Read-only input to the engine.
type Standing struct {
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	Position     int    `json:"position"`
	Played       int    `json:"played"`
	Won          int    `json:"won"`
	Drawn        int    `json:"drawn"`
	Lost         int    `json:"lost"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
	Points       int    `json:"points"`
	// RecentForm holds the last results as a W/D/L sequence, most recent last.
	RecentForm string `json:"recent_form"`
}

// GoalDifference returns goals scored minus goals conceded.
func (s Standing) GoalDifference() int {
	return s.GoalsFor - s.GoalsAgainst
}

// FixtureStatus classifies a fixture's lifecycle state.
type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "scheduled"
	StatusFinished  FixtureStatus = "finished"
	StatusOther     FixtureStatus = "other"
)

// Fixture is a single match, finished or not. Read-only input, ordered
// chronologically by Date.
type Fixture struct {
	ID         string        `json:"id"`
	HomeTeamID string        `json:"home_team_id"`
	AwayTeamID string        `json:"away_team_id"`
	Date       time.Time     `json:"date"`
	Status     FixtureStatus `json:"status"`
	HomeScore  int           `json:"home_score"`
	AwayScore  int           `json:"away_score"`
}

// Finished reports whether the fixture has a real recorded result.
func (f Fixture) Finished() bool {
	return f.Status == StatusFinished
}

// RatingEntry is one team's computed strength score plus the normalized
// sub-metrics and raw inputs it was derived from. Embedded in a
// SimulationResult snapshot, never persisted on its own.
type RatingEntry struct {
	TeamID     string  `json:"team_id"`
	TeamName   string  `json:"team_name"`
	PowerIndex float64 `json:"power_index"`

	PointsPerGameScore float64 `json:"points_per_game_score"`
	GoalDiffScore      float64 `json:"goal_diff_score"`
	FormScore          float64 `json:"form_score"`

	Played int `json:"played"`
	Points int `json:"points"`
}

// FinalStanding is one team's slot in the final table of a single trial.
type FinalStanding struct {
	TeamID       string
	Position     int
	Points       int
	GoalsFor     int
	GoalsAgainst int
}

// TeamPrediction aggregates one team's outcomes across all trials.
type TeamPrediction struct {
	TeamID                string  `json:"team_id"`
	TeamName              string  `json:"team_name"`
	CurrentPosition       int     `json:"current_position"`
	TitleProbability      float64 `json:"title_probability"`
	RelegationProbability float64 `json:"relegation_probability"`
	TopFourProbability    float64 `json:"top_four_probability"`
	TopSixProbability     float64 `json:"top_six_probability"`
	AverageFinalPosition  float64 `json:"average_final_position"`
	AverageFinalPoints    float64 `json:"average_final_points"`
	// PositionDistribution maps final position (1..T) to percentage of
	// trials finishing there. Values sum to 100 within rounding tolerance.
	PositionDistribution map[int]float64 `json:"position_distribution"`
}

// SimulationRequest describes one run of the engine. Transient: validated,
// consumed, discarded.
type SimulationRequest struct {
	CompetitionID   string    `json:"competition_id"`
	TrialCount      int       `json:"trial_count"`
	RequestedBy     string    `json:"requested_by"`
	WeightsOverride []float64 `json:"weights_override,omitempty"`
}

// Validate checks request field constraints.
func (r SimulationRequest) Validate() error {
	if r.CompetitionID == "" {
		return &ValidationError{Field: "competition_id", Reason: "must not be empty"}
	}
	if r.TrialCount < 1 || r.TrialCount > MaxTrialCount {
		return &ValidationError{
			Field:  "trial_count",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxTrialCount, r.TrialCount),
		}
	}
	if r.RequestedBy == "" {
		return &ValidationError{Field: "requested_by", Reason: "must not be empty"}
	}
	if n := len(r.WeightsOverride); n != 0 && n != 3 {
		return &ValidationError{Field: "weights_override", Reason: "must hold exactly three weights"}
	}
	for _, w := range r.WeightsOverride {
		if w < 0 {
			return &ValidationError{Field: "weights_override", Reason: "weights must not be negative"}
		}
	}
	return nil
}

// RunMeta captures the parameters a run was executed with, persisted next to
// the snapshots so any result can be reproduced.
type RunMeta struct {
	Weights         []float64 `json:"weights"`
	Seed            int64     `json:"seed"`
	Workers         int       `json:"workers"`
	PendingFixtures int       `json:"pending_fixtures"`
}

// SimulationResult is one persisted run: snapshots plus lifecycle flags.
// At most one result per competition carries IsLatest.
type SimulationResult struct {
	ID               string           `json:"id"`
	CompetitionID    string           `json:"competition_id"`
	ExecutionDate    time.Time        `json:"execution_date"`
	TrialCount       int              `json:"trial_count"`
	ExecutedBy       string           `json:"executed_by"`
	DurationMs       int64            `json:"duration_ms"`
	AlgorithmVersion string           `json:"algorithm_version"`
	IsLatest         bool             `json:"is_latest"`
	IsImportant      bool             `json:"is_important"`
	Ratings          []RatingEntry    `json:"ratings"`
	Predictions      []TeamPrediction `json:"predictions"`
	Meta             RunMeta          `json:"meta"`
}

// Validate checks result field constraints before persistence.
func (r *SimulationResult) Validate() error {
	if r.ID == "" {
		return errors.New("result ID must not be empty")
	}
	if r.CompetitionID == "" {
		return errors.New("competition ID must not be empty")
	}
	if r.TrialCount < 1 {
		return errors.New("trial count must be positive")
	}
	if r.ExecutedBy == "" {
		return errors.New("executed by must not be empty")
	}
	if len(r.Predictions) == 0 {
		return errors.New("result must carry at least one prediction")
	}
	return nil
}

// SimulationSummary is the blob-free projection of a result used in history
// listings.
type SimulationSummary struct {
	ID               string    `json:"id"`
	CompetitionID    string    `json:"competition_id"`
	ExecutionDate    time.Time `json:"execution_date"`
	TrialCount       int       `json:"trial_count"`
	ExecutedBy       string    `json:"executed_by"`
	DurationMs       int64     `json:"duration_ms"`
	AlgorithmVersion string    `json:"algorithm_version"`
	IsLatest         bool      `json:"is_latest"`
	IsImportant      bool      `json:"is_important"`
}

// SimulationStats aggregates run counts across all competitions.
type SimulationStats struct {
	TotalRuns         int       `json:"total_runs"`
	LastExecution     time.Time `json:"last_execution"`
	AverageDurationMs float64   `json:"average_duration_ms"`
}

// Competition is the metadata supplied by the competition provider.
type Competition struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	AllowedForSimulation bool   `json:"allowed_for_simulation"`
}
