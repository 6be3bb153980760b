package simulation

import (
	"context"

	"github.com/fixturelab/leaguesim/internal/models"
)

// CompetitionSource supplies competition metadata, including the
// simulation-eligibility flag.
type CompetitionSource interface {
	Competition(ctx context.Context, competitionID string) (*models.Competition, error)
}

// StandingsSource supplies the current league table for a competition.
type StandingsSource interface {
	Standings(ctx context.Context, competitionID string) ([]models.Standing, error)
}

// FixtureSource supplies all fixtures for a competition, finished and
// scheduled, chronologically sortable.
type FixtureSource interface {
	Fixtures(ctx context.Context, competitionID string) ([]models.Fixture, error)
}

// ResultStore persists simulation results and serves read queries.
// *storage.Storage satisfies it.
type ResultStore interface {
	SaveResult(result *models.SimulationResult) error
	GetLatest(competitionID string) (*models.SimulationResult, error)
	GetByID(id string) (*models.SimulationResult, error)
	History(competitionID string, limit int) ([]models.SimulationSummary, error)
	Delete(id string) error
	DeleteMany(ids []string) (int, error)
	MarkImportant(id string, important bool) error
	Stats() (*models.SimulationStats, error)
}
