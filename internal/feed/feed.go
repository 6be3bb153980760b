// Package feed loads competitions, standings, and fixtures from a JSON
// dataset file and serves them through the provider ports.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fixturelab/leaguesim/internal/models"
)

// dataset is the on-disk shape: one file carries every competition.
type dataset struct {
	Competitions []models.Competition         `json:"competitions"`
	Standings    map[string][]models.Standing `json:"standings"`
	Fixtures     map[string][]models.Fixture  `json:"fixtures"`
}

// Feed is a read-only data provider backed by a JSON file.
type Feed struct {
	competitions map[string]models.Competition
	standings    map[string][]models.Standing
	fixtures     map[string][]models.Fixture
}

// Load reads and indexes the dataset at path. Fixtures are sorted
// chronologically on load.
func Load(path string) (*Feed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var ds dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	f := &Feed{
		competitions: make(map[string]models.Competition, len(ds.Competitions)),
		standings:    ds.Standings,
		fixtures:     ds.Fixtures,
	}
	for _, c := range ds.Competitions {
		if c.ID == "" {
			return nil, fmt.Errorf("dataset contains a competition without an ID")
		}
		f.competitions[c.ID] = c
	}
	for id := range f.fixtures {
		fixtures := f.fixtures[id]
		sort.SliceStable(fixtures, func(a, b int) bool {
			return fixtures[a].Date.Before(fixtures[b].Date)
		})
	}
	return f, nil
}

// Competition returns metadata for one competition.
func (f *Feed) Competition(ctx context.Context, competitionID string) (*models.Competition, error) {
	c, ok := f.competitions[competitionID]
	if !ok {
		return nil, fmt.Errorf("competition %s: %w", competitionID, models.ErrNotFound)
	}
	return &c, nil
}

// Standings returns the current table for one competition.
func (f *Feed) Standings(ctx context.Context, competitionID string) ([]models.Standing, error) {
	return f.standings[competitionID], nil
}

// Fixtures returns all fixtures for one competition, chronologically ordered.
func (f *Feed) Fixtures(ctx context.Context, competitionID string) ([]models.Fixture, error) {
	return f.fixtures[competitionID], nil
}
