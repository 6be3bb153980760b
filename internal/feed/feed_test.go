package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fixturelab/leaguesim/internal/models"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleDataset = `{
  "competitions": [
    {"id": "league-1", "name": "First Division", "allowed_for_simulation": true},
    {"id": "cup-1", "name": "Domestic Cup", "allowed_for_simulation": false}
  ],
  "standings": {
    "league-1": [
      {"team_id": "home-fc", "team_name": "Home FC", "position": 1, "played": 2, "points": 6},
      {"team_id": "away-fc", "team_name": "Away FC", "position": 2, "played": 2, "points": 0}
    ]
  },
  "fixtures": {
    "league-1": [
      {"id": "f2", "home_team_id": "away-fc", "away_team_id": "home-fc", "date": "2026-04-02T15:00:00Z", "status": "scheduled"},
      {"id": "f1", "home_team_id": "home-fc", "away_team_id": "away-fc", "date": "2026-03-01T15:00:00Z", "status": "finished", "home_score": 2, "away_score": 1}
    ]
  }
}`

func TestLoadAndServe(t *testing.T) {
	f, err := Load(writeDataset(t, sampleDataset))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()

	comp, err := f.Competition(ctx, "league-1")
	if err != nil {
		t.Fatalf("Competition: %v", err)
	}
	if comp.Name != "First Division" || !comp.AllowedForSimulation {
		t.Errorf("unexpected competition: %+v", comp)
	}

	cup, err := f.Competition(ctx, "cup-1")
	if err != nil {
		t.Fatalf("Competition: %v", err)
	}
	if cup.AllowedForSimulation {
		t.Error("cup should not be eligible for simulation")
	}

	standings, err := f.Standings(ctx, "league-1")
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if len(standings) != 2 || standings[0].TeamID != "home-fc" {
		t.Errorf("unexpected standings: %+v", standings)
	}
}

func TestLoadSortsFixturesChronologically(t *testing.T) {
	f, err := Load(writeDataset(t, sampleDataset))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fixtures, err := f.Fixtures(context.Background(), "league-1")
	if err != nil {
		t.Fatalf("Fixtures: %v", err)
	}
	if len(fixtures) != 2 || fixtures[0].ID != "f1" || fixtures[1].ID != "f2" {
		t.Errorf("fixtures not in chronological order: %+v", fixtures)
	}
	if !fixtures[0].Finished() || fixtures[0].HomeScore != 2 {
		t.Errorf("finished fixture lost its score: %+v", fixtures[0])
	}
}

func TestUnknownCompetition(t *testing.T) {
	f, err := Load(writeDataset(t, sampleDataset))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := f.Competition(context.Background(), "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeDataset(t, "{not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := Load(writeDataset(t, `{"competitions": [{"name": "anonymous"}]}`)); err == nil {
		t.Error("expected error for a competition without an ID")
	}
}
