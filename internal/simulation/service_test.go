package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/fixturelab/leaguesim/internal/models"
	"github.com/fixturelab/leaguesim/internal/storage"
)

// fakeProvider serves one competition's data and counts fetches, so tests can
// assert that invalid requests never reach the data layer.
type fakeProvider struct {
	competition models.Competition
	standings   []models.Standing
	fixtures    []models.Fixture
	fetches     int
}

func (f *fakeProvider) Competition(ctx context.Context, id string) (*models.Competition, error) {
	f.fetches++
	if id != f.competition.ID {
		return nil, fmt.Errorf("competition %s: %w", id, models.ErrNotFound)
	}
	c := f.competition
	return &c, nil
}

func (f *fakeProvider) Standings(ctx context.Context, id string) ([]models.Standing, error) {
	f.fetches++
	return f.standings, nil
}

func (f *fakeProvider) Fixtures(ctx context.Context, id string) ([]models.Fixture, error) {
	f.fetches++
	return f.fixtures, nil
}

// flakyStore wraps a real store and fails SaveResult with a transient error a
// configured number of times.
type flakyStore struct {
	ResultStore
	failures int
	attempts int
}

func (f *flakyStore) SaveResult(result *models.SimulationResult) error {
	f.attempts++
	if f.attempts <= f.failures {
		return &models.PersistenceError{Op: "save", Transient: true, Err: errors.New("database is locked")}
	}
	return f.ResultStore.SaveResult(result)
}

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(5, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fourTeamProvider builds a level four-team table with three unplayed
// fixtures. Goal difference and form separate the ratings cleanly: alpha is
// clearly strongest, delta clearly weakest.
func fourTeamProvider() *fakeProvider {
	day := time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC)
	return &fakeProvider{
		competition: models.Competition{ID: "quad", Name: "Quad League", AllowedForSimulation: true},
		standings: []models.Standing{
			{TeamID: "alpha", TeamName: "Alpha", Position: 1, Played: 10, Points: 15, GoalsFor: 20, GoalsAgainst: 10, RecentForm: "WWWWW"},
			{TeamID: "beta", TeamName: "Beta", Position: 2, Played: 10, Points: 15, GoalsFor: 15, GoalsAgainst: 12, RecentForm: "WDWDW"},
			{TeamID: "gamma", TeamName: "Gamma", Position: 3, Played: 10, Points: 15, GoalsFor: 12, GoalsAgainst: 12, RecentForm: "DDDDD"},
			{TeamID: "delta", TeamName: "Delta", Position: 4, Played: 10, Points: 15, GoalsFor: 8, GoalsAgainst: 18, RecentForm: "LLLLL"},
		},
		fixtures: []models.Fixture{
			{ID: "f1", HomeTeamID: "alpha", AwayTeamID: "delta", Date: day, Status: models.StatusScheduled},
			{ID: "f2", HomeTeamID: "beta", AwayTeamID: "gamma", Date: day.Add(time.Hour), Status: models.StatusScheduled},
			{ID: "f3", HomeTeamID: "delta", AwayTeamID: "beta", Date: day.Add(48 * time.Hour), Status: models.StatusScheduled},
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.Seed = 42
	cfg.RetryDelayBase = time.Millisecond
	return cfg
}

func request(trials int) models.SimulationRequest {
	return models.SimulationRequest{CompetitionID: "quad", TrialCount: trials, RequestedBy: "tester"}
}

func TestRun_TrialCountBounds(t *testing.T) {
	provider := fourTeamProvider()
	store := newTestStore(t)
	svc := New(provider, provider, provider, store, testConfig())

	for _, trials := range []int{0, -5, 10001} {
		_, err := svc.Run(context.Background(), request(trials))
		if !models.IsValidation(err) {
			t.Errorf("trials=%d: expected ValidationError, got %v", trials, err)
		}
	}
	if provider.fetches != 0 {
		t.Errorf("invalid requests must not touch providers, got %d fetches", provider.fetches)
	}
	if history, _ := store.History("", 0); len(history) != 0 {
		t.Errorf("invalid requests must not persist, found %d rows", len(history))
	}
}

func TestRun_RequesterRequired(t *testing.T) {
	provider := fourTeamProvider()
	svc := New(provider, provider, provider, newTestStore(t), testConfig())
	_, err := svc.Run(context.Background(), models.SimulationRequest{CompetitionID: "quad", TrialCount: 10})
	if !models.IsValidation(err) {
		t.Errorf("expected ValidationError for empty requester, got %v", err)
	}
}

func TestRun_UnknownCompetition(t *testing.T) {
	provider := fourTeamProvider()
	svc := New(provider, provider, provider, newTestStore(t), testConfig())
	req := request(10)
	req.CompetitionID = "ghost"
	if _, err := svc.Run(context.Background(), req); !models.IsValidation(err) {
		t.Errorf("expected ValidationError for unknown competition, got %v", err)
	}
}

func TestRun_CompetitionNotEligible(t *testing.T) {
	provider := fourTeamProvider()
	provider.competition.AllowedForSimulation = false
	svc := New(provider, provider, provider, newTestStore(t), testConfig())
	if _, err := svc.Run(context.Background(), request(10)); !models.IsValidation(err) {
		t.Errorf("expected ValidationError for ineligible competition, got %v", err)
	}
}

func TestRun_InsufficientData(t *testing.T) {
	provider := fourTeamProvider()
	provider.standings = nil
	svc := New(provider, provider, provider, newTestStore(t), testConfig())
	if _, err := svc.Run(context.Background(), request(10)); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRun_PersistsLatestResult(t *testing.T) {
	provider := fourTeamProvider()
	store := newTestStore(t)
	svc := New(provider, provider, provider, store, testConfig())

	result, err := svc.Run(context.Background(), request(200))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.AlgorithmVersion != AlgorithmVersion || result.TrialCount != 200 {
		t.Errorf("unexpected result metadata: %+v", result)
	}
	if len(result.Predictions) != 4 || len(result.Ratings) != 4 {
		t.Fatalf("snapshots incomplete: %d predictions, %d ratings", len(result.Predictions), len(result.Ratings))
	}

	stored, err := store.GetLatest("quad")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if stored.ID != result.ID || !stored.IsLatest {
		t.Errorf("persisted result mismatch: id=%s latest=%v", stored.ID, stored.IsLatest)
	}
}

func TestRun_SingleLatestAfterConsecutiveRuns(t *testing.T) {
	provider := fourTeamProvider()
	store := newTestStore(t)
	svc := New(provider, provider, provider, store, testConfig())

	first, err := svc.Run(context.Background(), request(50))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := svc.Run(context.Background(), request(50))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("runs must get distinct IDs")
	}

	history, err := store.History("quad", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	latest := 0
	for _, sum := range history {
		if sum.IsLatest {
			latest++
			if sum.ID != second.ID {
				t.Errorf("latest should be the second run %s, got %s", second.ID, sum.ID)
			}
		}
	}
	if latest != 1 {
		t.Errorf("exactly one latest expected, got %d", latest)
	}
}

func TestRun_StrongerTeamWinsTitleMoreOften(t *testing.T) {
	provider := fourTeamProvider()
	svc := New(provider, provider, provider, newTestStore(t), testConfig())

	result, err := svc.Run(context.Background(), request(2000))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	byID := make(map[string]models.TeamPrediction)
	for _, p := range result.Predictions {
		byID[p.TeamID] = p
	}
	if !(byID["alpha"].TitleProbability > byID["delta"].TitleProbability) {
		t.Errorf("alpha (%.2f) should out-title delta (%.2f)",
			byID["alpha"].TitleProbability, byID["delta"].TitleProbability)
	}
}

func TestRun_DeterministicWhenSeasonIsOver(t *testing.T) {
	day := time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		competition: models.Competition{ID: "quad", Name: "Quad League", AllowedForSimulation: true},
		standings: []models.Standing{
			// The table already reflects both finished fixtures.
			{TeamID: "alpha", TeamName: "Alpha", Position: 1, Played: 1, Won: 1, Points: 3, GoalsFor: 2},
			{TeamID: "beta", TeamName: "Beta", Position: 2, Played: 1, Won: 1, Points: 3, GoalsFor: 1},
			{TeamID: "gamma", TeamName: "Gamma", Position: 3, Played: 1, Lost: 1, GoalsAgainst: 1},
			{TeamID: "delta", TeamName: "Delta", Position: 4, Played: 1, Lost: 1, GoalsAgainst: 2},
		},
		fixtures: []models.Fixture{
			{ID: "f1", HomeTeamID: "alpha", AwayTeamID: "delta", Date: day, Status: models.StatusFinished, HomeScore: 2, AwayScore: 0},
			{ID: "f2", HomeTeamID: "beta", AwayTeamID: "gamma", Date: day.Add(time.Hour), Status: models.StatusFinished, HomeScore: 1, AwayScore: 0},
		},
	}
	cfg := testConfig()
	cfg.Seed = 0 // even an uncontrolled seed must not matter here
	svc := New(provider, provider, provider, newTestStore(t), cfg)

	result, err := svc.Run(context.Background(), request(500))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, p := range result.Predictions {
		if len(p.PositionDistribution) != 1 {
			t.Fatalf("%s: a finished season must pin a single position, got %v", p.TeamID, p.PositionDistribution)
		}
		for _, v := range p.PositionDistribution {
			if math.Abs(v-100) > 0.01 {
				t.Errorf("%s: expected 100%% mass, got %v", p.TeamID, v)
			}
		}
	}
}

func TestRun_ReproducibleWithFixedSeed(t *testing.T) {
	cfg := testConfig()
	cfg.Seed = 777

	providerA := fourTeamProvider()
	first, err := New(providerA, providerA, providerA, newTestStore(t), cfg).Run(context.Background(), request(300))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	providerB := fourTeamProvider()
	second, err := New(providerB, providerB, providerB, newTestStore(t), cfg).Run(context.Background(), request(300))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !reflect.DeepEqual(first.Predictions, second.Predictions) {
		t.Error("fixed seed must reproduce identical predictions")
	}
	if !reflect.DeepEqual(first.Ratings, second.Ratings) {
		t.Error("ratings must be identical for identical inputs")
	}
}

func TestRun_TiedPredictionsStableAcrossSchedules(t *testing.T) {
	// Two indistinguishable teams and two trials make an exact title tie
	// likely; repeated runs with the same seed must still order and value
	// the predictions identically no matter how the workers interleave.
	day := time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC)
	newProvider := func() *fakeProvider {
		return &fakeProvider{
			competition: models.Competition{ID: "duo", Name: "Duo League", AllowedForSimulation: true},
			standings: []models.Standing{
				{TeamID: "a", TeamName: "A", Position: 1, Played: 4, Points: 6, GoalsFor: 5, GoalsAgainst: 5, RecentForm: "WDLD"},
				{TeamID: "b", TeamName: "B", Position: 2, Played: 4, Points: 6, GoalsFor: 5, GoalsAgainst: 5, RecentForm: "WDLD"},
			},
			fixtures: []models.Fixture{
				{ID: "f1", HomeTeamID: "a", AwayTeamID: "b", Date: day, Status: models.StatusScheduled},
			},
		}
	}
	cfg := testConfig()
	cfg.Seed = 1
	req := models.SimulationRequest{CompetitionID: "duo", TrialCount: 2, RequestedBy: "tester"}

	provider := newProvider()
	first, err := New(provider, provider, provider, newTestStore(t), cfg).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 200; i++ {
		p := newProvider()
		result, err := New(p, p, p, newTestStore(t), cfg).Run(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if !reflect.DeepEqual(result.Predictions, first.Predictions) {
			t.Fatalf("run %d diverged under identical inputs and seed:\n%+v\nvs\n%+v",
				i, result.Predictions, first.Predictions)
		}
	}
}

func TestRun_CancelledContext(t *testing.T) {
	provider := fourTeamProvider()
	store := newTestStore(t)
	svc := New(provider, provider, provider, store, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Run(ctx, request(5000)); !errors.Is(err, models.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if history, _ := store.History("", 0); len(history) != 0 {
		t.Errorf("cancelled run must not persist, found %d rows", len(history))
	}
}

func TestRun_RetriesTransientPersistenceFailures(t *testing.T) {
	provider := fourTeamProvider()
	store := &flakyStore{ResultStore: newTestStore(t), failures: 2}
	svc := New(provider, provider, provider, store, testConfig())

	if _, err := svc.Run(context.Background(), request(20)); err != nil {
		t.Fatalf("Run should survive transient failures: %v", err)
	}
	if store.attempts != 3 {
		t.Errorf("expected 3 save attempts, got %d", store.attempts)
	}
}

func TestRun_GivesUpAfterRetryBudget(t *testing.T) {
	provider := fourTeamProvider()
	store := &flakyStore{ResultStore: newTestStore(t), failures: 100}
	svc := New(provider, provider, provider, store, testConfig())

	_, err := svc.Run(context.Background(), request(20))
	if !models.IsTransient(err) {
		t.Fatalf("expected the last transient error, got %v", err)
	}
	if want := testConfig().MaxPersistRetries; store.attempts != want {
		t.Errorf("expected %d attempts, got %d", want, store.attempts)
	}
}

func TestTeamPrediction(t *testing.T) {
	provider := fourTeamProvider()
	store := newTestStore(t)
	svc := New(provider, provider, provider, store, testConfig())

	if _, err := svc.Run(context.Background(), request(100)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	pred, err := svc.TeamPrediction(context.Background(), "quad", "beta")
	if err != nil {
		t.Fatalf("TeamPrediction: %v", err)
	}
	if pred.TeamID != "beta" || pred.TeamName != "Beta" {
		t.Errorf("unexpected prediction: %+v", pred)
	}
	if _, err := svc.TeamPrediction(context.Background(), "quad", "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown team, got %v", err)
	}
}

func TestPendingFixtures_Reconciliation(t *testing.T) {
	day := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	// The table lags a matchday behind: Played covers only the first
	// finished fixture.
	standings := []models.Standing{
		{TeamID: "a", Played: 1},
		{TeamID: "b", Played: 1},
	}
	fixtures := []models.Fixture{
		{ID: "f3", HomeTeamID: "a", AwayTeamID: "b", Date: day.Add(48 * time.Hour), Status: models.StatusScheduled},
		{ID: "f1", HomeTeamID: "a", AwayTeamID: "b", Date: day, Status: models.StatusFinished, HomeScore: 1, AwayScore: 0},
		{ID: "f2", HomeTeamID: "b", AwayTeamID: "a", Date: day.Add(24 * time.Hour), Status: models.StatusFinished, HomeScore: 2, AwayScore: 2},
	}

	pending := pendingFixtures(standings, fixtures)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending fixtures, got %d: %+v", len(pending), pending)
	}
	if pending[0].ID != "f2" || pending[1].ID != "f3" {
		t.Errorf("wrong pending order: %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestPendingFixtures_AllReflected(t *testing.T) {
	day := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	standings := []models.Standing{
		{TeamID: "a", Played: 2},
		{TeamID: "b", Played: 2},
	}
	fixtures := []models.Fixture{
		{ID: "f1", HomeTeamID: "a", AwayTeamID: "b", Date: day, Status: models.StatusFinished, HomeScore: 1, AwayScore: 0},
		{ID: "f2", HomeTeamID: "b", AwayTeamID: "a", Date: day.Add(24 * time.Hour), Status: models.StatusFinished, HomeScore: 0, AwayScore: 0},
	}
	if pending := pendingFixtures(standings, fixtures); len(pending) != 0 {
		t.Errorf("fully reflected fixtures should leave nothing pending: %+v", pending)
	}
}
