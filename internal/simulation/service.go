// Package simulation orchestrates full prediction runs: validation, rating,
// parallel trials, aggregation, and persistence.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fixturelab/leaguesim/internal/engine"
	"github.com/fixturelab/leaguesim/internal/logger"
	"github.com/fixturelab/leaguesim/internal/models"
	"github.com/fixturelab/leaguesim/internal/rating"
)

// AlgorithmVersion is stamped on every persisted result.
const AlgorithmVersion = "power-index-mc/1.2"

// Config tunes the orchestrator itself; the per-component configs ride along.
type Config struct {
	// Workers bounds the trial pool; 0 means runtime.NumCPU().
	Workers int
	// Seed fixes the run's randomness; 0 derives a seed from the clock.
	Seed int64
	// MaxPersistRetries and RetryDelayBase govern the backoff loop around
	// transient persistence failures.
	MaxPersistRetries int
	RetryDelayBase    time.Duration

	Rating    rating.Config
	Sampler   engine.SamplerConfig
	Aggregate engine.AggregateConfig
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           0,
		Seed:              0,
		MaxPersistRetries: 3,
		RetryDelayBase:    500 * time.Millisecond,
		Rating:            rating.DefaultConfig(),
		Sampler:           engine.DefaultSamplerConfig(),
		Aggregate:         engine.DefaultAggregateConfig(),
	}
}

// Service is the simulation orchestrator.
type Service struct {
	competitions CompetitionSource
	standings    StandingsSource
	fixtures     FixtureSource
	store        ResultStore
	cfg          Config
}

// New wires an orchestrator from its collaborators.
func New(competitions CompetitionSource, standings StandingsSource, fixtures FixtureSource, store ResultStore, cfg Config) *Service {
	return &Service{
		competitions: competitions,
		standings:    standings,
		fixtures:     fixtures,
		store:        store,
		cfg:          cfg,
	}
}

// Run executes one full simulation: validate, fetch, rate, fan out trials,
// aggregate, persist. All-or-nothing: any failure before the final commit
// leaves storage untouched, including the previous result's latest flag.
func (s *Service) Run(ctx context.Context, req models.SimulationRequest) (*models.SimulationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	comp, err := s.competitions.Competition(ctx, req.CompetitionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.ValidationError{Field: "competition_id", Reason: "unknown competition " + req.CompetitionID}
		}
		return nil, fmt.Errorf("failed to fetch competition: %w", err)
	}
	if !comp.AllowedForSimulation {
		return nil, &models.ValidationError{Field: "competition_id", Reason: "competition " + req.CompetitionID + " is not eligible for simulation"}
	}

	standings, err := s.standings.Standings(ctx, req.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch standings: %w", err)
	}
	fixtures, err := s.fixtures.Fixtures(ctx, req.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fixtures: %w", err)
	}
	if len(standings) == 0 || len(fixtures) == 0 {
		return nil, fmt.Errorf("competition %s: %w", req.CompetitionID, models.ErrInsufficientData)
	}

	started := time.Now()
	ratingCfg := s.cfg.Rating
	if len(req.WeightsOverride) == 3 {
		copy(ratingCfg.Weights[:], req.WeightsOverride)
	}
	ratings, err := rating.Compute(standings, ratingCfg)
	if err != nil {
		return nil, err
	}

	pending := pendingFixtures(standings, fixtures)
	logger.Info("Starting simulation for %s: %d trials, %d pending of %d fixtures",
		req.CompetitionID, req.TrialCount, len(pending), len(fixtures))

	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	trials, err := s.runTrials(ctx, req.TrialCount, pending, standings, ratings, seed)
	if err != nil {
		return nil, err
	}

	predictions, err := engine.Aggregate(trials, standings, s.cfg.Aggregate)
	if err != nil {
		return nil, err
	}

	result := &models.SimulationResult{
		ID:               uuid.New().String(),
		CompetitionID:    req.CompetitionID,
		ExecutionDate:    time.Now(),
		TrialCount:       req.TrialCount,
		ExecutedBy:       req.RequestedBy,
		DurationMs:       time.Since(started).Milliseconds(),
		AlgorithmVersion: AlgorithmVersion,
		Ratings:          ratings,
		Predictions:      predictions,
		Meta: models.RunMeta{
			Weights:         ratingCfg.Weights[:],
			Seed:            seed,
			Workers:         s.workers(),
			PendingFixtures: len(pending),
		},
	}

	if err := s.persistWithRetry(result); err != nil {
		return nil, err
	}
	logger.Info("Simulation %s for %s completed in %dms", result.ID, req.CompetitionID, result.DurationMs)
	return result, nil
}

// runTrials fans trialCount independent trials over a bounded worker pool.
// Each trial gets its own seeded random source and writes its table into its
// own slot, so the collected slice is in trial order no matter how the
// scheduler interleaves workers and a fixed seed reproduces results exactly.
func (s *Service) runTrials(ctx context.Context, trialCount int, pending []models.Fixture, standings []models.Standing, ratings []models.RatingEntry, seed int64) ([][]models.FinalStanding, error) {
	sampler := engine.NewSampler(s.cfg.Sampler)
	collected := make([][]models.FinalStanding, trialCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i := 0; i < trialCount; i++ {
		g.Go(func() error {
			// In-flight trials run to completion; cancellation stops the
			// pool between trials.
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			table, err := engine.RunTrial(pending, standings, ratings, sampler, engine.NewSource(seed+int64(i)))
			if err != nil {
				return err
			}
			collected[i] = table
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", models.ErrCancelled, err)
		}
		return nil, fmt.Errorf("trial computation failed: %w", err)
	}
	return collected, nil
}

// persistWithRetry commits the result, retrying transient storage failures
// with linear backoff. Non-transient failures surface immediately.
func (s *Service) persistWithRetry(result *models.SimulationResult) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxPersistRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.cfg.RetryDelayBase * time.Duration(attempt))
		}
		lastErr = s.store.SaveResult(result)
		if lastErr == nil {
			return nil
		}
		if !models.IsTransient(lastErr) {
			return lastErr
		}
		logger.Warn("Transient persistence failure (attempt %d/%d): %v",
			attempt+1, s.cfg.MaxPersistRetries, lastErr)
	}
	return lastErr
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.NumCPU()
}

// Latest returns the current latest result for a competition.
func (s *Service) Latest(ctx context.Context, competitionID string) (*models.SimulationResult, error) {
	return s.store.GetLatest(competitionID)
}

// TeamPrediction returns one team's prediction from the latest result.
func (s *Service) TeamPrediction(ctx context.Context, competitionID, teamID string) (*models.TeamPrediction, error) {
	result, err := s.store.GetLatest(competitionID)
	if err != nil {
		return nil, err
	}
	for i := range result.Predictions {
		if result.Predictions[i].TeamID == teamID {
			return &result.Predictions[i], nil
		}
	}
	return nil, fmt.Errorf("team %s in competition %s: %w", teamID, competitionID, models.ErrNotFound)
}

// History lists past runs, newest first. Empty competitionID spans all
// competitions.
func (s *Service) History(ctx context.Context, competitionID string, limit int) ([]models.SimulationSummary, error) {
	return s.store.History(competitionID, limit)
}

// Delete removes one stored result; latest and important results are refused.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(id)
}

// DeleteMany removes a batch of stored results with the same protections.
func (s *Service) DeleteMany(ctx context.Context, ids []string) (int, error) {
	return s.store.DeleteMany(ids)
}

// MarkImportant toggles deletion protection on a stored result.
func (s *Service) MarkImportant(ctx context.Context, id string, important bool) error {
	return s.store.MarkImportant(id, important)
}

// Stats aggregates run counts across all competitions.
func (s *Service) Stats(ctx context.Context) (*models.SimulationStats, error) {
	return s.store.Stats()
}

// pendingFixtures returns, in chronological order, the fixtures a trial must
// replay: everything not yet finished, plus finished fixtures the standings
// don't reflect yet (the providers' table can lag a matchday behind). A
// finished fixture counts as reflected while both sides' seen-finished
// tallies are still within their Played counts.
func pendingFixtures(standings []models.Standing, fixtures []models.Fixture) []models.Fixture {
	ordered := make([]models.Fixture, len(fixtures))
	copy(ordered, fixtures)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Date.Before(ordered[b].Date)
	})

	played := make(map[string]int, len(standings))
	for _, s := range standings {
		played[s.TeamID] = s.Played
	}

	seen := make(map[string]int, len(standings))
	pending := make([]models.Fixture, 0, len(ordered))
	for _, f := range ordered {
		if !f.Finished() {
			pending = append(pending, f)
			continue
		}
		reflected := seen[f.HomeTeamID] < played[f.HomeTeamID] &&
			seen[f.AwayTeamID] < played[f.AwayTeamID]
		seen[f.HomeTeamID]++
		seen[f.AwayTeamID]++
		if !reflected {
			pending = append(pending, f)
		}
	}
	return pending
}
