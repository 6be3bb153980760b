package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fixturelab/leaguesim/internal/config"
	"github.com/fixturelab/leaguesim/internal/engine"
	"github.com/fixturelab/leaguesim/internal/feed"
	"github.com/fixturelab/leaguesim/internal/logger"
	"github.com/fixturelab/leaguesim/internal/models"
	"github.com/fixturelab/leaguesim/internal/notify"
	"github.com/fixturelab/leaguesim/internal/rating"
	"github.com/fixturelab/leaguesim/internal/simulation"
	"github.com/fixturelab/leaguesim/internal/storage"
)

var (
	configPath  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	datasetPath = flag.String("dataset", "data/league.json", "Path to competition dataset file")
	competition = flag.String("competition", "", "Competition ID")
	trials      = flag.Int("trials", 0, "Trial count (defaults to simulation.default_trials)")
	requestedBy = flag.String("by", "cli", "Requester identity")
	teamID      = flag.String("team", "", "Team ID (for the predict command)")
	limit       = flag.Int("limit", 20, "History page size")
	ids         = flag.String("ids", "", "Comma-separated result IDs (for the delete and mark commands)")
	important   = flag.Bool("important", true, "Protection state to apply (for the mark command)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	store, err := storage.New(cfg.Storage.KeepPerCompetition, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling run...")
		cancel()
	}()

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}
	if err := dispatch(ctx, command, cfg, store); err != nil {
		logger.Fatal("%s failed: %v", command, err)
	}
}

func dispatch(ctx context.Context, command string, cfg *config.Config, store *storage.Storage) error {
	svc, err := buildService(cfg, store)
	if err != nil {
		return err
	}

	switch command {
	case "run":
		return runSimulation(ctx, cfg, svc)
	case "latest":
		result, err := svc.Latest(ctx, *competition)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	case "predict":
		pred, err := svc.TeamPrediction(ctx, *competition, *teamID)
		if err != nil {
			return err
		}
		printPrediction(pred)
		return nil
	case "history":
		summaries, err := svc.History(ctx, *competition, *limit)
		if err != nil {
			return err
		}
		printHistory(summaries)
		return nil
	case "delete":
		list := strings.Split(*ids, ",")
		deleted, err := svc.DeleteMany(ctx, list)
		fmt.Printf("deleted %d result(s)\n", deleted)
		return err
	case "mark":
		for _, id := range strings.Split(*ids, ",") {
			if err := svc.MarkImportant(ctx, id, *important); err != nil {
				return err
			}
		}
		fmt.Printf("marked important=%v\n", *important)
		return nil
	case "stats":
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("total runs: %d\nlast execution: %s\naverage duration: %.0fms\n",
			stats.TotalRuns, stats.LastExecution.Format("2006-01-02 15:04:05"), stats.AverageDurationMs)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want run, latest, predict, history, delete, mark, or stats)", command)
	}
}

func buildService(cfg *config.Config, store *storage.Storage) (*simulation.Service, error) {
	provider, err := feed.Load(*datasetPath)
	if err != nil {
		return nil, err
	}

	svcCfg := simulation.DefaultConfig()
	svcCfg.Workers = cfg.Simulation.Workers
	svcCfg.Seed = cfg.Simulation.Seed
	svcCfg.MaxPersistRetries = cfg.Simulation.MaxPersistRetries
	svcCfg.RetryDelayBase = cfg.Simulation.RetryDelayBase
	svcCfg.Rating = ratingConfig(cfg.Rating)
	svcCfg.Sampler = samplerConfig(cfg.Sampler)
	svcCfg.Aggregate = engine.AggregateConfig{
		TitleCutoff:        1,
		TopFourCutoff:      cfg.Simulation.TopFourCutoff,
		TopSixCutoff:       cfg.Simulation.TopSixCutoff,
		RelegationZoneSize: cfg.Simulation.RelegationZoneSize,
	}
	return simulation.New(provider, provider, provider, store, svcCfg), nil
}

func ratingConfig(rc config.RatingConfig) rating.Config {
	return rating.Config{
		Weights:                 [3]float64{rc.PointsWeight, rc.GoalDiffWeight, rc.FormWeight},
		PointsPerGameCap:        rc.PointsPerGameCap,
		GoalDiffWindow:          rc.GoalDiffWindow,
		MinIndex:                rc.MinIndex,
		MaxIndex:                rc.MaxIndex,
		RelegationThreshold:     rc.RelegationThreshold,
		HopeBonusPerPlace:       rc.HopeBonusPerPlace,
		SurvivalPointsThreshold: rc.SurvivalPointsThreshold,
		SurvivalBonus:           rc.SurvivalBonus,
		BonusAttenuation:        rc.BonusAttenuation,
		RoundsPerOpponent:       rc.RoundsPerOpponent,
	}
}

func samplerConfig(sc config.SamplerConfig) engine.SamplerConfig {
	out := engine.DefaultSamplerConfig()
	out.HomeAdvantage = sc.HomeAdvantage
	out.MinWinProbability = sc.MinWinProbability
	out.MaxWinProbability = sc.MaxWinProbability
	out.MinDrawProbability = sc.MinDrawProbability
	out.MaxDrawProbability = sc.MaxDrawProbability
	out.VolatilityChance = sc.VolatilityChance
	out.VolatilityRange = sc.VolatilityRange
	return out
}

func runSimulation(ctx context.Context, cfg *config.Config, svc *simulation.Service) error {
	trialCount := *trials
	if trialCount == 0 {
		trialCount = cfg.Simulation.DefaultTrials
	}
	result, err := svc.Run(ctx, models.SimulationRequest{
		CompetitionID: *competition,
		TrialCount:    trialCount,
		RequestedBy:   *requestedBy,
	})
	if err != nil {
		if cfg.Telegram.Enabled {
			if client, cerr := telegramClient(cfg); cerr == nil {
				if serr := client.SendError(err); serr != nil {
					logger.Warn("Failed to send error notification: %v", serr)
				}
			}
		}
		return err
	}
	printResult(result)

	if cfg.Telegram.Enabled {
		client, err := telegramClient(cfg)
		if err != nil {
			return err
		}
		if err := client.SendRunSummary(result); err != nil {
			logger.Warn("Failed to send run summary: %v", err)
		}
	}
	return nil
}

func telegramClient(cfg *config.Config) (*notify.Client, error) {
	return notify.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
}

func printResult(result *models.SimulationResult) {
	fmt.Printf("simulation %s (%s) — %d trials in %dms, algorithm %s\n\n",
		result.ID, result.CompetitionID, result.TrialCount, result.DurationMs, result.AlgorithmVersion)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEAM\tTITLE%\tTOP4%\tTOP6%\tRELEG%\tAVG POS\tAVG PTS")
	for _, p := range result.Predictions {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			p.TeamName, p.TitleProbability, p.TopFourProbability, p.TopSixProbability,
			p.RelegationProbability, p.AverageFinalPosition, p.AverageFinalPoints)
	}
	w.Flush()
}

func printPrediction(p *models.TeamPrediction) {
	fmt.Printf("%s (current position %d)\n", p.TeamName, p.CurrentPosition)
	fmt.Printf("  title %.2f%%  top4 %.2f%%  top6 %.2f%%  relegation %.2f%%\n",
		p.TitleProbability, p.TopFourProbability, p.TopSixProbability, p.RelegationProbability)
	fmt.Printf("  average final position %.2f, average final points %.2f\n",
		p.AverageFinalPosition, p.AverageFinalPoints)

	positions := make([]int, 0, len(p.PositionDistribution))
	for pos := range p.PositionDistribution {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		fmt.Printf("  P%-2d %6.2f%%\n", pos, p.PositionDistribution[pos])
	}
}

func printHistory(summaries []models.SimulationSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMPETITION\tDATE\tTRIALS\tBY\tMS\tLATEST\tIMPORTANT")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%v\t%v\n",
			s.ID, s.CompetitionID, s.ExecutionDate.Format("2006-01-02 15:04"),
			s.TrialCount, s.ExecutedBy, s.DurationMs, s.IsLatest, s.IsImportant)
	}
	w.Flush()
}
