// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Rating     RatingConfig     `mapstructure:"rating"`
	Sampler    SamplerConfig    `mapstructure:"sampler"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RatingConfig holds the power-index weights and shaping constants.
type RatingConfig struct {
	PointsWeight            float64 `mapstructure:"points_weight"`
	GoalDiffWeight          float64 `mapstructure:"goal_diff_weight"`
	FormWeight              float64 `mapstructure:"form_weight"`
	PointsPerGameCap        float64 `mapstructure:"points_per_game_cap"`
	GoalDiffWindow          float64 `mapstructure:"goal_diff_window"`
	MinIndex                float64 `mapstructure:"min_index"`
	MaxIndex                float64 `mapstructure:"max_index"`
	RelegationThreshold     int     `mapstructure:"relegation_threshold"`
	HopeBonusPerPlace       float64 `mapstructure:"hope_bonus_per_place"`
	SurvivalPointsThreshold int     `mapstructure:"survival_points_threshold"`
	SurvivalBonus           float64 `mapstructure:"survival_bonus"`
	BonusAttenuation        float64 `mapstructure:"bonus_attenuation"`
	RoundsPerOpponent       int     `mapstructure:"rounds_per_opponent"`
}

// SamplerConfig holds the match-outcome probability shaping constants.
type SamplerConfig struct {
	HomeAdvantage      float64 `mapstructure:"home_advantage"`
	MinWinProbability  float64 `mapstructure:"min_win_probability"`
	MaxWinProbability  float64 `mapstructure:"max_win_probability"`
	MinDrawProbability float64 `mapstructure:"min_draw_probability"`
	MaxDrawProbability float64 `mapstructure:"max_draw_probability"`
	VolatilityChance   float64 `mapstructure:"volatility_chance"`
	VolatilityRange    float64 `mapstructure:"volatility_range"`
}

// SimulationConfig holds the orchestration knobs.
type SimulationConfig struct {
	Workers            int           `mapstructure:"workers"`
	Seed               int64         `mapstructure:"seed"`
	DefaultTrials      int           `mapstructure:"default_trials"`
	RelegationZoneSize int           `mapstructure:"relegation_zone_size"`
	TopFourCutoff      int           `mapstructure:"top_four_cutoff"`
	TopSixCutoff       int           `mapstructure:"top_six_cutoff"`
	MaxPersistRetries  int           `mapstructure:"max_persist_retries"`
	RetryDelayBase     time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath             string `mapstructure:"db_path"`
	KeepPerCompetition int    `mapstructure:"keep_per_competition"`
}

// TelegramConfig holds notification configuration.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("LEAGUESIM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Rating defaults
	v.SetDefault("rating.points_weight", 0.5)
	v.SetDefault("rating.goal_diff_weight", 0.3)
	v.SetDefault("rating.form_weight", 0.2)
	v.SetDefault("rating.points_per_game_cap", 2.0)
	v.SetDefault("rating.goal_diff_window", 1.0)
	v.SetDefault("rating.min_index", 45.0)
	v.SetDefault("rating.max_index", 65.0)
	v.SetDefault("rating.relegation_threshold", 15)
	v.SetDefault("rating.hope_bonus_per_place", 1.5)
	v.SetDefault("rating.survival_points_threshold", 10)
	v.SetDefault("rating.survival_bonus", 2.0)
	v.SetDefault("rating.bonus_attenuation", 0.5)
	v.SetDefault("rating.rounds_per_opponent", 2)

	// Sampler defaults
	v.SetDefault("sampler.home_advantage", 0.04)
	v.SetDefault("sampler.min_win_probability", 0.42)
	v.SetDefault("sampler.max_win_probability", 0.58)
	v.SetDefault("sampler.min_draw_probability", 0.20)
	v.SetDefault("sampler.max_draw_probability", 0.35)
	v.SetDefault("sampler.volatility_chance", 0.30)
	v.SetDefault("sampler.volatility_range", 0.04)

	// Simulation defaults
	v.SetDefault("simulation.workers", 0) // 0 = NumCPU
	v.SetDefault("simulation.seed", 0)    // 0 = time-derived
	v.SetDefault("simulation.default_trials", 2000)
	v.SetDefault("simulation.relegation_zone_size", 3)
	v.SetDefault("simulation.top_four_cutoff", 4)
	v.SetDefault("simulation.top_six_cutoff", 6)
	v.SetDefault("simulation.max_persist_retries", 3)
	v.SetDefault("simulation.retry_delay_base", "500ms")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/leaguesim.db")
	v.SetDefault("storage.keep_per_competition", 5)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Rating.PointsWeight < 0 || c.Rating.GoalDiffWeight < 0 || c.Rating.FormWeight < 0 {
		return fmt.Errorf("rating weights must not be negative")
	}
	if c.Rating.PointsWeight+c.Rating.GoalDiffWeight+c.Rating.FormWeight == 0 {
		return fmt.Errorf("at least one rating weight must be positive")
	}
	if c.Rating.PointsPerGameCap <= 0 {
		return fmt.Errorf("rating.points_per_game_cap must be positive")
	}
	if c.Rating.GoalDiffWindow <= 0 {
		return fmt.Errorf("rating.goal_diff_window must be positive")
	}
	if c.Rating.MinIndex >= c.Rating.MaxIndex {
		return fmt.Errorf("rating.min_index must be below rating.max_index")
	}
	if c.Rating.RoundsPerOpponent < 1 {
		return fmt.Errorf("rating.rounds_per_opponent must be at least 1")
	}

	if c.Sampler.MinWinProbability <= 0 || c.Sampler.MaxWinProbability >= 1 {
		return fmt.Errorf("sampler win probability bounds must lie strictly inside (0, 1)")
	}
	if c.Sampler.MinWinProbability >= c.Sampler.MaxWinProbability {
		return fmt.Errorf("sampler.min_win_probability must be below sampler.max_win_probability")
	}
	if c.Sampler.MinDrawProbability < 0 || c.Sampler.MaxDrawProbability > 1 ||
		c.Sampler.MinDrawProbability >= c.Sampler.MaxDrawProbability {
		return fmt.Errorf("sampler draw probability bounds are invalid")
	}
	if c.Sampler.MaxWinProbability+c.Sampler.MaxDrawProbability >= 1 {
		return fmt.Errorf("sampler win and draw ceilings must leave room for the away side")
	}
	if c.Sampler.VolatilityChance < 0 || c.Sampler.VolatilityChance > 1 {
		return fmt.Errorf("sampler.volatility_chance must be between 0.0 and 1.0")
	}

	if c.Simulation.Workers < 0 {
		return fmt.Errorf("simulation.workers must not be negative")
	}
	if c.Simulation.DefaultTrials < 1 || c.Simulation.DefaultTrials > 10000 {
		return fmt.Errorf("simulation.default_trials must be between 1 and 10000")
	}
	if c.Simulation.RelegationZoneSize < 1 {
		return fmt.Errorf("simulation.relegation_zone_size must be at least 1")
	}
	if c.Simulation.TopFourCutoff < 1 || c.Simulation.TopSixCutoff < c.Simulation.TopFourCutoff {
		return fmt.Errorf("simulation zone cutoffs are invalid")
	}
	if c.Simulation.MaxPersistRetries < 1 {
		return fmt.Errorf("simulation.max_persist_retries must be at least 1")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.KeepPerCompetition < 1 {
		return fmt.Errorf("storage.keep_per_competition must be at least 1")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}
