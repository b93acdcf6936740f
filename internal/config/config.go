package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS,required"`
	Environment   string `env:"ENVIRONMENT,required"`
	Database      DatabaseConfig
	Migration     MigrationConfig
	Matcher       MatcherConfig
	Advisor       AdvisorConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST,required"`
	Port     int    `env:"DB_PORT,required"`
	User     string `env:"DB_USER,required"`
	Password string `env:"DB_PASSWORD,required"`
	Name     string `env:"DB_NAME,required"`
	Params   string `env:"DB_PARAMS,required"`
}

type MigrationConfig struct {
	Dir string `env:"MIGRATION_DIR"`
}

// MatcherConfig tunes the decision policy and combination search.
// GroupedMode is "combine" to resolve grouped settlement credits
// through the combination search or "defer" to park them for the
// suspense-account workflow.
type MatcherConfig struct {
	AutoSettleThreshold float64 `env:"MATCHER_AUTO_SETTLE_THRESHOLD"`
	SuggestThreshold    float64 `env:"MATCHER_SUGGEST_THRESHOLD"`
	MaxCombinationSize  int     `env:"MATCHER_MAX_COMBINATION_SIZE"`
	MaxCombinations     int     `env:"MATCHER_MAX_COMBINATIONS"`
	GroupedMode         string  `env:"MATCHER_GROUPED_MODE"`
	BatchLimit          int     `env:"MATCHER_BATCH_LIMIT"`
	Workers             int     `env:"MATCHER_WORKERS"`
	RetryAttempts       int     `env:"MATCHER_RETRY_ATTEMPTS"`
}

// AdvisorConfig configures the optional suggestion re-ranker. Disabled
// unless a URL is set.
type AdvisorConfig struct {
	Enabled bool   `env:"ADVISOR_ENABLED"`
	URL     string `env:"ADVISOR_URL"`
	APIKey  string `env:"ADVISOR_API_KEY"`
	Model   string `env:"ADVISOR_MODEL"`
}

const (
	GroupedModeCombine = "combine"
	GroupedModeDefer   = "defer"
)

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("MATCHER_AUTO_SETTLE_THRESHOLD", 90.0)
	viper.SetDefault("MATCHER_SUGGEST_THRESHOLD", 70.0)
	viper.SetDefault("MATCHER_MAX_COMBINATION_SIZE", 5)
	viper.SetDefault("MATCHER_MAX_COMBINATIONS", 5)
	viper.SetDefault("MATCHER_GROUPED_MODE", GroupedModeCombine)
	viper.SetDefault("MATCHER_BATCH_LIMIT", 100)
	viper.SetDefault("MATCHER_WORKERS", 4)
	viper.SetDefault("MATCHER_RETRY_ATTEMPTS", 3)
	viper.SetDefault("ADVISOR_MODEL", "gpt-4o-mini")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{
		ServerAddress: viper.GetString("SERVER_ADDRESS"),
		Environment:   viper.GetString("ENVIRONMENT"),
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Name:     viper.GetString("DB_NAME"),
			Params:   viper.GetString("DB_PARAMS"),
		},
		Migration: MigrationConfig{
			Dir: viper.GetString("MIGRATION_DIR"),
		},
		Matcher: MatcherConfig{
			AutoSettleThreshold: viper.GetFloat64("MATCHER_AUTO_SETTLE_THRESHOLD"),
			SuggestThreshold:    viper.GetFloat64("MATCHER_SUGGEST_THRESHOLD"),
			MaxCombinationSize:  viper.GetInt("MATCHER_MAX_COMBINATION_SIZE"),
			MaxCombinations:     viper.GetInt("MATCHER_MAX_COMBINATIONS"),
			GroupedMode:         viper.GetString("MATCHER_GROUPED_MODE"),
			BatchLimit:          viper.GetInt("MATCHER_BATCH_LIMIT"),
			Workers:             viper.GetInt("MATCHER_WORKERS"),
			RetryAttempts:       viper.GetInt("MATCHER_RETRY_ATTEMPTS"),
		},
		Advisor: AdvisorConfig{
			Enabled: viper.GetBool("ADVISOR_ENABLED"),
			URL:     viper.GetString("ADVISOR_URL"),
			APIKey:  viper.GetString("ADVISOR_API_KEY"),
			Model:   viper.GetString("ADVISOR_MODEL"),
		},
	}

	if config.Matcher.GroupedMode != GroupedModeCombine && config.Matcher.GroupedMode != GroupedModeDefer {
		return nil, fmt.Errorf("invalid MATCHER_GROUPED_MODE %q", config.Matcher.GroupedMode)
	}

	return config, nil
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// GetMigrationDBURL returns the database URL for migrations
func (c *Config) GetMigrationDBURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}
