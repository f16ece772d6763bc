package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Meta       MetaConfig       `mapstructure:"meta"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Publishing PublishingConfig `mapstructure:"publishing"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// MetaConfig holds Instagram Graph API settings
type MetaConfig struct {
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	RedirectURI string `mapstructure:"redirect_uri"`
	APIVersion  string `mapstructure:"api_version"`
	BaseURL     string `mapstructure:"base_url"`
}

// AgentsConfig holds runner harness settings shared by every agent
type AgentsConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"` // linear: backoff * (retry+1)
}

// BaseBackoff returns the harness base delay as a duration
func (a AgentsConfig) BaseBackoff() time.Duration {
	return time.Duration(a.RetryBackoffMs) * time.Millisecond
}

// PublishingConfig holds publish protocol settings
type PublishingConfig struct {
	RateLimitPerHour  int `mapstructure:"rate_limit_per_hour"`
	MaxRetries        int `mapstructure:"max_retries"`
	RetryBackoffMs    int `mapstructure:"retry_backoff_ms"` // exponential: backoff * 2^retry
	ProcessingDelayMs int `mapstructure:"processing_delay_ms"`
}

// ProcessingDelay returns the container processing wait as a duration
func (p PublishingConfig) ProcessingDelay() time.Duration {
	return time.Duration(p.ProcessingDelayMs) * time.Millisecond
}

// SchedulerConfig holds the cron cadence for each agent type
type SchedulerConfig struct {
	MonitoringCron string `mapstructure:"monitoring_cron"`
	DiscoveryCron  string `mapstructure:"discovery_cron"`
	ScoringCron    string `mapstructure:"scoring_cron"`
	ComplianceCron string `mapstructure:"compliance_cron"`
	SchedulingCron string `mapstructure:"scheduling_cron"`
	PublishCron    string `mapstructure:"publish_cron"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".reels-agent"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("REELS")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.driver", "REELS_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "REELS_DATABASE_DSN")
	v.BindEnv("meta.app_id", "REELS_META_APP_ID")
	v.BindEnv("meta.app_secret", "REELS_META_APP_SECRET")
	v.BindEnv("meta.redirect_uri", "REELS_META_REDIRECT_URI")
	v.BindEnv("agents.max_retries", "REELS_AGENTS_MAX_RETRIES")
	v.BindEnv("agents.retry_backoff_ms", "REELS_AGENTS_RETRY_BACKOFF_MS")
	v.BindEnv("publishing.rate_limit_per_hour", "REELS_PUBLISHING_RATE_LIMIT_PER_HOUR")
	v.BindEnv("publishing.max_retries", "REELS_PUBLISHING_MAX_RETRIES")
	v.BindEnv("publishing.retry_backoff_ms", "REELS_PUBLISHING_RETRY_BACKOFF_MS")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/reels.db")

	// Meta defaults
	v.SetDefault("meta.redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("meta.api_version", "v19.0")
	v.SetDefault("meta.base_url", "https://graph.instagram.com")

	// Agent harness defaults
	v.SetDefault("agents.max_retries", 3)
	v.SetDefault("agents.retry_backoff_ms", 5000)

	// Publishing defaults
	v.SetDefault("publishing.rate_limit_per_hour", 200)
	v.SetDefault("publishing.max_retries", 3)
	v.SetDefault("publishing.retry_backoff_ms", 5000)
	v.SetDefault("publishing.processing_delay_ms", 2000)

	// Scheduler defaults - offsets staggered so discovery lands before
	// scoring, scoring before compliance, compliance before scheduling
	v.SetDefault("scheduler.monitoring_cron", "*/30 * * * *")
	v.SetDefault("scheduler.discovery_cron", "0 * * * *")
	v.SetDefault("scheduler.scoring_cron", "15 * * * *")
	v.SetDefault("scheduler.compliance_cron", "30 * * * *")
	v.SetDefault("scheduler.scheduling_cron", "45 * * * *")
	v.SetDefault("scheduler.publish_cron", "*/5 * * * *")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Meta.AppID == "" {
		return fmt.Errorf("meta.app_id is required")
	}
	if c.Meta.AppSecret == "" {
		return fmt.Errorf("meta.app_secret is required")
	}
	return nil
}
