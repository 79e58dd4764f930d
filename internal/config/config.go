// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"oliveyoung-crawler/internal/crawl"
)

// Fetcher modes selecting which page retriever the crawl command builds.
const (
	FetcherModeHeadless = "headless"
	FetcherModeProbe    = "probe"
)

// Checkpoint providers selecting where run progress is persisted.
const (
	CheckpointProviderFile     = "file"
	CheckpointProviderPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Source     SourceConfig     `mapstructure:"source"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// CrawlerConfig governs pacing and orchestration.
type CrawlerConfig struct {
	MaxConcurrent       int     `mapstructure:"max_concurrent"`
	DelayMinSeconds     float64 `mapstructure:"delay_min_seconds"`
	DelayMaxSeconds     float64 `mapstructure:"delay_max_seconds"`
	GlobalRPS           float64 `mapstructure:"global_rps"`
	BaseURL             string  `mapstructure:"base_url"`
	IDMarker            string  `mapstructure:"id_marker"`
	CheckpointEvery     int     `mapstructure:"checkpoint_every"`
	RetryFailedOnResume bool    `mapstructure:"retry_failed_on_resume"`
}

// FetcherConfig configures the page retrievers.
type FetcherConfig struct {
	Mode                    string   `mapstructure:"mode"`
	NavTimeoutSeconds       int      `mapstructure:"nav_timeout_seconds"`
	ChallengeTimeoutSeconds int      `mapstructure:"challenge_timeout_seconds"`
	UserAgents              []string `mapstructure:"user_agents"`
}

// SourceConfig locates the identifier spreadsheet.
type SourceConfig struct {
	ExcelPath string `mapstructure:"excel_path"`
	IDColumn  string `mapstructure:"id_column"`
	IDPrefix  string `mapstructure:"id_prefix"`
}

// CheckpointConfig selects and configures the progress store.
type CheckpointConfig struct {
	Provider    string `mapstructure:"provider"`
	Path        string `mapstructure:"path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// OutputConfig sets the aggregated result document path.
type OutputConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_concurrent", 3)
	v.SetDefault("crawler.delay_min_seconds", 2)
	v.SetDefault("crawler.delay_max_seconds", 4)
	v.SetDefault("crawler.global_rps", 0)
	v.SetDefault("crawler.base_url", crawl.DefaultBaseURL)
	v.SetDefault("crawler.id_marker", crawl.DefaultIDMarker)
	v.SetDefault("crawler.checkpoint_every", 1)
	v.SetDefault("crawler.retry_failed_on_resume", false)
	v.SetDefault("fetcher.mode", FetcherModeHeadless)
	v.SetDefault("fetcher.nav_timeout_seconds", 15)
	v.SetDefault("fetcher.challenge_timeout_seconds", 20)
	v.SetDefault("fetcher.user_agents", []string{})
	v.SetDefault("source.excel_path", "data/Qoo10_ItemInfo.xlsx")
	v.SetDefault("source.id_column", "seller_unique_item_id")
	v.SetDefault("source.id_prefix", "oliveyoung_")
	v.SetDefault("checkpoint.provider", CheckpointProviderFile)
	v.SetDefault("checkpoint.path", "crawling_progress.json")
	v.SetDefault("output.file", "olive_young_products.json")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be > 0")
	}
	if c.Crawler.DelayMinSeconds < 0 {
		return fmt.Errorf("crawler.delay_min_seconds must be >= 0")
	}
	if c.Crawler.DelayMaxSeconds < c.Crawler.DelayMinSeconds {
		return fmt.Errorf("crawler.delay_max_seconds must be >= crawler.delay_min_seconds")
	}
	if c.Crawler.GlobalRPS < 0 {
		return fmt.Errorf("crawler.global_rps must be >= 0")
	}
	if c.Crawler.CheckpointEvery <= 0 {
		return fmt.Errorf("crawler.checkpoint_every must be > 0")
	}
	switch c.Fetcher.Mode {
	case FetcherModeHeadless, FetcherModeProbe:
	default:
		return fmt.Errorf("fetcher.mode must be %q or %q", FetcherModeHeadless, FetcherModeProbe)
	}
	if c.Fetcher.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.nav_timeout_seconds must be > 0")
	}
	if c.Fetcher.ChallengeTimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.challenge_timeout_seconds must be > 0")
	}
	switch c.Checkpoint.Provider {
	case CheckpointProviderFile:
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path is required for the file provider")
		}
	case CheckpointProviderPostgres:
		if c.Checkpoint.PostgresDSN == "" {
			return fmt.Errorf("checkpoint.postgres_dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("checkpoint.provider must be %q or %q", CheckpointProviderFile, CheckpointProviderPostgres)
	}
	if c.Output.File == "" {
		return fmt.Errorf("output.file is required")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// NavTimeout converts the navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Fetcher.NavTimeoutSeconds) * time.Second
}

// ChallengeTimeout converts the anti-bot challenge budget into a duration.
func (c Config) ChallengeTimeout() time.Duration {
	return time.Duration(c.Fetcher.ChallengeTimeoutSeconds) * time.Second
}
