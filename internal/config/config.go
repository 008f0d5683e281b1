// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Boundary BoundaryConfig `mapstructure:"boundary"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Lorient  LorientConfig  `mapstructure:"lorient"`
	The961   The961Config   `mapstructure:"the961"`
}

// LoggingConfig toggles zap development features and the run log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// HTTPConfig configures transport timeout and retry behavior.
type HTTPConfig struct {
	UserAgent          string `mapstructure:"user_agent"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	HeadTimeoutSeconds int    `mapstructure:"head_timeout_seconds"`
	MaxRetries         int    `mapstructure:"max_retries"`
	BackfillMaxRetries int    `mapstructure:"backfill_max_retries"`
	BackoffInitialMs   int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs       int    `mapstructure:"backoff_max_ms"`
	RetryStatuses      []int  `mapstructure:"retry_statuses"`
}

// HarvestConfig governs the fetch-parse-extract pipeline.
type HarvestConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	ProgressLogEvery int `mapstructure:"progress_log_every"`
}

// BoundaryConfig tunes the ID-space boundary search.
type BoundaryConfig struct {
	// LookAhead is how many IDs past a 404 are checked before the 404 is
	// believed to be the end of published content rather than a gap.
	LookAhead      int   `mapstructure:"look_ahead"`
	OffsetCap      int64 `mapstructure:"offset_cap"`
	FallbackOffset int64 `mapstructure:"fallback_offset"`
}

// StorageConfig sets where batches and checkpoints live.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// MetricsConfig controls the optional Prometheus endpoint. Empty address
// disables it; long backfill runs benefit from setting one.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LorientConfig describes the ID-addressed source.
type LorientConfig struct {
	ArticleBaseURL string `mapstructure:"article_base_url"`
	ArticlePattern string `mapstructure:"article_pattern"`
	CheckpointFile string `mapstructure:"checkpoint_file"`
	// MinArticleID is the lowest known valid article ID; a fresh checkpoint
	// starts its frontier here.
	MinArticleID int64 `mapstructure:"min_article_id"`
}

// The961Config describes the sitemap-addressed source.
type The961Config struct {
	SitemapIndexURL string `mapstructure:"sitemap_index_url"`
	ArticlePattern  string `mapstructure:"article_pattern"`
	CheckpointFile  string `mapstructure:"checkpoint_file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSHARVEST")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("http.user_agent", "newsharvest/0.1")
	v.SetDefault("http.timeout_seconds", 4)
	v.SetDefault("http.head_timeout_seconds", 3)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backfill_max_retries", 8)
	v.SetDefault("http.backoff_initial_ms", 300)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.retry_statuses", []int{500, 502, 504})
	v.SetDefault("harvest.concurrency", 16)
	v.SetDefault("harvest.progress_log_every", 50)
	v.SetDefault("boundary.look_ahead", 10)
	v.SetDefault("boundary.offset_cap", int64(1)<<21)
	v.SetDefault("boundary.fallback_offset", int64(1)<<20)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("lorient.article_base_url", "https://www.lorientlejour.com/article/")
	v.SetDefault("lorient.article_pattern", `lorientlejour\.com/article`)
	v.SetDefault("lorient.checkpoint_file", "toc.json")
	v.SetDefault("lorient.min_article_id", 218146)
	v.SetDefault("the961.sitemap_index_url", "https://www.the961.com/sitemap_index.xml")
	v.SetDefault("the961.article_pattern", `the961\.com`)
	v.SetDefault("the961.checkpoint_file", "the961_toc.json")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Boundary.LookAhead < 0 {
		return fmt.Errorf("boundary.look_ahead must be >= 0")
	}
	if c.Boundary.OffsetCap <= 1 {
		return fmt.Errorf("boundary.offset_cap must be > 1")
	}
	if c.Boundary.FallbackOffset <= 0 || c.Boundary.FallbackOffset >= c.Boundary.OffsetCap {
		return fmt.Errorf("boundary.fallback_offset must be positive and below boundary.offset_cap")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if c.Lorient.ArticleBaseURL == "" {
		return fmt.Errorf("lorient.article_base_url must be set")
	}
	if c.The961.SitemapIndexURL == "" {
		return fmt.Errorf("the961.sitemap_index_url must be set")
	}
	return nil
}
