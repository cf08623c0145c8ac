// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New(ctx) builds a Config with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and environment.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	Log        LogConfig       `koanf:"log"`
	Addr       string          `koanf:"addr"`
	Aquarium   AquariumConfig  `koanf:"aquarium"`
	Ayon       AyonConfig      `koanf:"ayon"`
	JobStore   StoreConfig     `koanf:"jobstore"`
	Repository StoreConfig     `koanf:"repository"`
	Leecher    LeecherConfig   `koanf:"leecher"`
	Processor  ProcessorConfig `koanf:"processor"`
	Sync       SyncConfig      `koanf:"sync"`
	Metrics    MetricsConfig   `koanf:"metrics"`
}

// LogConfig controls pkg/logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File enables a rotating log file next to stdout.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// AquariumConfig holds the Source System endpoint and bot credentials.
type AquariumConfig struct {
	URL       string        `koanf:"url"`
	Domain    string        `koanf:"domain"`
	BotKey    string        `koanf:"bot_key"`
	BotSecret string        `koanf:"bot_secret"`
	Timeout   time.Duration `koanf:"timeout"`
}

// AyonConfig holds the Target System endpoint used by the remote services.
type AyonConfig struct {
	URL          string        `koanf:"url"`
	APIKey       string        `koanf:"api_key"`
	AddonName    string        `koanf:"addon_name"`
	AddonVersion string        `koanf:"addon_version"`
	Timeout      time.Duration `koanf:"timeout"`
}

// StoreConfig selects a storage driver.
type StoreConfig struct {
	// Driver is memory, sqlite or postgres (repository: memory or postgres).
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// LeecherConfig drives the event filter.
type LeecherConfig struct {
	AllowedTopics  []string      `koanf:"allowed_topics"`
	IgnoredTopics  []string      `koanf:"ignored_topics"`
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`
	DedupeSize     int           `koanf:"dedupe_size"`
	Sender         string        `koanf:"sender"`
}

// ProcessorConfig drives the job scheduler.
type ProcessorConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	// RecoverStuck moves in_progress jobs back to restarted at startup.
	RecoverStuck bool   `koanf:"recover_stuck"`
	Sender       string `koanf:"sender"`
}

// SyncConfig holds sync defaults.
type SyncConfig struct {
	// DedupWindow truncates the trigger timestamp before hashing. Zero hashes
	// the raw timestamp.
	DedupWindow     time.Duration   `koanf:"dedup_window"`
	FolderLikeTypes []string        `koanf:"folder_like_types"`
	DefaultTasks    []DefaultTask   `koanf:"default_tasks"`
	DefaultStatuses []DefaultStatus `koanf:"default_statuses"`
}

// MetricsConfig controls pkg/metrics.
type MetricsConfig struct {
	// Enabled false keeps recording but serves nothing on /healthz.
	Enabled   bool      `koanf:"enabled"`
	Namespace string    `koanf:"namespace"`
	Subsystem string    `koanf:"subsystem"`
	Buckets   []float64 `koanf:"buckets"`
	// RefreshInterval paces the system and job gauges.
	RefreshInterval time.Duration     `koanf:"refresh_interval"`
	Labels          map[string]string `koanf:"labels"`
}

// DefaultTask overrides short name and icon of a task type by name.
type DefaultTask struct {
	Name      string `koanf:"name" yaml:"name"`
	ShortName string `koanf:"short_name" yaml:"short_name"`
	Icon      string `koanf:"icon" yaml:"icon"`
}

// DefaultStatus overrides state and icon of a status by short name.
type DefaultStatus struct {
	ShortName string `koanf:"short_name" yaml:"short_name"`
	State     string `koanf:"state" yaml:"state"`
	Icon      string `koanf:"icon" yaml:"icon"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Addr: ":9080",
		Aquarium: AquariumConfig{
			Timeout: 30 * time.Second,
		},
		Ayon: AyonConfig{
			AddonName:    "aquarium",
			AddonVersion: "1.0.0",
			Timeout:      60 * time.Second,
		},
		JobStore:   StoreConfig{Driver: "sqlite", DSN: "aqsync-jobs.db"},
		Repository: StoreConfig{Driver: "memory"},
		Leecher: LeecherConfig{
			AllowedTopics: []string{
				"item.created.Asset",
				"item.updated.Asset",
				"item.created.Shot",
				"item.updated.Shot",
				"item.created.Sequence",
				"item.updated.Sequence",
				"item.created.Episode",
				"item.updated.Episode",
				"item.created.Task",
				"item.updated.Task",
				"user.assigned",
				"user.unassigned",
			},
			ReconnectDelay: 10 * time.Second,
			DedupeSize:     50_000,
			Sender:         "aquarium-leecher",
		},
		Processor: ProcessorConfig{
			PollInterval: 500 * time.Millisecond,
			Sender:       "aquarium-processor",
		},
		Sync: SyncConfig{
			FolderLikeTypes: []string{"Folder"},
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			Namespace:       "aqsync",
			Subsystem:       "sync",
			RefreshInterval: 10 * time.Second,
		},
	}
}

// Validate checks cross-field constraints. Failures are *FieldError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr", "must not be empty")
	}
	switch c.JobStore.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return unknownDriver("jobstore.driver", c.JobStore.Driver)
	}
	if c.JobStore.Driver != "memory" && c.JobStore.DSN == "" {
		return invalid("jobstore.dsn", "must not be empty")
	}
	switch c.Repository.Driver {
	case "memory":
	case "postgres":
		if c.Repository.DSN == "" {
			return invalid("repository.dsn", "must not be empty")
		}
	default:
		return unknownDriver("repository.driver", c.Repository.Driver)
	}
	if c.Processor.PollInterval <= 0 {
		return invalid("processor.poll_interval", "must be positive")
	}
	if c.Sync.DedupWindow < 0 {
		return invalid("sync.dedup_window", "must not be negative")
	}
	if c.Metrics.RefreshInterval <= 0 {
		return invalid("metrics.refresh_interval", "must be positive")
	}
	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return invalid("metrics.buckets", "must be strictly increasing")
		}
	}
	return nil
}
