package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all engine configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
// Subtitle Configuration:
// - PRIMARY_LANGUAGE: primary subtitle language code (default: en)
// - SECONDARY_LANGUAGE: secondary subtitle language code (default: zh)
// - DUAL_SUBTITLES: enable dual-language display (default: true)
//
// Timing Configuration:
// - LOOKUP_TOLERANCE_MS: time-match tolerance for index lookups (default: 100)
// - RENDER_INTERVAL_MS: render loop sampling interval (default: 100)
// - PREFETCH_THRESHOLD_SEC: distance from interval end that triggers prefetch (default: 60)
// - PREFETCH_WINDOW_SEC: size of each requested fetch window (default: 300)
// - FETCH_WAIT_ACTIVE_SEC: wait for a document when the track is already active (default: 3)
// - FETCH_WAIT_SWITCH_SEC: wait for a document after an explicit track switch (default: 10)
//
// Index Configuration:
// - INDEX_BUCKET_SEC: time index bucket width in seconds (default: 10)
//
// Mode Detection Configuration:
// - PROBE_TIMEOUT_SEC: upper bound for each capability probe (default: 5)
// - PLAYER_READY_TIMEOUT_SEC: upper bound for the player readiness wait (default: 5)
// - PLAYER_READY_RETRY_DELAY_SEC: delay before the single readiness retry (default: 2)
// - UPGRADE_INTERVAL_SEC: background upgrade polling interval (default: 10)
// - UPGRADE_MAX_ATTEMPTS: background upgrade attempt bound (default: 30)
// - UPGRADE_MAX_ELAPSED_SEC: background upgrade elapsed-time bound (default: 600)
//
// Maintenance Configuration:
// - SWEEP_CRON_EXPR: stale cache sweep schedule (default: @every 1m)

type Config struct {
	// Subtitle Configuration
	Subtitles SubtitleConfig `json:"subtitles"`

	// Timing Configuration
	Timing TimingConfig `json:"timing"`

	// Index Configuration
	Index IndexConfig `json:"index"`

	// Mode Detection Configuration
	Mode ModeConfig `json:"mode"`

	// Maintenance Configuration
	Maintenance MaintenanceConfig `json:"maintenance"`
}

// SubtitleConfig holds the language preferences and the dual-mode toggle.
type SubtitleConfig struct {
	PrimaryLanguage   language.Tag `json:"primary_language"`
	SecondaryLanguage language.Tag `json:"secondary_language"`
	DualSubtitles     bool         `json:"dual_subtitles"`
}

// TimingConfig holds the lookup, render and fetch timing knobs.
type TimingConfig struct {
	LookupTolerance   time.Duration `json:"lookup_tolerance"`
	RenderInterval    time.Duration `json:"render_interval"`
	PrefetchThreshold time.Duration `json:"prefetch_threshold"`
	PrefetchWindow    time.Duration `json:"prefetch_window"`
	FetchWaitActive   time.Duration `json:"fetch_wait_active"`
	FetchWaitSwitch   time.Duration `json:"fetch_wait_switch"`
}

// IndexConfig holds the time index tuning.
type IndexConfig struct {
	BucketSeconds int `json:"bucket_seconds"`
}

// ModeConfig holds the capability probe and background upgrade bounds.
type ModeConfig struct {
	ProbeTimeout          time.Duration `json:"probe_timeout"`
	PlayerReadyTimeout    time.Duration `json:"player_ready_timeout"`
	PlayerReadyRetryDelay time.Duration `json:"player_ready_retry_delay"`
	UpgradeInterval       time.Duration `json:"upgrade_interval"`
	UpgradeMaxAttempts    int           `json:"upgrade_max_attempts"`
	UpgradeMaxElapsed     time.Duration `json:"upgrade_max_elapsed"`
}

// MaintenanceConfig holds the stale cache sweep schedule.
type MaintenanceConfig struct {
	SweepCronExpr string `json:"sweep_cron_expr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	primary, err := language.Parse(getEnvString("PRIMARY_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRIMARY_LANGUAGE: %w", err)
	}
	secondary, err := language.Parse(getEnvString("SECONDARY_LANGUAGE", "zh"))
	if err != nil {
		return nil, fmt.Errorf("invalid SECONDARY_LANGUAGE: %w", err)
	}

	config := &Config{
		Subtitles: SubtitleConfig{
			PrimaryLanguage:   primary,
			SecondaryLanguage: secondary,
			DualSubtitles:     getEnvBool("DUAL_SUBTITLES", true),
		},
		Timing: TimingConfig{
			LookupTolerance:   time.Duration(getEnvInt("LOOKUP_TOLERANCE_MS", 100)) * time.Millisecond,
			RenderInterval:    time.Duration(getEnvInt("RENDER_INTERVAL_MS", 100)) * time.Millisecond,
			PrefetchThreshold: time.Duration(getEnvInt("PREFETCH_THRESHOLD_SEC", 60)) * time.Second,
			PrefetchWindow:    time.Duration(getEnvInt("PREFETCH_WINDOW_SEC", 300)) * time.Second,
			FetchWaitActive:   time.Duration(getEnvInt("FETCH_WAIT_ACTIVE_SEC", 3)) * time.Second,
			FetchWaitSwitch:   time.Duration(getEnvInt("FETCH_WAIT_SWITCH_SEC", 10)) * time.Second,
		},
		Index: IndexConfig{
			BucketSeconds: getEnvInt("INDEX_BUCKET_SEC", 10),
		},
		Mode: ModeConfig{
			ProbeTimeout:          time.Duration(getEnvInt("PROBE_TIMEOUT_SEC", 5)) * time.Second,
			PlayerReadyTimeout:    time.Duration(getEnvInt("PLAYER_READY_TIMEOUT_SEC", 5)) * time.Second,
			PlayerReadyRetryDelay: time.Duration(getEnvInt("PLAYER_READY_RETRY_DELAY_SEC", 2)) * time.Second,
			UpgradeInterval:       time.Duration(getEnvInt("UPGRADE_INTERVAL_SEC", 10)) * time.Second,
			UpgradeMaxAttempts:    getEnvInt("UPGRADE_MAX_ATTEMPTS", 30),
			UpgradeMaxElapsed:     time.Duration(getEnvInt("UPGRADE_MAX_ELAPSED_SEC", 600)) * time.Second,
		},
		Maintenance: MaintenanceConfig{
			SweepCronExpr: getEnvString("SWEEP_CRON_EXPR", "@every 1m"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Subtitles.PrimaryLanguage == c.Subtitles.SecondaryLanguage && c.Subtitles.DualSubtitles {
		return fmt.Errorf("primary and secondary language must differ when dual subtitles are enabled")
	}
	if c.Index.BucketSeconds <= 0 {
		return fmt.Errorf("INDEX_BUCKET_SEC must be positive")
	}
	if c.Timing.RenderInterval <= 0 {
		return fmt.Errorf("RENDER_INTERVAL_MS must be positive")
	}
	if _, err := cron.ParseStandard(c.Maintenance.SweepCronExpr); err != nil {
		return fmt.Errorf("invalid SWEEP_CRON_EXPR: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
