// Package config loads and validates all application configuration via
// Koanf v2, layering built-in defaults, an optional YAML file, and
// environment variables (highest priority wins).
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the orchestrator.
type Config struct {
	HomeAutomation HomeAutomationConfig `koanf:"home_automation"`
	RemotePlatform RemotePlatformConfig `koanf:"remote_platform"`
	Database       DatabaseConfig       `koanf:"database"`
	Worker         WorkerConfig         `koanf:"worker"`
	Playback       PlaybackConfig       `koanf:"playback"`
	Quota          QuotaConfig          `koanf:"quota"`
	Search         SearchConfig         `koanf:"search"`
	Server         ServerConfig         `koanf:"server"`
	Logging        LoggingConfig        `koanf:"logging"`
	Security       SecurityConfig       `koanf:"security"`
}

// HomeAutomationConfig configures the state-polling client for the
// media-player entity.
type HomeAutomationConfig struct {
	BaseURL     string        `koanf:"base_url"`
	BearerToken string        `koanf:"bearer_token"`
	EntityID    string        `koanf:"entity_id"`
	AppName     string        `koanf:"app_name"` // required attributes.app_name to treat a session as relevant
	Timeout     time.Duration `koanf:"timeout"`
}

// RemotePlatformConfig configures OAuth and quota-cost parameters for the
// remote video platform.
type RemotePlatformConfig struct {
	OAuthClientID     string `koanf:"oauth_client_id"`
	OAuthClientSecret string `koanf:"oauth_client_secret"`
	OAuthRedirectURI  string `koanf:"oauth_redirect_uri"`
	TokenPath         string `koanf:"token_path"` // 0600 JSON token file
	DailyQuota        int    `koanf:"daily_quota"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// WorkerConfig configures the single-worker processing loop.
type WorkerConfig struct {
	PIDFilePath     string        `koanf:"pid_file_path"`
	ItemFloor       time.Duration `koanf:"item_floor"`        // 60s floor between items
	IdlePoll        time.Duration `koanf:"idle_poll"`         // sleep when queue is empty
	QuotaResetSlack time.Duration `koanf:"quota_reset_slack"` // buffer added after reset boundary
}

// PlaybackConfig configures the playback poller.
type PlaybackConfig struct {
	Interval           time.Duration `koanf:"interval"`
	PlayCooldown       time.Duration `koanf:"play_cooldown"`
	PersistCooldown    bool          `koanf:"persist_cooldown"`
	CooldownStorePath  string        `koanf:"cooldown_store_path"`
	MaxBackoff         time.Duration `koanf:"max_backoff"`
	MaxConsecutiveFail int           `koanf:"max_consecutive_failures"`
}

// QuotaConfig configures quota-reset calendar behavior.
type QuotaConfig struct {
	ResetZone string `koanf:"reset_zone"` // IANA zone name, e.g. "America/Los_Angeles"
	StatePath string `koanf:"state_path"` // quota state JSON blob
}

// SearchConfig configures the search pipeline and caches.
type SearchConfig struct {
	Phase1Size         int           `koanf:"phase1_size"`
	Phase2Size         int           `koanf:"phase2_size"`
	NotFoundTTL        time.Duration `koanf:"not_found_ttl"`
	SearchCacheTTL     time.Duration `koanf:"search_cache_ttl"`
	DurationToleranceS int           `koanf:"duration_tolerance_seconds"`
}

// ServerConfig configures the thin admin-surface HTTP listener.
type ServerConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	MetricsPort    int           `koanf:"metrics_port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig configures at-rest credential encryption.
type SecurityConfig struct {
	CredentialSecret string `koanf:"credential_secret"` // HKDF seed for token encryption; empty disables encryption
}

// Addr returns the "host:port" listen address for the admin surface.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks required fields and internally-consistent values.
func (c *Config) Validate() error {
	if c.HomeAutomation.BaseURL == "" {
		return fmt.Errorf("home_automation.base_url is required")
	}
	if c.HomeAutomation.EntityID == "" {
		return fmt.Errorf("home_automation.entity_id is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Worker.PIDFilePath == "" {
		return fmt.Errorf("worker.pid_file_path is required")
	}
	if c.Worker.ItemFloor <= 0 {
		return fmt.Errorf("worker.item_floor must be positive")
	}
	if c.Search.Phase1Size <= 0 || c.Search.Phase2Size <= 0 {
		return fmt.Errorf("search.phase1_size and search.phase2_size must be positive")
	}
	if c.Search.DurationToleranceS < 0 {
		return fmt.Errorf("search.duration_tolerance_seconds must be >= 0")
	}
	if c.Quota.ResetZone == "" {
		return fmt.Errorf("quota.reset_zone is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}
