package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ytthumbs/config.yaml",
	"/etc/ytthumbs/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		HomeAutomation: HomeAutomationConfig{
			BaseURL:  "",
			EntityID: "",
			AppName:  "",
			Timeout:  10 * time.Second,
		},
		RemotePlatform: RemotePlatformConfig{
			OAuthClientID:     "",
			OAuthClientSecret: "",
			OAuthRedirectURI:  "",
			TokenPath:         "/data/ytthumbs-token.json",
			DailyQuota:        10000,
		},
		Database: DatabaseConfig{
			Path:      "/data/ytthumbs.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Worker: WorkerConfig{
			PIDFilePath:     "/run/ytthumbs/worker.pid",
			ItemFloor:       60 * time.Second,
			IdlePoll:        10 * time.Second,
			QuotaResetSlack: time.Minute,
		},
		Playback: PlaybackConfig{
			Interval:           10 * time.Second,
			PlayCooldown:       5 * time.Minute,
			PersistCooldown:    false,
			CooldownStorePath:  "/data/ytthumbs-cooldowns",
			MaxBackoff:         5 * time.Minute,
			MaxConsecutiveFail: 10,
		},
		Quota: QuotaConfig{
			ResetZone: "America/Los_Angeles",
			StatePath: "/data/ytthumbs-quota.json",
		},
		Search: SearchConfig{
			Phase1Size:         5,
			Phase2Size:         5,
			NotFoundTTL:        7 * 24 * time.Hour,
			SearchCacheTTL:     30 * 24 * time.Hour,
			DurationToleranceS: 1,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MetricsPort:    9090,
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			CredentialSecret: "",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HOME_ASSISTANT_BASE_URL -> home_automation.base_url
//   - YOUTUBE_OAUTH_CLIENT_ID -> remote_platform.oauth_client_id
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Home automation mappings
		"home_assistant_base_url":     "home_automation.base_url",
		"home_assistant_bearer_token": "home_automation.bearer_token",
		"home_assistant_entity_id":    "home_automation.entity_id",
		"home_assistant_app_name":     "home_automation.app_name",
		"home_assistant_timeout":      "home_automation.timeout",

		// Remote video platform mappings
		"youtube_oauth_client_id":     "remote_platform.oauth_client_id",
		"youtube_oauth_client_secret": "remote_platform.oauth_client_secret",
		"youtube_oauth_redirect_uri":  "remote_platform.oauth_redirect_uri",
		"youtube_token_path":          "remote_platform.token_path",
		"youtube_daily_quota":         "remote_platform.daily_quota",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Worker mappings
		"worker_pid_file_path":      "worker.pid_file_path",
		"worker_item_floor":         "worker.item_floor",
		"worker_idle_poll":          "worker.idle_poll",
		"worker_quota_reset_slack":  "worker.quota_reset_slack",

		// Playback poller mappings
		"playback_interval":            "playback.interval",
		"playback_play_cooldown":       "playback.play_cooldown",
		"playback_persist_cooldown":    "playback.persist_cooldown",
		"playback_cooldown_store_path": "playback.cooldown_store_path",
		"playback_max_backoff":         "playback.max_backoff",
		"playback_max_consecutive_failures": "playback.max_consecutive_failures",

		// Quota mappings
		"quota_reset_zone": "quota.reset_zone",
		"quota_state_path": "quota.state_path",

		// Search mappings
		"search_phase1_size":          "search.phase1_size",
		"search_phase2_size":          "search.phase2_size",
		"search_not_found_ttl":        "search.not_found_ttl",
		"search_cache_ttl":            "search.search_cache_ttl",
		"search_duration_tolerance_s": "search.duration_tolerance_seconds",

		// Server mappings
		"http_host":        "server.host",
		"http_port":        "server.port",
		"metrics_port":     "server.metrics_port",
		"request_timeout":  "server.request_timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Security mappings
		"credential_secret": "security.credential_secret",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them.
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage, such as
// testing with mock configuration sources.
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
