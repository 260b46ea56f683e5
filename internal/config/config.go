// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default tuning values applied when the corresponding variables are unset.
const (
	DefaultMaxRetries     = 3
	DefaultBaseRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay  = 30 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheExpiry    = 24 * time.Hour
	DefaultSyncInterval   = 5 * time.Minute
)

// Config holds all configuration parameters for the application.
type Config struct {
	Jira  JiraConfig
	Cache CacheConfig
}

// JiraConfig holds the remote issue-tracker connection settings.
type JiraConfig struct {
	// BaseURL is the site root, e.g. "https://example.atlassian.net".
	BaseURL string

	// Email is the account email used for basic authentication.
	Email string

	// Token is the API token paired with Email.
	Token string

	// MaxRetries is the retry budget applied to every remote call.
	MaxRetries int

	// BaseRetryDelay seeds the exponential backoff schedule.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps a single backoff sleep.
	MaxRetryDelay time.Duration

	// RequestTimeout bounds each remote call attempt.
	RequestTimeout time.Duration
}

// CacheConfig holds the local cache store settings.
type CacheConfig struct {
	// Path is the SQLite database file location.
	Path string

	// Expiry is how long cached records stay visible to reads.
	Expiry time.Duration

	// SyncInterval is the period of the background synchronization task.
	SyncInterval time.Duration
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("jira.url", "JIRA_URL")
	v.BindEnv("jira.email", "JIRA_EMAIL")
	v.BindEnv("jira.token", "JIRA_TOKEN")
	v.BindEnv("jira.max_retries", "JIRA_MAX_RETRIES")
	v.BindEnv("jira.retry_delay", "JIRA_RETRY_DELAY")
	v.BindEnv("jira.max_retry_delay", "JIRA_MAX_RETRY_DELAY")
	v.BindEnv("jira.timeout", "JIRA_TIMEOUT")
	v.BindEnv("cache.path", "TETHER_CACHE_PATH")
	v.BindEnv("cache.expiry", "TETHER_CACHE_EXPIRY")
	v.BindEnv("cache.sync_interval", "TETHER_SYNC_INTERVAL")

	v.SetDefault("jira.max_retries", DefaultMaxRetries)
	v.SetDefault("jira.retry_delay", DefaultBaseRetryDelay)
	v.SetDefault("jira.max_retry_delay", DefaultMaxRetryDelay)
	v.SetDefault("jira.timeout", DefaultRequestTimeout)
	v.SetDefault("cache.path", defaultCachePath())
	v.SetDefault("cache.expiry", DefaultCacheExpiry)
	v.SetDefault("cache.sync_interval", DefaultSyncInterval)

	config := &Config{
		Jira: JiraConfig{
			BaseURL:        strings.TrimRight(v.GetString("jira.url"), "/"),
			Email:          v.GetString("jira.email"),
			Token:          v.GetString("jira.token"),
			MaxRetries:     v.GetInt("jira.max_retries"),
			BaseRetryDelay: v.GetDuration("jira.retry_delay"),
			MaxRetryDelay:  v.GetDuration("jira.max_retry_delay"),
			RequestTimeout: v.GetDuration("jira.timeout"),
		},
		Cache: CacheConfig{
			Path:         v.GetString("cache.path"),
			Expiry:       v.GetDuration("cache.expiry"),
			SyncInterval: v.GetDuration("cache.sync_interval"),
		},
	}

	if err := ValidateJiraConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateJiraConfig ensures the remote connection settings are present.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.BaseURL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Email == "" {
		missingVars = append(missingVars, "JIRA_EMAIL")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// defaultCachePath places the cache database under the user's home
// directory, falling back to the working directory when home is unknown.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tether.db"
	}
	return filepath.Join(home, ".tether", "cache.db")
}
