package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/andywolf/milestonesync/internal/routing"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// Backends accepted by tracker.backend.
const (
	BackendGH  = "gh"
	BackendAPI = "api"
)

// Config represents the full msync configuration
type Config struct {
	Tracker     TrackerConfig       `mapstructure:"tracker"`
	GitHub      GitHubConfig        `mapstructure:"github"`
	Run         RunConfig           `mapstructure:"run"`
	Routes      []routing.RouteSpec `mapstructure:"routes"`
	TargetRepos []string            `mapstructure:"target_repos"`
	Logging     LoggingConfig       `mapstructure:"logging"`
}

// TrackerConfig selects and tunes the remote transport
type TrackerConfig struct {
	Backend     string        `mapstructure:"backend"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	APIURL      string        `mapstructure:"api_url"`
	GraphQLURL  string        `mapstructure:"graphql_url"`
}

// GitHubConfig contains token and GitHub App settings. Either a token from
// the environment or complete App credentials are used.
type GitHubConfig struct {
	TokenEnv         string `mapstructure:"token_env"`
	AppID            int64  `mapstructure:"app_id"`
	InstallationID   int64  `mapstructure:"installation_id"`
	PrivateKeyPath   string `mapstructure:"private_key_path"`
	PrivateKeySecret string `mapstructure:"private_key_secret"`
	SecretProject    string `mapstructure:"secret_project"`
}

// RunConfig holds per-run defaults that flags override
type RunConfig struct {
	Workers  int    `mapstructure:"workers"`
	DueDate  string `mapstructure:"due_date"`
	MaxDepth int    `mapstructure:"max_depth"`
	State    string `mapstructure:"state"`
}

// LoggingConfig controls where diagnostics are mirrored
type LoggingConfig struct {
	Format  string             `mapstructure:"format"` // text or json
	Journal string             `mapstructure:"journal"`
	Cloud   CloudLoggingConfig `mapstructure:"cloud"`
}

// CloudLoggingConfig enables the Cloud Logging sink
type CloudLoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Project string `mapstructure:"project"`
	LogID   string `mapstructure:"log_id"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Tracker.Backend == "" {
		cfg.Tracker.Backend = BackendGH
	}
	if cfg.Tracker.CallTimeout == 0 {
		cfg.Tracker.CallTimeout = 30 * time.Second
	}
	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = 10
	}
	if cfg.Run.DueDate == "" {
		cfg.Run.DueDate = "2025-12-31"
	}
	if cfg.Run.MaxDepth == 0 {
		cfg.Run.MaxDepth = 32
	}
	if cfg.Run.State == "" {
		cfg.Run.State = tracker.StateAll
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Cloud.LogID == "" {
		cfg.Logging.Cloud.LogID = "msync"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Tracker.Backend {
	case BackendGH, BackendAPI:
	default:
		return fmt.Errorf("invalid backend: %s (must be gh or api)", c.Tracker.Backend)
	}

	if c.Tracker.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative")
	}

	if c.Run.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Run.Workers)
	}

	if c.Run.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got %d", c.Run.MaxDepth)
	}

	if _, err := tracker.DueDate(c.Run.DueDate); err != nil {
		return err
	}

	if !tracker.ValidState(c.Run.State) {
		return fmt.Errorf("invalid state: %s (must be open, closed, or all)", c.Run.State)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Logging.Cloud.Enabled && c.Logging.Cloud.Project == "" {
		return fmt.Errorf("logging.cloud.project is required when cloud logging is enabled")
	}

	if c.UsesApp() {
		if c.GitHub.AppID <= 0 {
			return fmt.Errorf("GitHub App ID is required")
		}
		if c.GitHub.InstallationID <= 0 {
			return fmt.Errorf("GitHub App Installation ID is required")
		}
		if c.GitHub.PrivateKeyPath == "" && c.GitHub.PrivateKeySecret == "" {
			return fmt.Errorf("GitHub App private key path or secret is required")
		}
		if c.GitHub.PrivateKeyPath != "" && c.GitHub.PrivateKeySecret != "" {
			return fmt.Errorf("set only one of private_key_path and private_key_secret")
		}
	}

	if _, err := routing.FromSpecs(c.Routes); err != nil {
		return fmt.Errorf("invalid routes: %w", err)
	}
	if _, err := routing.ParseTargets(c.TargetRepos); err != nil {
		return fmt.Errorf("invalid target_repos: %w", err)
	}

	return nil
}

// ValidateForAPI performs the extra checks the api backend needs. A token
// must come from App credentials or the environment since gh's own login is
// not available to it.
func (c *Config) ValidateForAPI(haveEnvToken bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.UsesApp() && !haveEnvToken {
		name := "GH_TOKEN or GITHUB_TOKEN"
		if c.GitHub.TokenEnv != "" {
			name = c.GitHub.TokenEnv
		}
		return fmt.Errorf("api backend requires a token: set %s or configure a GitHub App", name)
	}
	if (c.Tracker.APIURL == "") != (c.Tracker.GraphQLURL == "") {
		return fmt.Errorf("api_url and graphql_url must be set together")
	}
	return nil
}

// UsesApp reports whether any GitHub App setting is present.
func (c *Config) UsesApp() bool {
	g := c.GitHub
	return g.AppID != 0 || g.InstallationID != 0 || g.PrivateKeyPath != "" || g.PrivateKeySecret != ""
}
