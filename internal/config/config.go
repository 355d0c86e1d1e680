// Package config loads orch's configuration from .orch.yaml and the
// ORCH_ environment namespace via viper, mirroring the teacher's
// viper/mapstructure configuration layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// RegistryConfig controls where the durable agent registry lives.
type RegistryConfig struct {
	Path string `mapstructure:"path"` // default: ~/.orch/agent-registry.json
}

// TrackerConfig controls how the tracker gateway invokes the external
// issue-tracker CLI.
type TrackerConfig struct {
	BinPath        string        `mapstructure:"bin_path"`        // default: "bd"
	DBPath         string        `mapstructure:"db_path"`         // optional alternative database path
	DefaultTimeout time.Duration `mapstructure:"default_timeout"` // default: 30s
}

// SessionConfig holds multiplexer session naming settings. They are only
// loaded and defaulted here: internal/tmuxsession names worker sessions
// with a fixed "workers-" prefix and marks workers with a fixed
// ORCH_CONTEXT variable, and does not read these fields.
type SessionConfig struct {
	WorkerPrefix  string `mapstructure:"worker_prefix"`  // default: "workers-"
	OrchSession   string `mapstructure:"orch_session"`   // the orchestrator's own pinned session name
	ContextEnvVar string `mapstructure:"context_envvar"` // default: "ORCH_CONTEXT"
}

// DaemonConfig controls the polling daemon's cadence and concurrency.
type DaemonConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`         // default: 30s
	MaxConcurrentAgents int           `mapstructure:"max_concurrent_agents"` // default: 3
	RequiredLabel       string        `mapstructure:"required_label"`        // optional label filter for ready issues
}

// FocusConfig controls whether the daemon consults ~/.orch/focus.json.
type FocusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // default: ~/.orch/focus.json
}

// VerifyConfig controls the verifier's git-cleanliness gate.
type VerifyConfig struct {
	ExclusionList []string `mapstructure:"exclusion_list"` // e.g. tracker DB dir, synced out-of-band
	SkipPushCheck bool     `mapstructure:"skip_push_check"`
}

// ReapConfig controls the reap cascade's per-step waits.
type ReapConfig struct {
	GraceInterval time.Duration `mapstructure:"grace_interval"` // interrupt/exit wait, default 10s
	KillTimeout   time.Duration `mapstructure:"kill_timeout"`   // default 5s; the reaper does not read this value
}

// GitHubConfig controls the reaper's optional pre-close combined-status
// check on a completed agent's PR. Left zero-valued, the check is skipped.
type GitHubConfig struct {
	AppID             int64  `mapstructure:"app_id"`
	InstallationID    int64  `mapstructure:"installation_id"`
	PrivateKeyPath    string `mapstructure:"private_key_path"`
	Owner             string `mapstructure:"owner"`
	Repo              string `mapstructure:"repo"`
	RequireGreenCheck bool   `mapstructure:"require_green_check"` // fail the ClosingTracker step instead of just warning
}

// Config is the full orch configuration.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Session  SessionConfig  `mapstructure:"session"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Focus    FocusConfig    `mapstructure:"focus"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	Reap     ReapConfig     `mapstructure:"reap"`
	GitHub   GitHubConfig   `mapstructure:"github"`
}

// Load reads configuration from whatever viper has already bound (config
// file + ORCH_ environment + PFlags) and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func homeOrchDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".orch")
}

func applyDefaults(cfg *Config) {
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(homeOrchDir(), "agent-registry.json")
	}
	if cfg.Tracker.BinPath == "" {
		cfg.Tracker.BinPath = "bd"
	}
	if cfg.Tracker.DefaultTimeout == 0 {
		cfg.Tracker.DefaultTimeout = 30 * time.Second
	}
	if cfg.Session.WorkerPrefix == "" {
		cfg.Session.WorkerPrefix = "workers-"
	}
	if cfg.Session.OrchSession == "" {
		cfg.Session.OrchSession = "orch"
	}
	if cfg.Session.ContextEnvVar == "" {
		cfg.Session.ContextEnvVar = "ORCH_CONTEXT"
	}
	if cfg.Daemon.PollInterval == 0 {
		cfg.Daemon.PollInterval = 30 * time.Second
	}
	if cfg.Daemon.MaxConcurrentAgents == 0 {
		cfg.Daemon.MaxConcurrentAgents = 3
	}
	if cfg.Focus.Path == "" {
		cfg.Focus.Path = filepath.Join(homeOrchDir(), "focus.json")
	}
	if len(cfg.Verify.ExclusionList) == 0 {
		cfg.Verify.ExclusionList = []string{".beads"}
	}
	if cfg.Reap.GraceInterval == 0 {
		cfg.Reap.GraceInterval = 10 * time.Second
	}
	if cfg.Reap.KillTimeout == 0 {
		cfg.Reap.KillTimeout = 5 * time.Second
	}
}

// Validate checks invariants that must hold before any command using the
// registry, tracker, or multiplexer runs.
func (c *Config) Validate() error {
	if c.Daemon.MaxConcurrentAgents <= 0 {
		return fmt.Errorf("daemon.max_concurrent_agents must be positive")
	}
	if c.Tracker.DefaultTimeout <= 0 {
		return fmt.Errorf("tracker.default_timeout must be positive")
	}
	return nil
}
