// Package config loads relay configuration from a YAML file and the
// environment via viper. Every tunable referenced by the core
// components (timeouts, capacities, debounce delay, confirmation
// vocabulary) lives here so the stores can be constructed once at
// startup and injected.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete relay configuration.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Session   SessionConfig   `mapstructure:"session"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Confirm   ConfirmConfig   `mapstructure:"confirm"`
	Transport TransportConfig `mapstructure:"transport"`
	Access    AccessConfig    `mapstructure:"access"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Janitor   JanitorConfig   `mapstructure:"janitor"`
}

// AgentConfig controls how the external coding-agent CLI is invoked.
type AgentConfig struct {
	// Backend selects the CLI flavor: "claude" or "codex" (default: "claude")
	Backend string `mapstructure:"backend"`
	// Command is the binary name or path (default: backend name)
	Command string `mapstructure:"command"`
	// DefaultModel is used when a session has no model of its own
	DefaultModel string `mapstructure:"default_model"`
	// WorkspaceDir is the directory the agent is given access to.
	// Supports ~ for home directory expansion.
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// SystemPrompt is an optional prompt appended to every invocation
	SystemPrompt string `mapstructure:"system_prompt"`
	// InvokeTimeout is the hard per-invocation deadline (default: 5m)
	InvokeTimeout time.Duration `mapstructure:"invoke_timeout"`
	// HealthTimeout bounds the version probe (default: 10s)
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	// MaxInputBytes caps the sanitized payload; overflow is truncated,
	// not rejected (default: 100000)
	MaxInputBytes int `mapstructure:"max_input_bytes"`
}

// SessionConfig controls the per-user session store.
type SessionConfig struct {
	// MaxPerUser is the session capacity per user (default: 10)
	MaxPerUser int `mapstructure:"max_per_user"`
	// TTL is the idle age after which a session expires (default: 24h)
	TTL time.Duration `mapstructure:"ttl"`
}

// BatchConfig controls message accumulation and dispatch timing.
type BatchConfig struct {
	// DebounceDelay is the quiet period before an auto-send (default: 2s)
	DebounceDelay time.Duration `mapstructure:"debounce_delay"`
	// MaxMessages caps messages in an explicit batch (default: 50)
	MaxMessages int `mapstructure:"max_messages"`
	// MaxFiles caps files in an explicit batch (default: 10)
	MaxFiles int `mapstructure:"max_files"`
	// StaleAfter is the age at which an abandoned batch is discarded (default: 30m)
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// ConfirmConfig controls the risky-command confirmation gate.
type ConfirmConfig struct {
	// Timeout is how long a pending confirmation stays valid (default: 5m)
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxPending caps pending confirmations across all users (default: 100)
	MaxPending int `mapstructure:"max_pending"`
	// StrictPhrase is the exact phrase required for danger-tier commands
	// (default: "confirm execution")
	StrictPhrase string `mapstructure:"strict_phrase"`
}

// TransportConfig controls delivery toward the chat layer.
type TransportConfig struct {
	// ChunkSize is the maximum delivered message length (default: 4000)
	ChunkSize int `mapstructure:"chunk_size"`
	// KeepaliveInterval is the cadence of "still working" signals (default: 5s)
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	// StreamBatchSize flushes throttled verbose lines after this many (default: 8)
	StreamBatchSize int `mapstructure:"stream_batch_size"`
	// StreamFlushInterval flushes throttled verbose lines after this long (default: 3s)
	StreamFlushInterval time.Duration `mapstructure:"stream_flush_interval"`
	// AllowedFileGlobs restricts inbound file names; empty permits all
	AllowedFileGlobs []string `mapstructure:"allowed_file_globs"`
}

// AccessConfig controls who may use the relay.
type AccessConfig struct {
	// AllowedUsers is the allow-list of user ids; empty permits all
	AllowedUsers []int64 `mapstructure:"allowed_users"`
}

// RiskConfig controls the risky-command classifier.
type RiskConfig struct {
	// RulesFile is an optional YAML rules file; built-in rules are used
	// when empty. The file is watched and reloaded on change.
	RulesFile string `mapstructure:"rules_file"`
}

// LoggingConfig controls debug logging behavior.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where relay.log is written; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// JanitorConfig controls the periodic sweeps.
type JanitorConfig struct {
	// SweepInterval is the cadence of the staleness sweeps (default: 1m)
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Load reads configuration from the given file (or the default search
// paths when path is empty), applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agentrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "agentrelay"))
		}
	}

	v.SetEnvPrefix("AGENTRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply. An explicit
		// path that cannot be read is not.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !asConfigNotFound(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Agent.WorkspaceDir = expandHome(cfg.Agent.WorkspaceDir)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)
	cfg.Risk.RulesFile = expandHome(cfg.Risk.RulesFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func asConfigNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.backend", "claude")
	v.SetDefault("agent.command", "")
	v.SetDefault("agent.default_model", "")
	v.SetDefault("agent.workspace_dir", ".")
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.invoke_timeout", 5*time.Minute)
	v.SetDefault("agent.health_timeout", 10*time.Second)
	v.SetDefault("agent.max_input_bytes", 100000)

	v.SetDefault("session.max_per_user", 10)
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("batch.debounce_delay", 2*time.Second)
	v.SetDefault("batch.max_messages", 50)
	v.SetDefault("batch.max_files", 10)
	v.SetDefault("batch.stale_after", 30*time.Minute)

	v.SetDefault("confirm.timeout", 5*time.Minute)
	v.SetDefault("confirm.max_pending", 100)
	v.SetDefault("confirm.strict_phrase", "confirm execution")

	v.SetDefault("transport.chunk_size", 4000)
	v.SetDefault("transport.keepalive_interval", 5*time.Second)
	v.SetDefault("transport.stream_batch_size", 8)
	v.SetDefault("transport.stream_flush_interval", 3*time.Second)
	v.SetDefault("transport.allowed_file_globs", []string{})

	v.SetDefault("access.allowed_users", []int64{})

	v.SetDefault("risk.rules_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "")

	v.SetDefault("janitor.sweep_interval", time.Minute)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Agent.Backend != "claude" && c.Agent.Backend != "codex" {
		return fmt.Errorf("agent.backend must be \"claude\" or \"codex\", got %q", c.Agent.Backend)
	}
	if c.Agent.InvokeTimeout <= 0 {
		return fmt.Errorf("agent.invoke_timeout must be positive")
	}
	if c.Agent.MaxInputBytes <= 0 {
		return fmt.Errorf("agent.max_input_bytes must be positive")
	}
	if c.Session.MaxPerUser < 1 {
		return fmt.Errorf("session.max_per_user must be at least 1")
	}
	if c.Batch.DebounceDelay <= 0 {
		return fmt.Errorf("batch.debounce_delay must be positive")
	}
	if c.Batch.MaxMessages < 1 || c.Batch.MaxFiles < 1 {
		return fmt.Errorf("batch caps must be at least 1")
	}
	if c.Confirm.Timeout <= 0 {
		return fmt.Errorf("confirm.timeout must be positive")
	}
	if c.Confirm.StrictPhrase == "" {
		return fmt.Errorf("confirm.strict_phrase must not be empty")
	}
	if c.Transport.ChunkSize < 100 {
		return fmt.Errorf("transport.chunk_size must be at least 100")
	}
	return nil
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
