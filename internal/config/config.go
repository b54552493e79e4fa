package config

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig             `mapstructure:"log" json:"log" yaml:"log"`
	Target    TargetConfig          `mapstructure:"target" json:"target" yaml:"target"`
	Execution ExecutionConfig       `mapstructure:"execution" json:"execution" yaml:"execution"`
	Cache     CacheConfig           `mapstructure:"cache" json:"cache" yaml:"cache"`
	Tools     map[string]ToolConfig `mapstructure:"tools" json:"tools,omitempty" yaml:"tools,omitempty"`
	Process   ProcessConfig         `mapstructure:"process" json:"process" yaml:"process"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// TargetConfig describes where diagnostics run. An empty host means the
// local machine.
type TargetConfig struct {
	Host          string `mapstructure:"host" json:"host" yaml:"host"`
	Port          int    `mapstructure:"port" json:"port" yaml:"port"`
	User          string `mapstructure:"user" json:"user" yaml:"user"`
	Password      string `mapstructure:"password" json:"password,omitempty" yaml:"password,omitempty"`
	KeyFile       string `mapstructure:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	KeyPassphrase string `mapstructure:"key_passphrase" json:"key_passphrase,omitempty" yaml:"key_passphrase,omitempty"`
	KnownHosts    string `mapstructure:"known_hosts" json:"known_hosts,omitempty" yaml:"known_hosts,omitempty"`
	DialTimeout   string `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
}

// ExecutionConfig configures the worker pool, retries and preflight checks.
type ExecutionConfig struct {
	MaxConcurrency  int         `mapstructure:"max_concurrency" json:"max_concurrency" yaml:"max_concurrency"`
	MinFreeMemoryMB int         `mapstructure:"min_free_memory_mb" json:"min_free_memory_mb" yaml:"min_free_memory_mb"`
	Retry           RetryConfig `mapstructure:"retry" json:"retry" yaml:"retry"`
}

// RetryConfig configures backoff for transient failures.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	// TimeoutAttempts caps attempts for calls that keep timing out.
	TimeoutAttempts int    `mapstructure:"timeout_attempts" json:"timeout_attempts" yaml:"timeout_attempts"`
	BaseDelay       string `mapstructure:"base_delay" json:"base_delay" yaml:"base_delay"`
	MaxDelay        string `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay"`
}

// CacheConfig toggles result caching.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
}

// ToolConfig overrides defaults for one tool. Empty strings keep the
// built-in values; a cache_ttl of "0s" disables caching for the tool.
type ToolConfig struct {
	Timeout  string `mapstructure:"timeout" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CacheTTL string `mapstructure:"cache_ttl" json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}

// ProcessConfig tunes automatic JVM selection.
type ProcessConfig struct {
	SelfSignatures []string `mapstructure:"self_signatures" json:"self_signatures" yaml:"self_signatures"`
}

// IsRemote reports whether a remote host is configured.
func (t TargetConfig) IsRemote() bool {
	return t.Host != ""
}

// Resolve builds the diagnostic target. No host yields the local target.
func (t TargetConfig) Resolve() (core.Target, error) {
	if !t.IsRemote() {
		return core.LocalTarget(), nil
	}
	return core.NewRemoteTarget(core.RemoteOptions{
		Host:           t.Host,
		Port:           t.Port,
		User:           t.User,
		Password:       t.Password,
		KeyFile:        t.KeyFile,
		Passphrase:     t.KeyPassphrase,
		KnownHostsFile: t.KnownHosts,
	})
}

// DialTimeoutDuration returns the parsed dial timeout, or zero when unset.
func (t TargetConfig) DialTimeoutDuration() time.Duration {
	d, _ := parseDuration(t.DialTimeout)
	return d
}

// Durations returns the parsed retry delays.
func (r RetryConfig) Durations() (base, maxDelay time.Duration) {
	base, _ = parseDuration(r.BaseDelay)
	maxDelay, _ = parseDuration(r.MaxDelay)
	return base, maxDelay
}

// Parsed returns the tool override values. ttl is nil when cache_ttl is unset.
func (t ToolConfig) Parsed() (timeout time.Duration, ttl *time.Duration, err error) {
	if timeout, err = parseDuration(t.Timeout); err != nil {
		return 0, nil, fmt.Errorf("timeout: %w", err)
	}
	if t.CacheTTL != "" {
		d, perr := parseDuration(t.CacheTTL)
		if perr != nil {
			return 0, nil, fmt.Errorf("cache_ttl: %w", perr)
		}
		ttl = &d
	}
	return timeout, ttl, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
