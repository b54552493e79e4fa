package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix is prepended to every environment override.
const DefaultEnvPrefix = "JVMDIAG"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	envFiles   []string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader on an existing viper instance, so
// cobra flags bound to it take precedence over files and environment.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: DefaultEnvPrefix,
		envFiles:  []string{".env"},
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvFiles sets the dotenv files loaded before the environment is read.
// Missing files are ignored; existing variables are never overwritten.
func (l *Loader) WithEnvFiles(paths ...string) *Loader {
	l.envFiles = paths
	return l
}

// WithLookupEnv replaces os.LookupEnv for legacy key resolution.
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration from defaults, config file, dotenv files and
// environment, in increasing order of precedence.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".jvmdiag")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if dir, err := userConfigDir(); err == nil {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	applyLegacyEnv(l.v, l.envPrefix, l.lookupEnv)

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	normalizeTarget(&cfg.Target)

	return &cfg, nil
}

func (l *Loader) loadEnvFiles() error {
	var existing []string
	for _, p := range l.envFiles {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Target: empty host means local. Keys are registered so AutomaticEnv
	// can see JVMDIAG_TARGET_* during Unmarshal.
	l.v.SetDefault("target.host", "")
	l.v.SetDefault("target.port", 22)
	l.v.SetDefault("target.user", "")
	l.v.SetDefault("target.password", "")
	l.v.SetDefault("target.key_file", "")
	l.v.SetDefault("target.key_passphrase", "")
	l.v.SetDefault("target.known_hosts", "")
	l.v.SetDefault("target.dial_timeout", "10s")

	l.v.SetDefault("execution.max_concurrency", 4)
	l.v.SetDefault("execution.min_free_memory_mb", 0)
	l.v.SetDefault("execution.retry.max_attempts", 3)
	l.v.SetDefault("execution.retry.timeout_attempts", 2)
	l.v.SetDefault("execution.retry.base_delay", "200ms")
	l.v.SetDefault("execution.retry.max_delay", "2s")

	l.v.SetDefault("cache.enabled", true)

	l.v.SetDefault("process.self_signatures", []string{"arthas", "sun.tools.jps", "jdk.jcmd"})
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "jvmdiag"), nil
}
