package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors     ValidationErrors
	knownTools map[string]bool
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// WithKnownTools restricts tool overrides to the given names.
func (v *Validator) WithKnownTools(names []string) *Validator {
	v.knownTools = make(map[string]bool, len(names))
	for _, n := range names {
		v.knownTools[n] = true
	}
	return v
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateTarget(&cfg.Target)
	v.validateExecution(&cfg.Execution)
	v.validateTools(cfg.Tools)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateTarget(cfg *TargetConfig) {
	v.validateDuration("target.dial_timeout", cfg.DialTimeout, false)
	if !cfg.IsRemote() {
		return
	}
	if cfg.User == "" {
		v.addError("target.user", cfg.User, "required for a remote host (use user@host or target.user)")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("target.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.KeyFile != "" {
		if _, err := os.Stat(cfg.KeyFile); err != nil {
			v.addError("target.key_file", cfg.KeyFile, "cannot read key file")
		}
	}
	if cfg.KnownHosts != "" {
		if _, err := os.Stat(cfg.KnownHosts); err != nil {
			v.addError("target.known_hosts", cfg.KnownHosts, "cannot read known_hosts file")
		}
	}
}

func (v *Validator) validateExecution(cfg *ExecutionConfig) {
	if cfg.MaxConcurrency < 1 {
		v.addError("execution.max_concurrency", cfg.MaxConcurrency, "must be at least 1")
	}
	if cfg.MinFreeMemoryMB < 0 {
		v.addError("execution.min_free_memory_mb", cfg.MinFreeMemoryMB, "must be non-negative")
	}
	if cfg.Retry.MaxAttempts < 1 {
		v.addError("execution.retry.max_attempts", cfg.Retry.MaxAttempts, "must be at least 1")
	}
	if cfg.Retry.TimeoutAttempts < 1 {
		v.addError("execution.retry.timeout_attempts", cfg.Retry.TimeoutAttempts, "must be at least 1")
	}
	v.validateDuration("execution.retry.base_delay", cfg.Retry.BaseDelay, false)
	v.validateDuration("execution.retry.max_delay", cfg.Retry.MaxDelay, false)
}

func (v *Validator) validateTools(tools map[string]ToolConfig) {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prefix := "tools." + name
		if v.knownTools != nil && !v.knownTools[name] {
			v.addError(prefix, name, "unknown tool")
			continue
		}
		tc := tools[name]
		v.validateDuration(prefix+".timeout", tc.Timeout, false)
		v.validateDuration(prefix+".cache_ttl", tc.CacheTTL, true)
	}
}

func (v *Validator) validateDuration(field, value string, allowZero bool) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration")
		return
	}
	if d < 0 || (d == 0 && !allowZero) {
		v.addError(field, value, "must be positive")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
