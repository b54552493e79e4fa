package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate keeps the developer's real environment and home config out of
// the loader.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"JVMDIAG_TARGET_HOST", "JVMDIAG_TARGET_PORT", "JVMDIAG_TARGET_USER",
		"JVMDIAG_TARGET_PASSWORD", "JVMDIAG_LOG_LEVEL",
		"ARTHAS_SSH_HOST", "ARTHAS_SSH_PORT", "ARTHAS_SSH_PASSWORD",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestLoader_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().WithEnvFiles().WithLookupEnv(noEnv).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.Target.IsRemote() {
		t.Errorf("default target should be local, got host %q", cfg.Target.Host)
	}
	if cfg.Execution.MaxConcurrency != 4 {
		t.Errorf("Execution.MaxConcurrency = %d, want 4", cfg.Execution.MaxConcurrency)
	}
	if cfg.Execution.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Execution.Retry.MaxAttempts)
	}
	if cfg.Execution.Retry.TimeoutAttempts != 2 {
		t.Errorf("Retry.TimeoutAttempts = %d, want 2", cfg.Execution.Retry.TimeoutAttempts)
	}
	base, maxDelay := cfg.Execution.Retry.Durations()
	if base != 200*time.Millisecond || maxDelay != 2*time.Second {
		t.Errorf("retry delays = %v/%v, want 200ms/2s", base, maxDelay)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled = false, want true")
	}
	if len(cfg.Process.SelfSignatures) != 3 {
		t.Errorf("SelfSignatures = %v, want 3 entries", cfg.Process.SelfSignatures)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	target, err := cfg.Target.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !target.IsLocal() {
		t.Errorf("expected local target, got %s", target)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "jvmdiag.yaml")
	content := `
log:
  level: debug
target:
  host: deploy@app01
  port: 2222
execution:
  max_concurrency: 8
tools:
  get_memory_histogram:
    timeout: 2m
    cache_ttl: 0s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(path).WithEnvFiles().WithLookupEnv(noEnv)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Target.Host != "app01" || cfg.Target.User != "deploy" || cfg.Target.Port != 2222 {
		t.Errorf("Target = %+v, want deploy@app01:2222", cfg.Target)
	}
	if cfg.Execution.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.Execution.MaxConcurrency)
	}

	tool, ok := cfg.Tools["get_memory_histogram"]
	if !ok {
		t.Fatalf("tool override missing: %+v", cfg.Tools)
	}
	timeout, ttl, err := tool.Parsed()
	if err != nil {
		t.Fatalf("Parsed() error = %v", err)
	}
	if timeout != 2*time.Minute {
		t.Errorf("timeout = %v, want 2m", timeout)
	}
	if ttl == nil || *ttl != 0 {
		t.Errorf("ttl = %v, want explicit zero", ttl)
	}

	target, err := cfg.Target.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if target.Identity() != "deploy@app01:2222" {
		t.Errorf("Identity() = %q", target.Identity())
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "jvmdiag.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JVMDIAG_LOG_LEVEL", "error")
	t.Setenv("JVMDIAG_TARGET_HOST", "10.0.0.5")
	t.Setenv("JVMDIAG_TARGET_USER", "ops")

	cfg, err := NewLoader().WithConfigFile(path).WithEnvFiles().WithLookupEnv(noEnv).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
	if cfg.Target.Host != "10.0.0.5" || cfg.Target.User != "ops" {
		t.Errorf("Target = %+v", cfg.Target)
	}
}

func TestLoader_EnvFile(t *testing.T) {
	isolate(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("JVMDIAG_TARGET_HOST=root@jvm-host\nJVMDIAG_TARGET_PASSWORD=s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().
		WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")).
		WithEnvFiles(envFile).
		WithLookupEnv(noEnv).
		Load()
	if err == nil {
		// An explicit config file that does not exist is an error.
		t.Fatalf("expected error for missing explicit config file, got %+v", cfg)
	}

	cfg, err = NewLoader().WithEnvFiles(envFile).WithLookupEnv(noEnv).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target.Host != "jvm-host" || cfg.Target.User != "root" {
		t.Errorf("Target = %+v, want root@jvm-host", cfg.Target)
	}
	if cfg.Target.Password != "s3cret" {
		t.Errorf("Password not loaded from env file")
	}
}

func TestLoader_LegacyKeys(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantHost string
		wantUser string
		wantPort int
		wantPass string
	}{
		{
			name: "legacy only",
			env: map[string]string{
				"ARTHAS_SSH_HOST":     "admin@legacy-box",
				"ARTHAS_SSH_PORT":     "2200",
				"ARTHAS_SSH_PASSWORD": "pw",
			},
			wantHost: "legacy-box",
			wantUser: "admin",
			wantPort: 2200,
			wantPass: "pw",
		},
		{
			name: "new keys win",
			env: map[string]string{
				"ARTHAS_SSH_HOST":     "admin@legacy-box",
				"ARTHAS_SSH_PASSWORD": "old",
				"JVMDIAG_TARGET_HOST": "ops@new-box",
			},
			wantHost: "new-box",
			wantUser: "ops",
			wantPort: 22,
			wantPass: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := NewLoader().WithEnvFiles().Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Target.Host != tt.wantHost || cfg.Target.User != tt.wantUser {
				t.Errorf("Target = %+v, want %s@%s", cfg.Target, tt.wantUser, tt.wantHost)
			}
			if cfg.Target.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Target.Port, tt.wantPort)
			}
			if cfg.Target.Password != tt.wantPass {
				t.Errorf("Password = %q, want %q", cfg.Target.Password, tt.wantPass)
			}
		})
	}
}
