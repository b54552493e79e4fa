package cmd

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/adapters/executor"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/config"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/diagnostic"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/logging"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/service"
)

// app is the wired diagnostic stack for one CLI run.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	target core.Target
	router *executor.Router
	facade *diagnostic.Facade
}

// newApp validates cfg and wires executors, policy and facade from it.
func newApp(cfg *config.Config) (*app, error) {
	registry := jdk.NewRegistry()
	if err := config.NewValidator().WithKnownTools(registry.List()).Validate(cfg); err != nil {
		return nil, err
	}
	if err := applyToolOverrides(registry, cfg); err != nil {
		return nil, err
	}

	target, err := cfg.Target.Resolve()
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	local := executor.NewLocal(logger,
		executor.WithPreflight(diagnostics.NewResourcePreflight(cfg.Execution.MinFreeMemoryMB)))
	var sshOpts []executor.SSHOption
	if d := cfg.Target.DialTimeoutDuration(); d > 0 {
		sshOpts = append(sshOpts, executor.WithDialTimeout(d))
	}
	router := executor.NewRouter(local, executor.NewSSH(logger, sshOpts...))

	base, maxDelay := cfg.Execution.Retry.Durations()
	retryOpts := []service.RetryPolicyOption{service.WithMaxAttempts(cfg.Execution.Retry.MaxAttempts)}
	if n := cfg.Execution.Retry.TimeoutAttempts; n > 0 {
		retryOpts = append(retryOpts, service.WithCategoryLimit(core.ErrCatTimeout, n))
	}
	if base > 0 {
		retryOpts = append(retryOpts, service.WithBaseDelay(base))
	}
	if maxDelay > 0 {
		retryOpts = append(retryOpts, service.WithMaxDelay(maxDelay))
	}
	policy := service.NewPolicy(router,
		service.WithRetryPolicy(service.NewRetryPolicy(retryOpts...)),
		service.WithLogger(logger))

	facadeOpts := []diagnostic.Option{
		diagnostic.WithRegistry(registry),
		diagnostic.WithPolicy(policy),
		diagnostic.WithMaxConcurrency(cfg.Execution.MaxConcurrency),
		diagnostic.WithLogger(logger),
	}
	if len(cfg.Process.SelfSignatures) > 0 {
		facadeOpts = append(facadeOpts, diagnostic.WithSelfSignatures(cfg.Process.SelfSignatures...))
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		target: target,
		router: router,
		facade: diagnostic.New(router, facadeOpts...),
	}, nil
}

// applyToolOverrides pushes per-tool settings into the registry. A disabled
// cache forces every tool's TTL to zero; explicit tool TTLs still apply on
// top when the cache is enabled.
func applyToolOverrides(registry *jdk.Registry, cfg *config.Config) error {
	zero := time.Duration(0)
	for _, name := range registry.List() {
		var o jdk.Override
		if tc, ok := cfg.Tools[name]; ok {
			timeout, ttl, err := tc.Parsed()
			if err != nil {
				return fmt.Errorf("tools.%s: %w", name, err)
			}
			o.Timeout = timeout
			o.TTL = ttl
		}
		if !cfg.Cache.Enabled {
			o.TTL = &zero
		}
		if o.TTL != nil || o.Timeout > 0 {
			registry.Configure(name, o)
		}
	}
	return nil
}

func (a *app) Close() error {
	return a.facade.Close()
}
