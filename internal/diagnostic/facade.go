// Package diagnostic is the entry point for running JVM diagnostics: it
// resolves a tool by name, validates its arguments and runs it through the
// retry/cache policy on a bounded pool of workers.
package diagnostic

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/semaphore"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/logging"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/service"
)

// DefaultMaxConcurrency bounds concurrent tool executions.
const DefaultMaxConcurrency = 4

// DefaultSelfSignatures identify the diagnostic tooling's own JVMs, which
// process selection skips. Matched case-insensitively as substrings.
var DefaultSelfSignatures = []string{"arthas", "sun.tools.jps", "jdk.jcmd"}

// maxSuggestions caps the "did you mean" list for unknown tools.
const maxSuggestions = 3

// Facade runs diagnostic tools against targets. Every method that runs a
// tool returns a record; failures are records too.
type Facade struct {
	exec     core.Executor
	registry *jdk.Registry
	policy   *service.Policy
	sem      *semaphore.Weighted
	logger   *logging.Logger
	selfSigs []string
}

// Option configures a Facade.
type Option func(*Facade)

// WithRegistry replaces the built-in registry.
func WithRegistry(r *jdk.Registry) Option {
	return func(f *Facade) { f.registry = r }
}

// WithPolicy replaces the default policy.
func WithPolicy(p *service.Policy) Option {
	return func(f *Facade) { f.policy = p }
}

// WithMaxConcurrency bounds concurrent executions; n < 1 uses the default.
func WithMaxConcurrency(n int) Option {
	return func(f *Facade) {
		if n < 1 {
			n = DefaultMaxConcurrency
		}
		f.sem = semaphore.NewWeighted(int64(n))
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Facade) { f.logger = l }
}

// WithSelfSignatures replaces DefaultSelfSignatures.
func WithSelfSignatures(sigs ...string) Option {
	return func(f *Facade) { f.selfSigs = sigs }
}

// New creates a facade over exec.
func New(exec core.Executor, opts ...Option) *Facade {
	f := &Facade{exec: exec, selfSigs: DefaultSelfSignatures}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.NewNop()
	}
	if f.registry == nil {
		f.registry = jdk.NewRegistry()
	}
	if f.policy == nil {
		f.policy = service.NewPolicy(exec, service.WithLogger(f.logger))
	}
	if f.sem == nil {
		f.sem = semaphore.NewWeighted(DefaultMaxConcurrency)
	}
	return f
}

// Invoke runs tool against target. Arguments are validated before anything
// executes; an unknown tool name yields a not_found failure with the closest
// registered names.
func (f *Facade) Invoke(ctx context.Context, target core.Target, tool string, args jdk.Args) core.Record {
	id := uuid.NewString()
	log := f.logger.WithInvocation(id).WithTool(tool).WithTarget(target.Identity())
	start := time.Now()

	cmd, inv, err := f.registry.Prepare(tool, args)
	if err != nil {
		if cmd == nil {
			return core.NewFailure(core.KindNone, f.unknownTool(tool))
		}
		log.Debug("invocation rejected", "error", err)
		return core.NewFailure(cmd.Kind(), err)
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return core.NewFailure(cmd.Kind(), core.ErrTimeout(
			tool+": no worker available before deadline").Terminal().WithCause(err))
	}
	defer f.sem.Release(1)

	log.Debug("invoking", "command", inv.Spec.String())
	rec := f.run(ctx, target, cmd.Name(), inv)
	if inv.Enrich != nil && rec.Succeeded() {
		rec = f.enrich(ctx, target, cmd, inv, rec)
	}
	if cmd.Kind() == core.KindHeapDump && rec.Succeeded() {
		// A dump pauses the JVM (and collects it with live=true); cached heap
		// views of this target no longer describe it.
		if n := f.policy.Cache().InvalidateTarget(target); n > 0 {
			log.Debug("invalidated cached records", "count", n)
		}
	}

	if rec.Succeeded() {
		log.Info("invocation completed", "duration", time.Since(start))
	} else {
		log.Info("invocation failed", "duration", time.Since(start), "error", rec.ErrorText())
	}
	return rec
}

// run sends a prepared invocation through the policy.
func (f *Facade) run(ctx context.Context, target core.Target, name string, inv *jdk.Invocation) core.Record {
	return f.policy.Run(ctx, service.Call{
		Name:   name,
		Target: target,
		Spec:   inv.Spec,
		Key:    service.CacheKey(target, name, inv.Spec.Fingerprint(), inv.Key),
		TTL:    inv.TTL,
		Parse:  service.ParseFunc(inv.Parse),
	})
}

// runNested serves follow-up calls made by composite commands. It already
// holds the caller's worker slot, so it does not take another one.
func (f *Facade) runNested(target core.Target) jdk.RunFunc {
	return func(ctx context.Context, tool string, args jdk.Args) core.Record {
		cmd, inv, err := f.registry.Prepare(tool, args)
		if err != nil {
			if cmd == nil {
				return core.NewFailure(core.KindNone, err)
			}
			return core.NewFailure(cmd.Kind(), err)
		}
		return f.run(ctx, target, cmd.Name(), inv)
	}
}

func (f *Facade) enrich(ctx context.Context, target core.Target, cmd jdk.Command, inv *jdk.Invocation, rec core.Record) (out core.Record) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("enrichment panic", "tool", cmd.Name(), "panic", r)
			out = core.NewFailure(cmd.Kind(), core.ErrInternal(fmt.Sprintf("enriching %s: %v", cmd.Name(), r)))
		}
	}()
	out = inv.Enrich(ctx, rec, f.runNested(target))
	if out == nil {
		out = rec
	}
	return out
}

func (f *Facade) unknownTool(tool string) *core.DomainError {
	de := core.ErrNotFound("tool", tool)
	var names []string
	for _, m := range fuzzy.Find(tool, f.registry.List()) {
		names = append(names, m.Str)
		if len(names) == maxSuggestions {
			break
		}
	}
	if len(names) > 0 {
		de.Message += " (did you mean " + strings.Join(names, ", ") + "?)"
		de.WithDetail("suggestions", names)
	}
	return de
}

// Tools returns the registered tool names, sorted.
func (f *Facade) Tools() []string {
	return f.registry.List()
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Kind        core.OutputKind `json:"kind" yaml:"kind"`
	Implemented bool            `json:"implemented" yaml:"implemented"`
}

// Describe lists every registered tool with its description.
func (f *Facade) Describe() []ToolInfo {
	names := f.registry.List()
	out := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		cmd, err := f.registry.Get(name)
		if err != nil {
			continue
		}
		_, placeholder := cmd.(*jdk.Placeholder)
		out = append(out, ToolInfo{
			Name:        name,
			Description: cmd.Description(),
			Kind:        cmd.Kind(),
			Implemented: !placeholder,
		})
	}
	return out
}

// Metrics returns per-tool counters.
func (f *Facade) Metrics() []service.ToolMetrics {
	return f.policy.Metrics().Snapshot()
}

// Close releases executor resources such as pooled SSH connections.
func (f *Facade) Close() error {
	if c, ok := f.exec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
