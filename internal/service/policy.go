package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/logging"
)

// ParseFunc turns a successful execution into a record.
type ParseFunc func(res core.ExecutionResult) core.Record

// Call describes one policy-governed command invocation.
type Call struct {
	// Name is the diagnostic tool name, used for logs and metrics.
	Name   string
	Target core.Target
	Spec   core.CommandSpec
	// Key identifies equivalent calls for caching and coalescing. Build it
	// with CacheKey so it is scoped to the target.
	Key   string
	TTL   time.Duration
	Parse ParseFunc
}

// Policy applies caching, single-flight coalescing and retry around an
// executor. Records it returns may be shared between callers and must be
// treated as read-only.
type Policy struct {
	exec    core.Executor
	retry   *RetryPolicy
	cache   *Cache
	metrics *MetricsCollector
	logger  *logging.Logger
	group   singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the execution context shared by every caller coalesced on one
// key. It outlives any single caller and is cancelled only when all of them
// have stopped waiting.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(r *RetryPolicy) PolicyOption {
	return func(p *Policy) { p.retry = r }
}

// WithCache shares a cache between policies.
func WithCache(c *Cache) PolicyOption {
	return func(p *Policy) { p.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) PolicyOption {
	return func(p *Policy) { p.logger = l }
}

// NewPolicy wraps exec.
func NewPolicy(exec core.Executor, opts ...PolicyOption) *Policy {
	p := &Policy{exec: exec, flights: make(map[string]*flight)}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry == nil {
		p.retry = DefaultRetryPolicy()
	}
	if p.cache == nil {
		p.cache = NewCache(nil)
	}
	if p.metrics == nil {
		p.metrics = NewMetricsCollector()
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	return p
}

// Cache returns the policy's cache.
func (p *Policy) Cache() *Cache { return p.cache }

// Metrics returns the policy's metrics collector.
func (p *Policy) Metrics() *MetricsCollector { return p.metrics }

// Run executes call and always returns a record.
func (p *Policy) Run(ctx context.Context, call Call) core.Record {
	kind := call.Spec.Kind()
	if call.TTL > 0 {
		if rec, ok := p.cache.Get(call.Key); ok {
			p.metrics.RecordCall(call.Name, true, false, false)
			return rec
		}
	}

	if err := ctx.Err(); err != nil {
		p.metrics.RecordCall(call.Name, false, false, true)
		return core.NewFailure(kind, core.ErrTimeout(call.Name+": cancelled before execution").Terminal().WithCause(err))
	}

	fl := p.join(ctx, call.Key)
	ch := p.group.DoChan(call.Key, func() (interface{}, error) {
		return p.execute(fl.ctx, call), nil
	})

	select {
	case r := <-ch:
		p.leave(call.Key, fl, false)
		rec := r.Val.(core.Record)
		p.metrics.RecordCall(call.Name, false, r.Shared, !rec.Succeeded())
		return rec
	case <-ctx.Done():
		p.leave(call.Key, fl, true)
		p.metrics.RecordCall(call.Name, false, true, true)
		return core.NewFailure(kind, core.ErrTimeout(
			fmt.Sprintf("%s: gave up waiting for in-flight call", call.Name)).Terminal().WithCause(ctx.Err()))
	}
}

// join registers a caller on the flight for key, creating it if needed. The
// flight keeps the caller's values but not its deadline; the command spec's
// timeout bounds each attempt instead.
func (p *Policy) join(ctx context.Context, key string) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()
	fl, ok := p.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		p.flights[key] = fl
	}
	fl.waiters++
	return fl
}

// leave drops a caller from fl. The last caller out cancels the flight; if it
// left early the in-flight call is also forgotten, so later callers start a
// fresh execution instead of joining a cancelled one.
func (p *Policy) leave(key string, fl *flight, abandoned bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if p.flights[key] == fl {
		delete(p.flights, key)
	}
	if abandoned {
		p.group.Forget(key)
	}
}

// execute is the single-flight leader body.
func (p *Policy) execute(ctx context.Context, call Call) core.Record {
	kind := call.Spec.Kind()
	log := p.logger.WithTool(call.Name).WithTarget(call.Target.Identity())

	// A previous leader may have filled the cache while we queued.
	if call.TTL > 0 {
		if rec, ok := p.cache.Get(call.Key); ok {
			return rec
		}
	}

	var last core.ExecutionResult
	err := p.retry.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		last = p.exec.Execute(ctx, call.Target, call.Spec)
		p.metrics.RecordAttempt(call.Name, last.Duration)
		if last.Succeeded {
			return nil
		}
		if last.Err == nil {
			return core.ErrTool(core.CodeToolFailed, fmt.Sprintf("%s failed", call.Spec.Tool()))
		}
		return last.Err
	}, func(attempt int, err error, delay time.Duration) {
		p.metrics.RecordRetry(call.Name)
		log.Debug("retrying command", "attempt", attempt, "error", err, "delay", delay)
	})

	if err != nil {
		var rec *core.Failure
		if IsRetryExhausted(err) {
			de := core.AsDomainError(err)
			rec = &core.Failure{
				Status:   core.Status{Success: false, Error: err.Error()},
				Kind:     kind,
				Category: de.Category,
				Code:     core.CodeRetryExhausted,
			}
		} else if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			rec = core.NewFailure(kind, core.ErrTimeout(call.Name+": cancelled, no caller waiting").Terminal().WithCause(err))
		} else {
			rec = core.NewFailure(kind, err)
		}
		log.Info("command failed", "error", rec.Error, "code", rec.Code)
		return rec
	}

	rec := p.parse(call, last)
	p.cache.Put(call.Key, rec, call.TTL)
	return rec
}

func (p *Policy) parse(call Call, res core.ExecutionResult) (rec core.Record) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parser panic", "tool", call.Name, "panic", r)
			rec = core.NewFailure(call.Spec.Kind(), core.ErrInternal(fmt.Sprintf("parsing %s output: %v", call.Name, r)))
		}
	}()
	if call.Parse == nil {
		return core.NewFailure(call.Spec.Kind(), core.ErrInternal("no parser for "+call.Name))
	}
	rec = call.Parse(res)
	if rec == nil {
		rec = core.NewFailure(call.Spec.Kind(), core.ErrInternal("parser returned no record for "+call.Name))
	}
	return rec
}
