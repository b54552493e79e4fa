package executor

import (
	"context"
	"io"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// Router dispatches to the local or SSH executor based on the target, so the
// layers above see one Execute contract regardless of transport.
type Router struct {
	local  core.Executor
	remote core.Executor
}

// NewRouter creates a router. remote may be nil when SSH is not configured.
func NewRouter(local, remote core.Executor) *Router {
	return &Router{local: local, remote: remote}
}

// Execute implements core.Executor.
func (r *Router) Execute(ctx context.Context, target core.Target, spec core.CommandSpec) core.ExecutionResult {
	if target.IsLocal() {
		return r.local.Execute(ctx, target, spec)
	}
	if r.remote == nil {
		return core.Failed(core.ErrValidation(core.CodeInvalidTarget,
			"remote execution is not configured"), 0)
	}
	return r.remote.Execute(ctx, target, spec)
}

// Close releases pooled remote connections.
func (r *Router) Close() error {
	if c, ok := r.remote.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
