package core

import "context"

// =============================================================================
// Executor Port
// =============================================================================

// Executor runs one physical attempt of a command on a target. It never
// returns a Go error: spawn, transport and timeout failures are reported in
// the result with Succeeded=false and Err set.
type Executor interface {
	Execute(ctx context.Context, target Target, spec CommandSpec) ExecutionResult
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, target Target, spec CommandSpec) ExecutionResult

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, target Target, spec CommandSpec) ExecutionResult {
	return f(ctx, target, spec)
}
