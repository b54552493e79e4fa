package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/logging"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// group has been killed.
const waitDelay = 2 * time.Second

// Preflight checks host resources before a local spawn.
type Preflight interface {
	Check() error
}

// Local runs tools as child processes of this host.
type Local struct {
	logger    *logging.Logger
	preflight Preflight
	lookPath  func(string) (string, error)
}

// LocalOption configures a Local executor.
type LocalOption func(*Local)

// WithPreflight enables a resource check before every spawn.
func WithPreflight(p Preflight) LocalOption {
	return func(l *Local) { l.preflight = p }
}

// NewLocal creates a local executor.
func NewLocal(logger *logging.Logger, opts ...LocalOption) *Local {
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Local{
		logger:   logger.WithComponent("executor.local"),
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute implements core.Executor.
func (l *Local) Execute(ctx context.Context, target core.Target, spec core.CommandSpec) core.ExecutionResult {
	if !target.IsLocal() {
		return core.Failed(core.ErrValidation(core.CodeInvalidTarget,
			fmt.Sprintf("local executor cannot run on %s", target.Identity())), 0)
	}
	if spec.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout())
		defer cancel()
	}

	if l.preflight != nil {
		if err := l.preflight.Check(); err != nil {
			return core.Failed(core.ErrTransport(core.CodeSpawnFailed,
				"preflight check failed").WithCause(err), 0)
		}
	}

	path, err := l.lookPath(spec.Tool())
	if err != nil {
		return core.Failed(core.ErrTool(core.CodeToolNotFound,
			fmt.Sprintf("%s not found on PATH", spec.Tool())).WithCause(err), 0)
	}

	// #nosec G204 -- argv is built by command definitions, never a shell string
	cmd := exec.CommandContext(ctx, path, spec.Args()...)
	configureProcAttr(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.logger.Debug("executing command", "argv", spec.Argv(), "timeout", spec.Timeout())

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := core.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		result.TimedOut = true
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			result.Err = core.ErrTimeout(fmt.Sprintf("%s timed out after %v", spec.Tool(), duration.Round(time.Millisecond)))
		} else {
			result.Err = cancelled(spec.Tool())
		}
		l.logger.Warn("command timeout", "tool", spec.Tool(), "duration", duration)
		return result
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Err = ClassifyExit(spec.Tool(), result)
			l.logger.Debug("command failed",
				"tool", spec.Tool(),
				"exit_code", result.ExitCode,
				"stderr", truncate(result.Stderr, 1000),
			)
			return result
		}
		result.ExitCode = -1
		result.Err = core.ErrTransport(core.CodeSpawnFailed,
			fmt.Sprintf("starting %s", spec.Tool())).WithCause(runErr)
		l.logger.Warn("command execution error", "tool", spec.Tool(), "error", runErr)
		return result
	}

	result.Succeeded = true
	l.logger.Debug("command completed",
		"tool", spec.Tool(),
		"duration", duration,
		"stdout_length", len(result.Stdout),
	)
	return result
}

// cancelled reports a caller cancellation. It is terminal: retrying work the
// caller abandoned is pointless.
func cancelled(tool string) *core.DomainError {
	err := core.ErrTimeout(fmt.Sprintf("%s cancelled", tool)).Terminal()
	err.Code = "CANCELLED"
	return err
}
