package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// MockExecutor implements core.Executor with scripted results per tool.
// Scripts are consumed in order; the last result repeats once the script
// runs out.
type MockExecutor struct {
	mu      sync.Mutex
	scripts map[string][]core.ExecutionResult
	delay   time.Duration
	calls   []MockCall
}

// MockCall records one Execute call.
type MockCall struct {
	Target    string
	Argv      []string
	Timestamp time.Time
}

// NewMockExecutor creates an executor with no scripts. Unscripted tools
// fail with TOOL_NOT_FOUND.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{scripts: make(map[string][]core.ExecutionResult)}
}

// On appends results for tool.
func (m *MockExecutor) On(tool string, results ...core.ExecutionResult) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[tool] = append(m.scripts[tool], results...)
	return m
}

// WithDelay makes every call block for d or until ctx is done.
func (m *MockExecutor) WithDelay(d time.Duration) *MockExecutor {
	m.delay = d
	return m
}

// Execute implements core.Executor.
func (m *MockExecutor) Execute(ctx context.Context, target core.Target, spec core.CommandSpec) core.ExecutionResult {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Target: target.Identity(), Argv: spec.Argv(), Timestamp: time.Now()})
	script := m.scripts[spec.Tool()]
	var res core.ExecutionResult
	switch len(script) {
	case 0:
		res = core.Failed(core.ErrTool(core.CodeToolNotFound, spec.Tool()+": not scripted"), 0)
	case 1:
		res = script[0]
	default:
		res = script[0]
		m.scripts[spec.Tool()] = script[1:]
	}
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return core.Failed(core.ErrTimeout(spec.Tool()+": cancelled").WithCause(ctx.Err()), m.delay)
		}
	}
	return res
}

// Calls returns a copy of the recorded calls.
func (m *MockExecutor) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times tool was executed.
func (m *MockExecutor) CallCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if len(c.Argv) > 0 && c.Argv[0] == tool {
			n++
		}
	}
	return n
}

// Success builds a successful result with stdout.
func Success(stdout string) core.ExecutionResult {
	return core.ExecutionResult{Stdout: stdout, Succeeded: true, Duration: time.Millisecond}
}

// Failure builds an unsuccessful result carrying err.
func Failure(err *core.DomainError) core.ExecutionResult {
	return core.Failed(err, time.Millisecond)
}
