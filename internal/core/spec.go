package core

import (
	"strconv"
	"strings"
	"time"
)

// OutputKind names the record shape a command produces.
type OutputKind string

const (
	KindProcessList    OutputKind = "process_list"
	KindThreadDump     OutputKind = "thread_dump"
	KindMemoryInfo     OutputKind = "memory_info"
	KindHistogram      OutputKind = "histogram"
	KindClassInfo      OutputKind = "class_info"
	KindClassStructure OutputKind = "class_structure"
	KindJvmInfo        OutputKind = "jvm_info"
	KindJstat          OutputKind = "jstat"
	KindJcmd           OutputKind = "jcmd"
	KindHeapDump       OutputKind = "heap_dump"
	KindLoggerInfo     OutputKind = "logger_info"
	KindStatus         OutputKind = "jvm_status"
	KindNone           OutputKind = "none"
)

// CommandSpec is a fully built tool invocation. Construct with NewCommandSpec;
// the argument vector is copied in and out so a spec cannot be mutated after
// it is built.
type CommandSpec struct {
	tool    string
	args    []string
	kind    OutputKind
	timeout time.Duration
}

// NewCommandSpec builds a spec for tool with the given arguments.
func NewCommandSpec(tool string, args []string, kind OutputKind, timeout time.Duration) CommandSpec {
	cp := make([]string, len(args))
	copy(cp, args)
	return CommandSpec{tool: tool, args: cp, kind: kind, timeout: timeout}
}

// Tool returns the executable name.
func (s CommandSpec) Tool() string { return s.tool }

// Args returns a copy of the arguments.
func (s CommandSpec) Args() []string {
	cp := make([]string, len(s.args))
	copy(cp, s.args)
	return cp
}

// Argv returns the tool followed by its arguments.
func (s CommandSpec) Argv() []string {
	argv := make([]string, 0, len(s.args)+1)
	argv = append(argv, s.tool)
	return append(argv, s.args...)
}

// Kind returns the expected output kind.
func (s CommandSpec) Kind() OutputKind { return s.kind }

// Timeout returns the per-attempt timeout. Zero means no timeout beyond the
// caller's context.
func (s CommandSpec) Timeout() time.Duration { return s.timeout }

// WithTimeout returns a copy with a different timeout.
func (s CommandSpec) WithTimeout(d time.Duration) CommandSpec {
	return NewCommandSpec(s.tool, s.args, s.kind, d)
}

// Fingerprint returns a stable identifier for the tool and its arguments.
// Arguments are length-prefixed so that ["a b"] and ["a", "b"] differ.
func (s CommandSpec) Fingerprint() string {
	var b strings.Builder
	b.WriteString(s.tool)
	for _, a := range s.args {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(a)))
		b.WriteByte(':')
		b.WriteString(a)
	}
	return b.String()
}

// String renders the command line for logs.
func (s CommandSpec) String() string {
	return strings.Join(s.Argv(), " ")
}

// ExecutionResult is the outcome of one physical attempt.
type ExecutionResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Succeeded bool
	TimedOut  bool
	// Err is set whenever Succeeded is false.
	Err *DomainError
}

// Failed builds an unsuccessful result carrying err.
func Failed(err *DomainError, d time.Duration) ExecutionResult {
	return ExecutionResult{
		ExitCode: -1,
		Duration: d,
		TimedOut: err != nil && err.Category == ErrCatTimeout,
		Err:      err,
	}
}
