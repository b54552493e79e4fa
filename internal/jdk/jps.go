package jdk

import (
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// ProcessInfo is one JVM reported by jps.
type ProcessInfo struct {
	PID  string `json:"pid" yaml:"pid"`
	Name string `json:"name" yaml:"name"`
	Args string `json:"args" yaml:"args"`
}

// ProcessList is the record for list_java_processes.
type ProcessList struct {
	core.Status
	Processes []ProcessInfo `json:"processes" yaml:"processes"`
}

// RecordKind implements core.Record.
func (*ProcessList) RecordKind() core.OutputKind { return core.KindProcessList }

// ListProcesses runs `jps -l -v`.
type ListProcesses struct{ base }

// NewListProcesses creates the list_java_processes command.
func NewListProcesses() *ListProcesses {
	return &ListProcesses{base{
		name:        "list_java_processes",
		description: "List running JVMs with main class and JVM arguments (jps -l -v)",
		kind:        core.KindProcessList,
		timeout:     10 * time.Second,
		ttl:         2 * time.Second,
	}}
}

type noParams struct{}

// Prepare implements Command.
func (c *ListProcesses) Prepare(args Args) (*Invocation, error) {
	var p noParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	return c.invocation("jps", []string{"-l", "-v"}, p, func(res core.ExecutionResult) core.Record {
		return ParseProcessList(res.Stdout)
	}), nil
}

// ParseProcessList parses "pid name [args...]" lines. Lines with fewer than
// two tokens or a non-numeric pid are skipped. An empty listing is a valid
// (successful) result.
func ParseProcessList(out string) *ProcessList {
	rec := &ProcessList{Status: core.OK(), Processes: []ProcessInfo{}}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || !pidPattern.MatchString(fields[0]) {
			continue
		}
		rec.Processes = append(rec.Processes, ProcessInfo{
			PID:  fields[0],
			Name: fields[1],
			Args: strings.Join(fields[2:], " "),
		})
	}
	return rec
}
