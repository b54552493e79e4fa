package diagnostic

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
)

// SelectProcess lists the target's JVMs and returns the first one that is
// not part of the diagnostic tooling itself.
func (f *Facade) SelectProcess(ctx context.Context, target core.Target) (jdk.ProcessInfo, error) {
	rec := f.Invoke(ctx, target, "list_java_processes", nil)
	list, ok := rec.(*jdk.ProcessList)
	if !ok {
		return jdk.ProcessInfo{}, failureError(rec)
	}
	for _, p := range list.Processes {
		if !f.isSelf(p) {
			return p, nil
		}
	}
	return jdk.ProcessInfo{}, core.ErrTool(core.CodeNoProcess, "no java process found on "+target.Identity())
}

func (f *Facade) isSelf(p jdk.ProcessInfo) bool {
	name := strings.ToLower(p.Name)
	// jps reports "-- process information unavailable" for JVMs it cannot attach to.
	if name == "jps" || name == "--" {
		return true
	}
	for _, sig := range f.selfSigs {
		if strings.Contains(name, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

// failureError recovers the domain error carried by a failure record.
func failureError(rec core.Record) error {
	if fr, ok := rec.(*core.Failure); ok {
		return &core.DomainError{Category: fr.Category, Code: fr.Code, Message: fr.Error}
	}
	return core.ErrInternal("unexpected record " + string(rec.RecordKind()) + ": " + rec.ErrorText())
}

// ThreadSummary condenses a thread dump for the status report.
type ThreadSummary struct {
	ThreadCount      int            `json:"thread_count" yaml:"thread_count"`
	StateCounts      map[string]int `json:"state_counts" yaml:"state_counts"`
	DeadlockDetected bool           `json:"deadlock_detected" yaml:"deadlock_detected"`
}

// JvmStatus is the combined report returned by Status. A part that could
// not be collected is absent and its error is listed under Errors.
type JvmStatus struct {
	core.Status
	PID     string            `json:"pid" yaml:"pid"`
	Process *jdk.ProcessInfo  `json:"process,omitempty" yaml:"process,omitempty"`
	Threads *ThreadSummary    `json:"threads,omitempty" yaml:"threads,omitempty"`
	JvmInfo *jdk.JvmBasicInfo `json:"jvm_info,omitempty" yaml:"jvm_info,omitempty"`
	Memory  *jdk.MemoryInfo   `json:"memory,omitempty" yaml:"memory,omitempty"`
	Errors  map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// RecordKind implements core.Record.
func (*JvmStatus) RecordKind() core.OutputKind { return core.KindStatus }

// Status collects threads, JVM info and heap usage for pid concurrently.
// An empty pid selects a process with SelectProcess. The report succeeds
// when at least one part was collected.
func (f *Facade) Status(ctx context.Context, target core.Target, pid string) core.Record {
	st := &JvmStatus{Status: core.OK(), PID: pid}
	if pid == "" {
		p, err := f.SelectProcess(ctx, target)
		if err != nil {
			return core.NewFailure(core.KindStatus, err)
		}
		st.PID = p.PID
		st.Process = &p
	}

	parts := []string{"get_thread_info", "get_jvm_info", "get_memory_info"}
	results := make([]core.Record, len(parts))
	var g errgroup.Group
	for i, tool := range parts {
		g.Go(func() error {
			results[i] = f.Invoke(ctx, target, tool, jdk.Args{"pid": st.PID})
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range results {
		if !rec.Succeeded() {
			if st.Errors == nil {
				st.Errors = map[string]string{}
			}
			st.Errors[parts[i]] = rec.ErrorText()
			continue
		}
		switch r := rec.(type) {
		case *jdk.ThreadDump:
			st.Threads = &ThreadSummary{
				ThreadCount:      r.ThreadCount,
				StateCounts:      r.StateCounts,
				DeadlockDetected: r.DeadlockDetected,
			}
		case *jdk.JvmBasicInfo:
			st.JvmInfo = r
		case *jdk.MemoryInfo:
			st.Memory = r
		}
	}

	if st.Threads == nil && st.JvmInfo == nil && st.Memory == nil {
		return core.NewFailure(core.KindStatus, core.ErrTool(core.CodeToolFailed,
			"no status collected for pid "+st.PID+": "+joinErrors(parts, st.Errors)))
	}
	return st
}

func joinErrors(order []string, errs map[string]string) string {
	msgs := make([]string, 0, len(errs))
	for _, tool := range order {
		if msg, ok := errs[tool]; ok {
			msgs = append(msgs, tool+": "+msg)
		}
	}
	return strings.Join(msgs, "; ")
}
