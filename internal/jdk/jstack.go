package jdk

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// ThreadInfo is one thread block of a thread dump.
type ThreadInfo struct {
	Name        string   `json:"name" yaml:"name"`
	ID          int64    `json:"id,omitempty" yaml:"id,omitempty"`
	Daemon      bool     `json:"daemon" yaml:"daemon"`
	Priority    int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	TID         string   `json:"tid,omitempty" yaml:"tid,omitempty"`
	NID         string   `json:"nid,omitempty" yaml:"nid,omitempty"`
	State       string   `json:"state" yaml:"state"`
	StateDetail string   `json:"state_detail,omitempty" yaml:"state_detail,omitempty"`
	Condition   string   `json:"condition,omitempty" yaml:"condition,omitempty"`
	Frames      []string `json:"frames" yaml:"frames"`
	Locks       []string `json:"locks" yaml:"locks"`
}

// ThreadDump is the record for get_thread_info.
type ThreadDump struct {
	core.Status
	Threads           []ThreadInfo   `json:"threads" yaml:"threads"`
	ThreadCount       int            `json:"thread_count" yaml:"thread_count"`
	StateCounts       map[string]int `json:"state_counts" yaml:"state_counts"`
	DeadlockDetected  bool           `json:"deadlock_detected" yaml:"deadlock_detected"`
	DeadlockedThreads []string       `json:"deadlocked_threads,omitempty" yaml:"deadlocked_threads,omitempty"`
}

// RecordKind implements core.Record.
func (*ThreadDump) RecordKind() core.OutputKind { return core.KindThreadDump }

// ThreadDumpCommand runs `jstack -l <pid>`.
type ThreadDumpCommand struct{ base }

// NewThreadDump creates the get_thread_info command.
func NewThreadDump() *ThreadDumpCommand {
	return &ThreadDumpCommand{base{
		name:        "get_thread_info",
		description: "Thread dump with states, stack frames and held locks (jstack -l)",
		kind:        core.KindThreadDump,
		timeout:     20 * time.Second,
		ttl:         time.Second,
	}}
}

type threadDumpParams struct {
	PID string `mapstructure:"pid" validate:"required,pid"`
	// ThreadID matches the `#<id>` of the thread header.
	ThreadID int64 `mapstructure:"thread_id" validate:"gte=0"`
	// Name matches thread names by substring, ignoring case.
	Name string `mapstructure:"name" validate:"max=256"`
}

// Prepare implements Command. thread_id and name narrow the dump to the
// matching threads; the whole process is still dumped.
func (c *ThreadDumpCommand) Prepare(args Args) (*Invocation, error) {
	var p threadDumpParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	return c.invocation("jstack", []string{"-l", p.PID}, p, func(res core.ExecutionResult) core.Record {
		rec := ParseThreadDump(res.Stdout)
		if dump, ok := rec.(*ThreadDump); ok && (p.ThreadID > 0 || p.Name != "") {
			return FilterThreads(dump, p.ThreadID, p.Name)
		}
		return rec
	}), nil
}

// FilterThreads keeps the threads matching id (when non-zero) and name (when
// non-empty) and recounts states. Deadlock fields describe the whole process
// and are kept. No match is a not_found failure.
func FilterThreads(dump *ThreadDump, id int64, name string) core.Record {
	out := &ThreadDump{
		Status:            dump.Status,
		Threads:           []ThreadInfo{},
		StateCounts:       map[string]int{},
		DeadlockDetected:  dump.DeadlockDetected,
		DeadlockedThreads: dump.DeadlockedThreads,
	}
	needle := strings.ToLower(name)
	for _, t := range dump.Threads {
		if id > 0 && t.ID != id {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		out.Threads = append(out.Threads, t)
		out.StateCounts[t.State]++
	}
	if len(out.Threads) == 0 {
		return core.NewFailure(core.KindThreadDump, core.ErrNotFound("thread", threadSelector(id, name)))
	}
	out.ThreadCount = len(out.Threads)
	return out
}

func threadSelector(id int64, name string) string {
	switch {
	case id > 0 && name != "":
		return fmt.Sprintf("#%d %q", id, name)
	case id > 0:
		return fmt.Sprintf("#%d", id)
	default:
		return strconv.Quote(name)
	}
}

const unknownState = "UNKNOWN"

// ParseThreadDump segments jstack output into thread blocks. A block starts
// at a line beginning with a quoted thread name; state comes from a
// `state=` header attribute or the `java.lang.Thread.State:` line. Output
// without a single thread header is a parse failure.
func ParseThreadDump(out string) core.Record {
	rec := &ThreadDump{Status: core.OK(), Threads: []ThreadInfo{}, StateCounts: map[string]int{}}

	var cur *ThreadInfo
	inSynchronizers := false
	inDeadlock := false
	flush := func() {
		if cur != nil {
			rec.Threads = append(rec.Threads, *cur)
			cur = nil
		}
	}

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "Found one Java-level deadlock") ||
			strings.HasPrefix(line, "Found a total of") {
			flush()
			inDeadlock = true
			rec.DeadlockDetected = true
			continue
		}
		if inDeadlock {
			// `"Thread-1":` lines name the threads in the cycle.
			if strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `":`) {
				name := strings.TrimSuffix(strings.TrimPrefix(line, `"`), `":`)
				if !containsString(rec.DeadlockedThreads, name) {
					rec.DeadlockedThreads = append(rec.DeadlockedThreads, name)
				}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, `"`):
			flush()
			if t, ok := parseThreadHeader(line); ok {
				cur = &t
			}
			inSynchronizers = false
		case cur == nil:
			continue
		case strings.HasPrefix(line, "java.lang.Thread.State:"):
			state := strings.TrimSpace(strings.TrimPrefix(line, "java.lang.Thread.State:"))
			name, detail, _ := strings.Cut(state, " ")
			cur.State = name
			cur.StateDetail = strings.TrimSpace(detail)
			inSynchronizers = false
		case strings.HasPrefix(line, "Locked ownable synchronizers:"),
			strings.HasPrefix(line, "Locked synchronizers:"):
			inSynchronizers = true
		case strings.HasPrefix(line, "- "):
			if inSynchronizers {
				if line != "- None" {
					cur.Locks = append(cur.Locks, line[2:])
				}
			} else if isLockLine(line) {
				cur.Locks = append(cur.Locks, line[2:])
			}
		case strings.HasPrefix(line, "at "):
			cur.Frames = append(cur.Frames, strings.TrimPrefix(line, "at "))
			inSynchronizers = false
		}
	}
	flush()

	if len(rec.Threads) == 0 {
		return core.NewFailure(core.KindThreadDump, core.ErrParse(
			fmt.Sprintf("no thread header found in %d bytes of jstack output", len(out))))
	}
	rec.ThreadCount = len(rec.Threads)
	for _, t := range rec.Threads {
		rec.StateCounts[t.State]++
	}
	return rec
}

func isLockLine(line string) bool {
	return strings.Contains(line, "locked") ||
		strings.Contains(line, "waiting to lock") ||
		strings.Contains(line, "waiting on") ||
		strings.Contains(line, "parking to wait")
}

// parseThreadHeader parses lines such as
//
//	"main" #1 prio=5 os_prio=0 cpu=1.2ms tid=0x7f nid=0x1a03 waiting on condition  [0x7f00]
//	"Thread-1" #12 state=RUNNABLE
func parseThreadHeader(line string) (ThreadInfo, bool) {
	end := strings.LastIndex(line, `"`)
	if end <= 0 {
		return ThreadInfo{}, false
	}
	t := ThreadInfo{
		Name:   line[1:end],
		State:  unknownState,
		Frames: []string{},
		Locks:  []string{},
	}

	var condition []string
	for _, tok := range strings.Fields(line[end+1:]) {
		key, val, hasEq := strings.Cut(tok, "=")
		switch {
		case strings.HasPrefix(tok, "#"):
			t.ID, _ = strconv.ParseInt(tok[1:], 10, 64)
		case tok == "daemon":
			t.Daemon = true
		case hasEq && key == "prio":
			t.Priority, _ = strconv.Atoi(val)
		case hasEq && key == "tid":
			t.TID = val
		case hasEq && key == "nid":
			t.NID = val
		case hasEq && key == "state":
			t.State = strings.ToUpper(val)
		case hasEq:
			// os_prio, cpu, elapsed
		case strings.HasPrefix(tok, "["):
			// stack address range
		default:
			condition = append(condition, tok)
		}
	}
	t.Condition = strings.Join(condition, " ")
	return t, true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
