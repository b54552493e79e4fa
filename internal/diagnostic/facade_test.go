package diagnostic

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/adapters/executor"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/logging"
)

// scriptedExecutor answers by tool name and tracks concurrency.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []core.CommandSpec
	outputs map[string]core.ExecutionResult
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScripted(outputs map[string]core.ExecutionResult) *scriptedExecutor {
	return &scriptedExecutor{outputs: outputs}
}

func (s *scriptedExecutor) Execute(ctx context.Context, _ core.Target, spec core.CommandSpec) core.ExecutionResult {
	s.mu.Lock()
	s.calls = append(s.calls, spec)
	s.mu.Unlock()

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return core.Failed(core.ErrTimeout("cancelled"), 0)
		}
	}

	if res, ok := s.outputs[spec.Tool()]; ok {
		return res
	}
	return core.Failed(core.ErrTool(core.CodeToolNotFound, spec.Tool()+" not scripted"), 0)
}

func (s *scriptedExecutor) callCount(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Tool() == tool {
			n++
		}
	}
	return n
}

func ok(stdout string) core.ExecutionResult {
	return core.ExecutionResult{Succeeded: true, Stdout: stdout}
}

func toolFailed(msg string) core.ExecutionResult {
	return core.ExecutionResult{ExitCode: 1, Stderr: msg, Err: core.ErrTool(core.CodeToolFailed, msg)}
}

const jpsOutput = "12345 com.example.App --flag\n67890 ArthasBootstrap\n"

func TestInvoke_CachesWithinTTL(t *testing.T) {
	fake := newScripted(map[string]core.ExecutionResult{"jps": ok(jpsOutput)})
	f := New(fake)

	first := f.Invoke(context.Background(), core.LocalTarget(), "list_java_processes", nil)
	second := f.Invoke(context.Background(), core.LocalTarget(), "list_java_processes", nil)

	require.True(t, first.Succeeded(), first.ErrorText())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.callCount("jps"))

	list := first.(*jdk.ProcessList)
	require.Len(t, list.Processes, 2)
	assert.Equal(t, "12345", list.Processes[0].PID)

	m := f.Metrics()
	require.Len(t, m, 1)
	assert.Equal(t, 2, m[0].Calls)
	assert.Equal(t, 1, m[0].CacheHits)
}

func TestInvoke_ValidationNeverExecutes(t *testing.T) {
	fake := newScripted(nil)
	f := New(fake)

	rec := f.Invoke(context.Background(), core.LocalTarget(), "get_thread_info", jdk.Args{"pid": "abc"})

	fr, isFailure := rec.(*core.Failure)
	require.True(t, isFailure)
	assert.Equal(t, core.ErrCatValidation, fr.Category)
	assert.Equal(t, core.KindThreadDump, fr.Kind)
	assert.Empty(t, fake.calls)
}

func TestInvoke_UnknownToolSuggests(t *testing.T) {
	f := New(newScripted(nil))

	rec := f.Invoke(context.Background(), core.LocalTarget(), "get_thread_inf", jdk.Args{"pid": "1"})

	fr, isFailure := rec.(*core.Failure)
	require.True(t, isFailure)
	assert.Equal(t, core.ErrCatNotFound, fr.Category)
	assert.Contains(t, fr.Error, "did you mean")
	assert.Contains(t, fr.Error, "get_thread_info")
}

func TestInvoke_Placeholder(t *testing.T) {
	fake := newScripted(nil)
	f := New(fake)

	rec := f.Invoke(context.Background(), core.LocalTarget(), "watch_method", jdk.Args{"class": "A"})

	assert.False(t, rec.Succeeded())
	assert.Contains(t, rec.ErrorText(), "not implemented")
	assert.Equal(t, core.ErrCatNotImplemented, rec.(*core.Failure).Category)
	assert.Empty(t, fake.calls)
}

func TestInvoke_TargetsDoNotShareCache(t *testing.T) {
	fake := newScripted(map[string]core.ExecutionResult{"jps": ok(jpsOutput)})
	f := New(fake)
	remote, err := core.NewRemoteTarget(core.RemoteOptions{Host: "ops@app01", Password: "x"})
	require.NoError(t, err)

	f.Invoke(context.Background(), core.LocalTarget(), "list_java_processes", nil)
	f.Invoke(context.Background(), remote, "list_java_processes", nil)

	assert.Equal(t, 2, fake.callCount("jps"))
}

func TestInvoke_BoundedConcurrency(t *testing.T) {
	fake := newScripted(map[string]core.ExecutionResult{"jcmd": ok("1:\nok\n")})
	fake.delay = 20 * time.Millisecond
	f := New(fake, WithMaxConcurrency(2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Distinct pids, so nothing is coalesced.
			pid := strings.Repeat("1", i+1)
			f.Invoke(context.Background(), core.LocalTarget(), "run_jcmd", jdk.Args{"pid": pid})
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, fake.callCount("jcmd"))
	assert.LessOrEqual(t, fake.maxInFlight.Load(), int32(2))
}

func TestInvoke_SlotWaitHonoursDeadline(t *testing.T) {
	fake := newScripted(map[string]core.ExecutionResult{"jcmd": ok("1:\nok\n")})
	fake.delay = 500 * time.Millisecond
	f := New(fake, WithMaxConcurrency(1))

	go f.Invoke(context.Background(), core.LocalTarget(), "run_jcmd", jdk.Args{"pid": "1"})
	require.Eventually(t, func() bool { return fake.inFlight.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	rec := f.Invoke(ctx, core.LocalTarget(), "run_jcmd", jdk.Args{"pid": "2"})

	require.False(t, rec.Succeeded())
	assert.Equal(t, core.ErrCatTimeout, rec.(*core.Failure).Category)
}

const histo = ` num     #instances         #bytes  class name (module)
-------------------------------------------------------
   1:          5000         400000  com.example.Order
   2:          3000         120000  [B (java.base@17.0.2)
Total          8000         520000
`

const orderJavap = `Compiled from "Order.java"
public class com.example.Order {
  private long id;
  public com.example.Order();
}
`

func TestInvoke_ClassInfoEnrichment(t *testing.T) {
	fake := newScripted(map[string]core.ExecutionResult{
		"jmap":  ok(histo),
		"javap": ok(orderJavap),
	})
	// One worker slot: nested javap calls must not need another.
	f := New(fake, WithMaxConcurrency(1))

	rec := f.Invoke(context.Background(), core.LocalTarget(), "get_class_info",
		jdk.Args{"pid": "9", "show_detail": true, "show_field": true})

	res, isResult := rec.(*jdk.ClassInfoResult)
	require.True(t, isResult, rec.ErrorText())
	require.Len(t, res.Classes, 2)
	require.NotNil(t, res.Classes[0].Structure)
	assert.Equal(t, "com.example.Order", res.Classes[0].Structure.ClassName)
	assert.Len(t, res.Classes[0].Structure.Fields, 1)
	assert.Nil(t, res.Classes[1].Structure)
	assert.Equal(t, 1, fake.callCount("javap"))
}

func TestTools(t *testing.T) {
	f := New(newScripted(nil))
	assert.Contains(t, f.Tools(), "get_jstat")

	implemented := 0
	for _, info := range f.Describe() {
		assert.NotEmpty(t, info.Description, info.Name)
		if info.Implemented {
			implemented++
		}
	}
	assert.Equal(t, 10, implemented)
}

func TestInvoke_LocalJps(t *testing.T) {
	if _, err := exec.LookPath("jps"); err != nil {
		t.Skip("jps not installed")
	}
	f := New(executor.NewLocal(logging.NewNop()))
	t.Cleanup(func() { _ = f.Close() })

	rec := f.Invoke(context.Background(), core.LocalTarget(), "list_java_processes", nil)
	require.True(t, rec.Succeeded(), rec.ErrorText())

	found := false
	for _, p := range rec.(*jdk.ProcessList).Processes {
		if strings.Contains(p.Name, "Jps") {
			found = true
		}
	}
	assert.True(t, found, "jps lists itself")
}

func TestInvoke_HeapDumpInvalidatesTargetCache(t *testing.T) {
	fake := newScripted(map[string]core.ExecutionResult{"jmap": ok(histo)})
	f := New(fake)
	ctx := context.Background()
	args := jdk.Args{"pid": "9"}

	require.True(t, f.Invoke(ctx, core.LocalTarget(), "get_memory_histogram", args).Succeeded())
	require.True(t, f.Invoke(ctx, core.LocalTarget(), "get_memory_histogram", args).Succeeded())
	assert.Equal(t, 1, fake.callCount("jmap"))

	dump := f.Invoke(ctx, core.LocalTarget(), "heap_dump", jdk.Args{"pid": "9", "file": "/tmp/app.hprof"})
	require.True(t, dump.Succeeded(), dump.ErrorText())
	assert.Equal(t, "/tmp/app.hprof", dump.(*jdk.HeapDump).File)

	require.True(t, f.Invoke(ctx, core.LocalTarget(), "get_memory_histogram", args).Succeeded())
	assert.Equal(t, 3, fake.callCount("jmap"))
}
