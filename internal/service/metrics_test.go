package service_test

import (
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/service"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/testutil"
)

type outputRecord struct {
	core.Status
	Out string
}

func (*outputRecord) RecordKind() core.OutputKind { return core.KindNone }

func metricsCall(tool, name string, ttl time.Duration) service.Call {
	target := core.LocalTarget()
	spec := core.NewCommandSpec(tool, []string{"1"}, core.KindNone, time.Second)
	return service.Call{
		Name:   name,
		Target: target,
		Spec:   spec,
		Key:    service.CacheKey(target, name, spec.Fingerprint()),
		TTL:    ttl,
		Parse: func(res core.ExecutionResult) core.Record {
			return &outputRecord{Status: core.OK(), Out: res.Stdout}
		},
	}
}

func TestMetricsCollector_Counters(t *testing.T) {
	m := service.NewMetricsCollector()

	m.RecordCall("get_thread_info", false, false, false)
	m.RecordCall("get_thread_info", true, false, false)
	m.RecordCall("get_thread_info", false, true, true)
	m.RecordAttempt("get_thread_info", 10*time.Millisecond)
	m.RecordAttempt("get_thread_info", 30*time.Millisecond)
	m.RecordRetry("get_thread_info")

	tm := m.Tool("get_thread_info")
	testutil.AssertEqual(t, tm.Calls, 3)
	testutil.AssertEqual(t, tm.CacheHits, 1)
	testutil.AssertEqual(t, tm.Coalesced, 1)
	testutil.AssertEqual(t, tm.Failures, 1)
	testutil.AssertEqual(t, tm.Attempts, 2)
	testutil.AssertEqual(t, tm.Retries, 1)
	testutil.AssertEqual(t, tm.TotalDuration, 40*time.Millisecond)
	testutil.AssertEqual(t, tm.AvgDuration, 20*time.Millisecond)
}

func TestMetricsCollector_UnknownTool(t *testing.T) {
	m := service.NewMetricsCollector()
	tm := m.Tool("get_jvm_info")
	testutil.AssertEqual(t, tm.Tool, "get_jvm_info")
	testutil.AssertEqual(t, tm.Calls, 0)
}

func TestMetricsCollector_SnapshotSorted(t *testing.T) {
	m := service.NewMetricsCollector()
	m.RecordCall("run_jcmd", false, false, false)
	m.RecordCall("get_class_info", false, false, false)
	m.RecordCall("list_java_processes", false, false, false)

	snap := m.Snapshot()
	testutil.AssertLen(t, snap, 3)
	testutil.AssertEqual(t, snap[0].Tool, "get_class_info")
	testutil.AssertEqual(t, snap[1].Tool, "list_java_processes")
	testutil.AssertEqual(t, snap[2].Tool, "run_jcmd")

	// Snapshot is a copy.
	snap[0].Calls = 99
	testutil.AssertEqual(t, m.Tool("get_class_info").Calls, 1)
}

func TestPolicy_RecordsMetrics(t *testing.T) {
	exec := testutil.NewMockExecutor().
		On("jstack",
			testutil.Failure(core.ErrTransport(core.CodeConnectFailed, "connection reset")),
			testutil.Success("dump"))

	policy := service.NewPolicy(exec, service.WithRetryPolicy(
		service.NewRetryPolicy(service.WithBaseDelay(time.Millisecond), service.WithMaxDelay(2*time.Millisecond))))

	call := metricsCall("jstack", "get_thread_info", time.Minute)
	rec := policy.Run(t.Context(), call)
	testutil.AssertTrue(t, rec.Succeeded(), "retried call should succeed")

	rec = policy.Run(t.Context(), call)
	testutil.AssertTrue(t, rec.Succeeded(), "cached call should succeed")

	tm := policy.Metrics().Tool("get_thread_info")
	testutil.AssertEqual(t, tm.Calls, 2)
	testutil.AssertEqual(t, tm.CacheHits, 1)
	testutil.AssertEqual(t, tm.Attempts, 2)
	testutil.AssertEqual(t, tm.Retries, 1)
	testutil.AssertEqual(t, tm.Failures, 0)
	testutil.AssertEqual(t, exec.CallCount("jstack"), 2)
}

func TestPolicy_RecordsTerminalFailure(t *testing.T) {
	exec := testutil.NewMockExecutor().
		On("jmap", testutil.Failure(core.ErrTool(core.CodeNoSuchProcess, "no such process")))
	policy := service.NewPolicy(exec)

	rec := policy.Run(t.Context(), metricsCall("jmap", "get_memory_histogram", time.Minute))
	f := testutil.RequireFailure(t, rec, core.ErrCatTool)
	testutil.AssertEqual(t, f.Code, core.CodeNoSuchProcess)
	testutil.AssertContains(t, f.Error, "no such process")

	tm := policy.Metrics().Tool("get_memory_histogram")
	testutil.AssertEqual(t, tm.Attempts, 1)
	testutil.AssertEqual(t, tm.Retries, 0)
	testutil.AssertEqual(t, tm.Failures, 1)
}
