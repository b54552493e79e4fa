package jdk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// histogramOutput renders n rows in `jmap -histo` layout, with a Total row.
func histogramOutput(n int) string {
	var b strings.Builder
	b.WriteString(" num     #instances         #bytes  class name (module)\n")
	b.WriteString("-------------------------------------------------------\n")
	b.WriteString("   1:         12345        1234560  [B (java.base@17.0.2)\n")
	var instances, bytes int64 = 12345, 1234560
	for i := 2; i <= n; i++ {
		inst := int64(1000 - i)
		fmt.Fprintf(&b, "%4d: %13d %14d  com.example.C%d\n", i, inst, inst*16, i)
		instances += inst
		bytes += inst * 16
	}
	fmt.Fprintf(&b, "Total %13d %14d\n", instances, bytes)
	return b.String()
}

func TestParseHistogram_MaxMatches(t *testing.T) {
	inv, err := NewHistogram().Prepare(Args{"pid": "4242", "max_matches": "50"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jmap", "-histo", "4242"}, inv.Spec.Argv())

	rec := inv.Parse(core.ExecutionResult{Succeeded: true, Stdout: histogramOutput(120)})
	hist, ok := rec.(*Histogram)
	require.True(t, ok, "got %T: %s", rec, rec.ErrorText())

	assert.Len(t, hist.Classes, 50)
	assert.True(t, hist.LimitedByMax)
	assert.Equal(t, 120, hist.TotalRows)
	assert.Equal(t, 1, hist.Classes[0].Rank)
	assert.Equal(t, "[B", hist.Classes[0].ClassName)
	assert.Equal(t, "java.base@17.0.2", hist.Classes[0].Module)
	assert.Equal(t, "com.example.C50", hist.Classes[49].ClassName)
}

func TestParseHistogram_NoCap(t *testing.T) {
	hist, ok := ParseHistogram(histogramOutput(10), 0).(*Histogram)
	require.True(t, ok)
	assert.Len(t, hist.Classes, 10)
	assert.False(t, hist.LimitedByMax)

	var instances int64
	for _, c := range hist.Classes {
		instances += c.Instances
	}
	assert.Equal(t, instances, hist.TotalInstances, "Total row is a summary, not a class")
}

func TestParseHistogram_CapEqualToRows(t *testing.T) {
	hist, ok := ParseHistogram(histogramOutput(10), 10).(*Histogram)
	require.True(t, ok)
	assert.Len(t, hist.Classes, 10)
	assert.False(t, hist.LimitedByMax)
}

func TestParseHistogram_WithoutTotalRow(t *testing.T) {
	out := "   1:   10   160  java.lang.String\n   2:   5   80  java.util.HashMap\n"
	hist, ok := ParseHistogram(out, 0).(*Histogram)
	require.True(t, ok)
	assert.Equal(t, int64(15), hist.TotalInstances)
	assert.Equal(t, int64(240), hist.TotalBytes)
}

func TestParseHistogram_Garbage(t *testing.T) {
	rec := ParseHistogram("Error attaching to process\n", 0)
	assert.False(t, rec.Succeeded())
	assert.Equal(t, core.KindHistogram, rec.RecordKind())
}

func TestParseHistogram_Idempotent(t *testing.T) {
	out := histogramOutput(30)
	assert.Equal(t, ParseHistogram(out, 5), ParseHistogram(out, 5))
}

func TestHistogram_LiveAndKey(t *testing.T) {
	a, err := NewHistogram().Prepare(Args{"pid": "1", "live": "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jmap", "-histo:live", "1"}, a.Spec.Argv())

	b, err := NewHistogram().Prepare(Args{"pid": "1", "live": true, "max_matches": 5})
	require.NoError(t, err)
	assert.Equal(t, a.Spec.Fingerprint(), b.Spec.Fingerprint())
	assert.NotEqual(t, a.Key, b.Key, "row caps parse differently")

	_, err = NewHistogram().Prepare(Args{"pid": "1", "max_matches": -1})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

const heapOutput = `Attaching to process ID 4242, please wait...
Debugger attached successfully.
Server compiler detected.
JVM version is 25.292-b10

using thread-local object allocation.
Parallel GC with 8 thread(s)

Heap Configuration:
   MinHeapFreeRatio         = 0
   MaxHeapSize              = 4164943872 (3972.0MB)

Heap Usage:
PS Young Generation
Eden Space:
   capacity = 65536000 (62.5MB)
   used     = 13107200 (12.5MB)
   20.0% used
`

func TestParseMemoryInfo(t *testing.T) {
	info, ok := ParseMemoryInfo(heapOutput).(*MemoryInfo)
	require.True(t, ok)

	assert.Equal(t, "Parallel GC with 8 thread(s)", info.GC)
	require.Len(t, info.Sections, 3)
	assert.Equal(t, "Heap Configuration", info.Sections[0].Name)
	assert.Equal(t, "4164943872 (3972.0MB)", info.Sections[0].Entries["MaxHeapSize"])
	assert.Equal(t, []string{"PS Young Generation"}, info.Sections[1].Notes)
	assert.Equal(t, "Eden Space", info.Sections[2].Name)
	assert.Equal(t, "65536000 (62.5MB)", info.Sections[2].Entries["capacity"])
	assert.Equal(t, []string{"20.0% used"}, info.Sections[2].Notes)
}

func TestParseMemoryInfo_NoSections(t *testing.T) {
	rec := ParseMemoryInfo("Error: -heap option used\n")
	require.False(t, rec.Succeeded())
	assert.Contains(t, rec.ErrorText(), "bytes")
}

func TestHeapDump(t *testing.T) {
	inv, err := NewHeapDump().Prepare(Args{"pid": "5", "file": "/tmp/app.hprof", "live": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"jmap", "-dump:live,format=b,file=/tmp/app.hprof", "5"}, inv.Spec.Argv())
	assert.Zero(t, inv.TTL)

	out := "Dumping heap to /tmp/app.hprof ...\nHeap dump file created [52428800 bytes in 0.412 secs]\n"
	dump, ok := inv.Parse(core.ExecutionResult{Succeeded: true, Stdout: out}).(*HeapDump)
	require.True(t, ok)
	assert.Equal(t, "/tmp/app.hprof", dump.File)
	assert.True(t, dump.Created)
	assert.True(t, dump.Live)
}

func TestHeapDump_Validation(t *testing.T) {
	for _, args := range []Args{
		{"pid": "5"},
		{"pid": "5", "file": "/tmp/a,b.hprof"},
	} {
		_, err := NewHeapDump().Prepare(args)
		assert.True(t, core.IsCategory(err, core.ErrCatValidation), "args %v", args)
	}
}
