package jdk

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// HistogramEntry is one class row of `jmap -histo`.
type HistogramEntry struct {
	Rank      int    `json:"rank" yaml:"rank"`
	Instances int64  `json:"instances" yaml:"instances"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
	ClassName string `json:"class_name" yaml:"class_name"`
	Module    string `json:"module,omitempty" yaml:"module,omitempty"`
}

// Histogram is the record for get_memory_histogram.
type Histogram struct {
	core.Status
	Classes        []HistogramEntry `json:"classes" yaml:"classes"`
	TotalRows      int              `json:"total_rows" yaml:"total_rows"`
	TotalInstances int64            `json:"total_instances" yaml:"total_instances"`
	TotalBytes     int64            `json:"total_bytes" yaml:"total_bytes"`
	LimitedByMax   bool             `json:"limited_by_max" yaml:"limited_by_max"`
}

// RecordKind implements core.Record.
func (*Histogram) RecordKind() core.OutputKind { return core.KindHistogram }

type histogramParams struct {
	PID        string `mapstructure:"pid" validate:"required,pid"`
	Live       bool   `mapstructure:"live"`
	MaxMatches int    `mapstructure:"max_matches" validate:"gte=0"`
}

// HistogramCommand runs `jmap -histo[:live] <pid>`.
type HistogramCommand struct{ base }

// NewHistogram creates the get_memory_histogram command.
func NewHistogram() *HistogramCommand {
	return &HistogramCommand{base{
		name:        "get_memory_histogram",
		description: "Per-class instance and byte counts (jmap -histo); live=true forces a full GC first",
		kind:        core.KindHistogram,
		timeout:     60 * time.Second,
		ttl:         5 * time.Second,
	}}
}

// Prepare implements Command.
func (c *HistogramCommand) Prepare(args Args) (*Invocation, error) {
	var p histogramParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	return c.invocation("jmap", histoArgv(p.PID, p.Live), p, func(res core.ExecutionResult) core.Record {
		return ParseHistogram(res.Stdout, p.MaxMatches)
	}), nil
}

func histoArgv(pid string, live bool) []string {
	if live {
		return []string{"-histo:live", pid}
	}
	return []string{"-histo", pid}
}

// ParseHistogram parses `rank: instances bytes class [module]` rows. The
// header, separator and closing Total rows are not classes; Total feeds the
// totals instead. maxRows > 0 caps the returned rows and sets LimitedByMax
// when more rows were available.
func ParseHistogram(out string, maxRows int) core.Record {
	rec := &Histogram{Status: core.OK(), Classes: []HistogramEntry{}}
	sawTotal := false
	var sumInstances, sumBytes int64

	for _, raw := range strings.Split(out, "\n") {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "Total" {
			if len(fields) >= 3 {
				rec.TotalInstances, _ = strconv.ParseInt(fields[1], 10, 64)
				rec.TotalBytes, _ = strconv.ParseInt(fields[2], 10, 64)
				sawTotal = true
			}
			continue
		}
		entry, ok := parseHistogramRow(fields)
		if !ok {
			continue
		}
		rec.TotalRows++
		sumInstances += entry.Instances
		sumBytes += entry.Bytes
		if maxRows > 0 && len(rec.Classes) >= maxRows {
			rec.LimitedByMax = true
			continue
		}
		rec.Classes = append(rec.Classes, entry)
	}

	if rec.TotalRows == 0 && !sawTotal {
		return core.NewFailure(core.KindHistogram, core.ErrParse(
			fmt.Sprintf("no histogram rows found in %d bytes of jmap output", len(out))))
	}
	if !sawTotal {
		rec.TotalInstances = sumInstances
		rec.TotalBytes = sumBytes
	}
	return rec
}

func parseHistogramRow(fields []string) (HistogramEntry, bool) {
	if len(fields) < 4 || !strings.HasSuffix(fields[0], ":") {
		return HistogramEntry{}, false
	}
	rank, err := strconv.Atoi(strings.TrimSuffix(fields[0], ":"))
	if err != nil {
		return HistogramEntry{}, false
	}
	instances, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return HistogramEntry{}, false
	}
	bytes, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return HistogramEntry{}, false
	}
	e := HistogramEntry{Rank: rank, Instances: instances, Bytes: bytes, ClassName: fields[3]}
	if len(fields) > 4 {
		e.Module = strings.Trim(strings.Join(fields[4:], " "), "()")
	}
	return e, true
}

// MemorySection is one titled block of `jmap -heap` output.
type MemorySection struct {
	Name    string            `json:"name" yaml:"name"`
	Entries map[string]string `json:"entries" yaml:"entries"`
	Notes   []string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// MemoryInfo is the record for get_memory_info.
type MemoryInfo struct {
	core.Status
	GC       string          `json:"gc,omitempty" yaml:"gc,omitempty"`
	Sections []MemorySection `json:"sections" yaml:"sections"`
}

// RecordKind implements core.Record.
func (*MemoryInfo) RecordKind() core.OutputKind { return core.KindMemoryInfo }

// MemoryInfoCommand runs `jmap -heap <pid>`.
type MemoryInfoCommand struct{ base }

// NewMemoryInfo creates the get_memory_info command.
func NewMemoryInfo() *MemoryInfoCommand {
	return &MemoryInfoCommand{base{
		name:        "get_memory_info",
		description: "Heap configuration and per-generation usage (jmap -heap)",
		kind:        core.KindMemoryInfo,
		timeout:     60 * time.Second,
		ttl:         2 * time.Second,
	}}
}

// Prepare implements Command.
func (c *MemoryInfoCommand) Prepare(args Args) (*Invocation, error) {
	var p pidParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	return c.invocation("jmap", []string{"-heap", p.PID}, p, func(res core.ExecutionResult) core.Record {
		return ParseMemoryInfo(res.Stdout)
	}), nil
}

// ParseMemoryInfo splits `jmap -heap` output into sections. A line ending in
// ':' opens a section, `key = value` lines fill it and any other line inside
// a section is kept as a note ("45.2% used").
func ParseMemoryInfo(out string) core.Record {
	rec := &MemoryInfo{Status: core.OK(), Sections: []MemorySection{}}
	var cur *MemorySection
	flush := func() {
		if cur != nil {
			rec.Sections = append(rec.Sections, *cur)
			cur = nil
		}
	}

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.Contains(line, "=") {
			flush()
			cur = &MemorySection{Name: strings.TrimSuffix(line, ":"), Entries: map[string]string{}}
			continue
		}
		if key, val, ok := strings.Cut(line, "="); ok && cur != nil {
			cur.Entries[strings.TrimSpace(key)] = strings.TrimSpace(val)
			continue
		}
		if cur == nil {
			if strings.Contains(line, " GC ") || strings.HasSuffix(line, " GC") ||
				strings.HasPrefix(line, "Parallel GC") || strings.Contains(line, "(G1)") {
				rec.GC = line
			}
			continue
		}
		cur.Notes = append(cur.Notes, line)
	}
	flush()

	if len(rec.Sections) == 0 {
		return core.NewFailure(core.KindMemoryInfo, core.ErrParse(
			fmt.Sprintf("no heap sections found in %d bytes of jmap output", len(out))))
	}
	return rec
}

// HeapDump is the record for heap_dump.
type HeapDump struct {
	core.Status
	File    string `json:"file" yaml:"file"`
	Created bool   `json:"created" yaml:"created"`
	Live    bool   `json:"live" yaml:"live"`
}

// RecordKind implements core.Record.
func (*HeapDump) RecordKind() core.OutputKind { return core.KindHeapDump }

type heapDumpParams struct {
	PID  string `mapstructure:"pid" validate:"required,pid"`
	File string `mapstructure:"file" validate:"required,excludesall=0x2C"`
	Live bool   `mapstructure:"live"`
}

// HeapDumpCommand runs `jmap -dump:[live,]format=b,file=<path> <pid>`.
type HeapDumpCommand struct{ base }

// NewHeapDump creates the heap_dump command.
func NewHeapDump() *HeapDumpCommand {
	return &HeapDumpCommand{base{
		name:        "heap_dump",
		description: "Write an hprof heap dump on the target host (jmap -dump)",
		kind:        core.KindHeapDump,
		timeout:     5 * time.Minute,
	}}
}

// Prepare implements Command.
func (c *HeapDumpCommand) Prepare(args Args) (*Invocation, error) {
	var p heapDumpParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	opt := "-dump:format=b,file=" + p.File
	if p.Live {
		opt = "-dump:live,format=b,file=" + p.File
	}
	return c.invocation("jmap", []string{opt, p.PID}, p, func(res core.ExecutionResult) core.Record {
		return ParseHeapDump(res.Stdout, p.File, p.Live)
	}), nil
}

// ParseHeapDump reads the dump path from "Dumping heap to <file> ...",
// falling back to the requested path.
func ParseHeapDump(out, requested string, live bool) core.Record {
	rec := &HeapDump{Status: core.OK(), File: requested, Live: live}
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if _, after, ok := strings.Cut(line, "Dumping heap to"); ok {
			if f := strings.Fields(after); len(f) > 0 {
				rec.File = f[0]
			}
		}
		if strings.Contains(line, "Heap dump file created") {
			rec.Created = true
		}
	}
	return rec
}
