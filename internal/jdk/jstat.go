package jdk

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// JstatSample maps column names to values for one jstat row. Columns the
// JVM reports as `-` are absent.
type JstatSample map[string]float64

// JstatResult is the record for get_jstat.
type JstatResult struct {
	core.Status
	Option      string        `json:"option" yaml:"option"`
	Columns     []string      `json:"columns" yaml:"columns"`
	Samples     []JstatSample `json:"samples" yaml:"samples"`
	DroppedRows int           `json:"dropped_rows" yaml:"dropped_rows"`
	Warnings    []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// RecordKind implements core.Record.
func (*JstatResult) RecordKind() core.OutputKind { return core.KindJstat }

// Options whose columns are all numeric. gccause and printcompilation print
// free text and are not offered.
const jstatOptions = "class compiler gc gccapacity gcnew gcnewcapacity gcold gcoldcapacity gcmetacapacity gcutil"

// jstatParams requires a count with an interval; without one jstat samples
// until killed.
type jstatParams struct {
	PID       string `mapstructure:"pid" validate:"required,pid"`
	Option    string `mapstructure:"option" validate:"omitempty,oneof=class compiler gc gccapacity gcnew gcnewcapacity gcold gcoldcapacity gcmetacapacity gcutil"`
	Interval  int    `mapstructure:"interval" validate:"gte=0,required_with=Count"`
	Count     int    `mapstructure:"count" validate:"required_with=Interval,gte=0,lte=1000"`
	Timestamp bool   `mapstructure:"timestamp"`
}

// JstatCommand runs `jstat -<option> [-t] <pid> [interval count]`.
type JstatCommand struct{ base }

// NewJstat creates the get_jstat command.
func NewJstat() *JstatCommand {
	return &JstatCommand{base{
		name:        "get_jstat",
		description: "GC, class loading and compiler statistics sampled by jstat (option: " + jstatOptions + ")",
		kind:        core.KindJstat,
		timeout:     30 * time.Second,
	}}
}

// Prepare implements Command.
func (c *JstatCommand) Prepare(args Args) (*Invocation, error) {
	var p jstatParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	if p.Option == "" {
		p.Option = "gc"
	}
	argv := []string{"-" + p.Option}
	if p.Timestamp {
		argv = append(argv, "-t")
	}
	argv = append(argv, p.PID)
	if p.Interval > 0 {
		argv = append(argv, strconv.Itoa(p.Interval)+"ms", strconv.Itoa(p.Count))
	}
	inv := c.invocation("jstat", argv, p, func(res core.ExecutionResult) core.Record {
		return ParseJstat(res.Stdout, p.Option)
	})
	// Sampling runs for interval*count; the attempt timeout covers it.
	if p.Interval > 0 {
		sampling := time.Duration(p.Interval) * time.Millisecond * time.Duration(p.Count)
		inv.Spec = inv.Spec.WithTimeout(c.timeout + sampling)
	}
	return inv, nil
}

// ParseJstat reads the first non-empty line as the column header and every
// following line as a sample. Repeated headers are skipped. Rows with the
// wrong number of columns or a non-numeric cell are dropped and counted,
// each with a warning.
func ParseJstat(out, option string) core.Record {
	rec := &JstatResult{Status: core.OK(), Option: option, Samples: []JstatSample{}}

	lineNo := 0
	for _, raw := range strings.Split(out, "\n") {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		lineNo++
		if rec.Columns == nil {
			rec.Columns = fields
			continue
		}
		if slices.Equal(fields, rec.Columns) {
			continue
		}
		sample, err := parseJstatRow(rec.Columns, fields)
		if err != nil {
			rec.DroppedRows++
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("line %d dropped: %v", lineNo, err))
			continue
		}
		rec.Samples = append(rec.Samples, sample)
	}

	if rec.Columns == nil {
		return core.NewFailure(core.KindJstat, core.ErrParse(
			fmt.Sprintf("no header row found in %d bytes of jstat output", len(out))))
	}
	return rec
}

func parseJstatRow(columns, fields []string) (JstatSample, error) {
	if len(fields) != len(columns) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(columns), len(fields))
	}
	sample := make(JstatSample, len(columns))
	for i, cell := range fields {
		if cell == "-" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: non-numeric value %q", columns[i], cell)
		}
		sample[columns[i]] = v
	}
	return sample, nil
}
