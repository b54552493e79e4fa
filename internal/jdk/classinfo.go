package jdk

import (
	"context"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// structureWorkers bounds concurrent javap calls during enrichment.
const structureWorkers = 5

// ClassInfo is one histogram class matched by get_class_info.
type ClassInfo struct {
	ClassName string          `json:"class_name" yaml:"class_name"`
	Module    string          `json:"module,omitempty" yaml:"module,omitempty"`
	Rank      int             `json:"rank" yaml:"rank"`
	Instances int64           `json:"instances" yaml:"instances"`
	Bytes     int64           `json:"bytes" yaml:"bytes"`
	Structure *ClassStructure `json:"structure,omitempty" yaml:"structure,omitempty"`
}

// ClassInfoResult is the record for get_class_info.
type ClassInfoResult struct {
	core.Status
	Classes      []ClassInfo `json:"classes" yaml:"classes"`
	TotalMatches int         `json:"total_matches" yaml:"total_matches"`
	LimitedByMax bool        `json:"limited_by_max" yaml:"limited_by_max"`
	Warning      string      `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// RecordKind implements core.Record.
func (*ClassInfoResult) RecordKind() core.OutputKind { return core.KindClassInfo }

type classInfoParams struct {
	PID          string `mapstructure:"pid" validate:"required,pid"`
	ClassPattern string `mapstructure:"class_pattern"`
	UseRegex     bool   `mapstructure:"use_regex"`
	MaxMatches   int    `mapstructure:"max_matches" validate:"gte=0"`
	ShowDetail   bool   `mapstructure:"show_detail"`
	ShowField    bool   `mapstructure:"show_field"`
	Live         bool   `mapstructure:"live"`
	Classpath    string `mapstructure:"classpath" validate:"omitempty,startsnotwith=-"`
}

// ClassInfoCommand matches histogram classes against a pattern and, with
// show_detail, attaches each class's javap structure.
type ClassInfoCommand struct{ base }

// NewClassInfo creates the get_class_info command.
func NewClassInfo() *ClassInfoCommand {
	return &ClassInfoCommand{base{
		name:        "get_class_info",
		description: "Loaded classes matching a glob or regex with instance counts, optionally with their structure",
		kind:        core.KindClassInfo,
		timeout:     60 * time.Second,
		ttl:         30 * time.Second,
	}}
}

// Prepare implements Command.
func (c *ClassInfoCommand) Prepare(args Args) (*Invocation, error) {
	var p classInfoParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	inv := c.invocation("jmap", histoArgv(p.PID, p.Live), p, func(res core.ExecutionResult) core.Record {
		return ParseClassInfo(res.Stdout, p.ClassPattern, p.UseRegex, p.MaxMatches)
	})
	if p.ShowDetail {
		inv.Enrich = func(ctx context.Context, rec core.Record, run RunFunc) core.Record {
			return enrichClassInfo(ctx, rec, run, p)
		}
	}
	return inv, nil
}

// ParseClassInfo parses a histogram, keeps the rows whose class matches
// pattern and applies the maxMatches cap after filtering.
func ParseClassInfo(out, pattern string, useRegex bool, maxMatches int) core.Record {
	parsed := ParseHistogram(out, 0)
	hist, ok := parsed.(*Histogram)
	if !ok {
		return core.NewFailure(core.KindClassInfo, core.ErrParse(parsed.ErrorText()))
	}

	rows, warning := filterClasses(hist.Classes, pattern, useRegex)
	rec := &ClassInfoResult{Status: core.OK(), Classes: []ClassInfo{}, Warning: warning}
	for _, row := range rows {
		if maxMatches > 0 && len(rec.Classes) >= maxMatches {
			rec.LimitedByMax = true
			break
		}
		rec.Classes = append(rec.Classes, ClassInfo{
			ClassName: row.ClassName,
			Module:    row.Module,
			Rank:      row.Rank,
			Instances: row.Instances,
			Bytes:     row.Bytes,
		})
	}
	rec.TotalMatches = len(rec.Classes)
	return rec
}

// filterClasses matches case-insensitively: a glob against the whole class
// name, or a regex anywhere in it. A pattern that does not compile leaves
// the list unfiltered and is reported as a warning.
func filterClasses(rows []HistogramEntry, pattern string, useRegex bool) ([]HistogramEntry, string) {
	if pattern == "" {
		return rows, ""
	}
	var match func(string) bool
	if useRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return rows, "invalid regex ignored: " + err.Error()
		}
		match = re.MatchString
	} else {
		glob := strings.ToLower(pattern)
		if _, err := path.Match(glob, ""); err != nil {
			return rows, "invalid pattern ignored: " + err.Error()
		}
		match = func(name string) bool {
			ok, _ := path.Match(glob, strings.ToLower(name))
			return ok
		}
	}

	var out []HistogramEntry
	for _, row := range rows {
		if match(row.ClassName) {
			out = append(out, row)
		}
	}
	return out, ""
}

var primitiveTypes = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true,
}

// hasStructure reports whether javap can describe the class. Arrays and
// primitives have no class file.
func hasStructure(className string) bool {
	return !strings.HasPrefix(className, "[") && !primitiveTypes[className]
}

// enrichClassInfo runs get_class_structure for each matched class. A class
// whose structure cannot be fetched is returned without one. The input
// record may be shared through the cache, so a copy is returned.
func enrichClassInfo(ctx context.Context, rec core.Record, run RunFunc, p classInfoParams) core.Record {
	res, ok := rec.(*ClassInfoResult)
	if !ok || !res.Succeeded() || run == nil {
		return rec
	}
	out := *res
	out.Classes = make([]ClassInfo, len(res.Classes))
	copy(out.Classes, res.Classes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(structureWorkers)
	for i := range out.Classes {
		name := out.Classes[i].ClassName
		if !hasStructure(name) {
			continue
		}
		g.Go(func() error {
			args := Args{"class_name": name, "show_fields": p.ShowField}
			if p.Classpath != "" {
				args["classpath"] = p.Classpath
			}
			if cs, ok := run(gctx, "get_class_structure", args).(*ClassStructure); ok {
				out.Classes[i].Structure = cs
			}
			return nil
		})
	}
	_ = g.Wait()
	return &out
}
