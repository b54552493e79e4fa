package jdk

import (
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// Placeholder is a registered operation with no JDK tool behind it yet.
// Prepare always fails with a terminal not_implemented error, so callers
// get a failure record without anything being executed.
type Placeholder struct{ base }

func newPlaceholder(name, description string, kind core.OutputKind) *Placeholder {
	return &Placeholder{base{name: name, description: description, kind: kind, timeout: time.Second}}
}

// Prepare implements Command.
func (c *Placeholder) Prepare(Args) (*Invocation, error) {
	return nil, core.ErrNotImplemented(c.name)
}

// LoggerLevel is one configured logger.
type LoggerLevel struct {
	Name           string   `json:"name" yaml:"name"`
	Level          string   `json:"level,omitempty" yaml:"level,omitempty"`
	EffectiveLevel string   `json:"effective_level,omitempty" yaml:"effective_level,omitempty"`
	Appenders      []string `json:"appenders,omitempty" yaml:"appenders,omitempty"`
}

// LoggerInfo is the record shape of the logger operations. Both are
// placeholders, so calls to them currently end in a *core.Failure of this
// kind.
type LoggerInfo struct {
	core.Status
	Loggers []LoggerLevel `json:"loggers" yaml:"loggers"`
}

// RecordKind implements core.Record.
func (*LoggerInfo) RecordKind() core.OutputKind { return core.KindLoggerInfo }

// Placeholders returns the operations that are declared but not implemented.
func Placeholders() []Command {
	return []Command{
		newPlaceholder("get_stack_trace_by_method", "Stack traces of calls to a method", core.KindThreadDump),
		newPlaceholder("decompile_class", "Decompile a loaded class to source", core.KindClassStructure),
		newPlaceholder("watch_method", "Watch method arguments and return values", core.KindNone),
		newPlaceholder("search_method", "Search loaded methods by pattern", core.KindClassInfo),
		newPlaceholder("get_logger_info", "Logger configuration of the application", core.KindLoggerInfo),
		newPlaceholder("set_logger_level", "Change a logger's level at runtime", core.KindLoggerInfo),
		newPlaceholder("get_dashboard", "Live dashboard of threads, memory and GC", core.KindStatus),
	}
}
