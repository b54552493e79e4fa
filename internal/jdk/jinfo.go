package jdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// JvmBasicInfo is the record for get_jvm_info.
type JvmBasicInfo struct {
	core.Status
	Version          string            `json:"version,omitempty" yaml:"version,omitempty"`
	Flags            []string          `json:"flags" yaml:"flags"`
	CommandLine      string            `json:"command_line,omitempty" yaml:"command_line,omitempty"`
	JVMArgs          string            `json:"jvm_args,omitempty" yaml:"jvm_args,omitempty"`
	JavaCommand      string            `json:"java_command,omitempty" yaml:"java_command,omitempty"`
	ClassPath        string            `json:"class_path,omitempty" yaml:"class_path,omitempty"`
	SystemProperties map[string]string `json:"system_properties" yaml:"system_properties"`
}

// RecordKind implements core.Record.
func (*JvmBasicInfo) RecordKind() core.OutputKind { return core.KindJvmInfo }

type jinfoParams struct {
	PID    string `mapstructure:"pid" validate:"required,pid"`
	Option string `mapstructure:"option" validate:"omitempty,oneof=all flags sysprops"`
}

// JvmInfoCommand runs `jinfo [-flags|-sysprops] <pid>`.
type JvmInfoCommand struct{ base }

// NewJvmInfo creates the get_jvm_info command.
func NewJvmInfo() *JvmInfoCommand {
	return &JvmInfoCommand{base{
		name:        "get_jvm_info",
		description: "JVM version, flags and system properties (jinfo); option is all, flags or sysprops",
		kind:        core.KindJvmInfo,
		timeout:     30 * time.Second,
		ttl:         30 * time.Second,
	}}
}

// Prepare implements Command.
func (c *JvmInfoCommand) Prepare(args Args) (*Invocation, error) {
	var p jinfoParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	argv := []string{p.PID}
	switch p.Option {
	case "flags", "sysprops":
		argv = []string{"-" + p.Option, p.PID}
	default:
		p.Option = "all"
	}
	return c.invocation("jinfo", argv, p, func(res core.ExecutionResult) core.Record {
		return ParseJvmInfo(res.Stdout)
	}), nil
}

const (
	sectionNone = iota
	sectionProps
	sectionFlags
	sectionArgs
)

// ParseJvmInfo parses jinfo output. `Java System Properties:`, `VM Flags:`
// and `VM Arguments:` open sections; the JDK 8 forms (`JVM version is`,
// `Non-default VM flags:`, `Command line:`) are recognised anywhere.
func ParseJvmInfo(out string) core.Record {
	rec := &JvmBasicInfo{Status: core.OK(), Flags: []string{}, SystemProperties: map[string]string{}}
	section := sectionNone

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case line == "Java System Properties:":
			section = sectionProps
			continue
		case line == "VM Flags:":
			section = sectionFlags
			continue
		case line == "VM Arguments:":
			section = sectionArgs
			continue
		case strings.HasPrefix(line, "JVM version is "):
			rec.Version = strings.TrimSpace(strings.TrimPrefix(line, "JVM version is "))
			continue
		case strings.HasPrefix(line, "Non-default VM flags:"):
			rec.Flags = append(rec.Flags, flagTokens(strings.TrimPrefix(line, "Non-default VM flags:"))...)
			continue
		case strings.HasPrefix(line, "Command line:"):
			rec.CommandLine = strings.TrimSpace(strings.TrimPrefix(line, "Command line:"))
			continue
		case strings.HasPrefix(line, "Attaching to process"),
			strings.HasPrefix(line, "Debugger attached"),
			strings.HasSuffix(line, "compiler detected."):
			continue
		}

		switch section {
		case sectionProps:
			if strings.HasPrefix(line, "#") {
				continue
			}
			if key, val, ok := strings.Cut(line, "="); ok {
				rec.SystemProperties[strings.TrimSpace(key)] = unescapeProperty(val)
			}
		case sectionFlags:
			rec.Flags = append(rec.Flags, flagTokens(line)...)
		case sectionArgs:
			key, val, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			val = strings.TrimSpace(val)
			switch strings.TrimSpace(key) {
			case "jvm_args":
				rec.JVMArgs = val
			case "java_command":
				rec.JavaCommand = val
			case "java_class_path (initial)":
				rec.ClassPath = val
			}
		}
	}

	if rec.Version == "" {
		for _, key := range []string{"java.runtime.version", "java.version", "java.vm.version"} {
			if v := rec.SystemProperties[key]; v != "" {
				rec.Version = v
				break
			}
		}
	}
	if rec.Version == "" && len(rec.Flags) == 0 && len(rec.SystemProperties) == 0 && rec.CommandLine == "" {
		return core.NewFailure(core.KindJvmInfo, core.ErrParse(
			fmt.Sprintf("no flags or properties found in %d bytes of jinfo output", len(out))))
	}
	return rec
}

func flagTokens(s string) []string {
	var flags []string
	for _, tok := range strings.Fields(s) {
		if strings.HasPrefix(tok, "-") {
			flags = append(flags, tok)
		}
	}
	return flags
}

// unescapeProperty undoes java.util.Properties escaping of ':' '=' and '\'.
func unescapeProperty(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	r := strings.NewReplacer(`\:`, ":", `\=`, "=", `\\`, `\`, `\ `, " ")
	return r.Replace(v)
}
