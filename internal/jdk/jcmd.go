package jdk

import (
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// JcmdOutput is the record for run_jcmd.
type JcmdOutput struct {
	core.Status
	Subcommand string `json:"subcommand" yaml:"subcommand"`
	Output     string `json:"output" yaml:"output"`
}

// RecordKind implements core.Record.
func (*JcmdOutput) RecordKind() core.OutputKind { return core.KindJcmd }

type jcmdParams struct {
	PID        string `mapstructure:"pid" validate:"required,pid"`
	Subcommand string `mapstructure:"subcommand"`
}

var jcmdNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)

// JcmdCommand runs `jcmd <pid> <subcommand tokens...>`.
type JcmdCommand struct{ base }

// NewJcmd creates the run_jcmd command.
func NewJcmd() *JcmdCommand {
	return &JcmdCommand{base{
		name:        "run_jcmd",
		description: "Run a jcmd diagnostic command such as VM.flags or GC.heap_info (default: help)",
		kind:        core.KindJcmd,
		timeout:     60 * time.Second,
	}}
}

// Prepare implements Command. The subcommand string is split with shell
// word rules into separate arguments, never passed to a shell.
func (c *JcmdCommand) Prepare(args Args) (*Invocation, error) {
	var p jcmdParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	tokens, err := shellquote.Split(p.Subcommand)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidArgument, "subcommand: "+err.Error())
	}
	if len(tokens) == 0 {
		tokens = []string{"help"}
	}
	if !jcmdNamePattern.MatchString(tokens[0]) {
		return nil, core.ErrValidation(core.CodeInvalidArgument,
			"subcommand must start with a jcmd command name such as VM.flags, got "+tokens[0])
	}
	p.Subcommand = strings.Join(tokens, " ")
	argv := append([]string{p.PID}, tokens...)
	return c.invocation("jcmd", argv, p, func(res core.ExecutionResult) core.Record {
		return ParseJcmd(res.Stdout, p.PID, p.Subcommand)
	}), nil
}

// ParseJcmd strips the `<pid>:` line jcmd echoes before the command output.
func ParseJcmd(out, pid, subcommand string) core.Record {
	body := strings.TrimLeft(out, "\r\n")
	if first, rest, _ := strings.Cut(body, "\n"); strings.TrimSpace(first) == pid+":" {
		body = rest
	}
	return &JcmdOutput{
		Status:     core.OK(),
		Subcommand: subcommand,
		Output:     strings.TrimRight(body, "\r\n"),
	}
}
