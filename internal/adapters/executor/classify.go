package executor

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// exitCodeNotFound is what POSIX shells return for an unknown command.
const exitCodeNotFound = 127

var stderrPatterns = []struct {
	code    string
	needles []string
}{
	{core.CodeNoSuchProcess, []string{
		"no such process",
		"process not found",
		"is not a java process",
		"could not find process",
	}},
	{core.CodeAttachFailed, []string{
		"attachnotsupportedexception",
		"unable to open socket file",
		"unable to attach",
		"well-known file is not secure",
		"attach listener",
	}},
	{core.CodeClassNotFound, []string{
		"class not found",
		"could not find class",
	}},
	{core.CodeToolNotFound, []string{
		"command not found",
		"no such file or directory",
	}},
}

// ClassifyExit maps a non-zero exit into a terminal tool error. The JDK tools
// report the interesting failures (dead pid, attach refused, missing class)
// as free text, so classification is keyword based.
func ClassifyExit(tool string, res core.ExecutionResult) *core.DomainError {
	text := res.Stderr
	if strings.TrimSpace(text) == "" {
		text = res.Stdout
	}
	detail := firstLine(text)
	msg := fmt.Sprintf("%s exited with code %d", tool, res.ExitCode)
	if detail != "" {
		msg += ": " + detail
	}

	if res.ExitCode == exitCodeNotFound {
		return core.ErrTool(core.CodeToolNotFound, msg)
	}
	lower := strings.ToLower(text)
	for _, p := range stderrPatterns {
		if containsAny(lower, p.needles) {
			return core.ErrTool(p.code, msg)
		}
	}
	return core.ErrTool(core.CodeToolFailed, msg).WithDetail("exit_code", res.ExitCode)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// firstLine returns the first non-blank line of s, truncated for messages.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncate(line, 300)
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "... [truncated]"
	}
	return s
}
