package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
)

var invokeArgsJSON string

var invokeCmd = &cobra.Command{
	Use:   "invoke <tool> [key=value...]",
	Short: "Run a diagnostic tool",
	Long: `Run one diagnostic tool against the configured target and print its record.

Arguments are key=value pairs; numeric and boolean values may be given as
strings. Use --args for a JSON object instead.

Examples:
  jvmdiag invoke get_thread_info pid=4242
  jvmdiag invoke get_thread_info pid=4242 name=worker
  jvmdiag invoke get_memory_histogram pid=4242 live=true max_matches=20
  jvmdiag invoke get_class_info pid=4242 class_pattern='com.acme.*' show_detail=true
  jvmdiag invoke run_jcmd --args '{"pid":"4242","subcommand":"VM.uptime"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeArgsJSON, "args", "", "tool arguments as a JSON object")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	toolArgs, err := parseToolArgs(args[1:], invokeArgsJSON)
	if err != nil {
		return err
	}

	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec := a.facade.Invoke(cmd.Context(), a.target, args[0], toolArgs)
	return printRecord(cmd, rec)
}

// parseToolArgs merges a JSON object with key=value pairs; pairs win.
func parseToolArgs(pairs []string, rawJSON string) (jdk.Args, error) {
	out := jdk.Args{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &out); err != nil {
			return nil, fmt.Errorf("--args: %w", err)
		}
	}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q: expected key=value", p)
		}
		out[key] = value
	}
	return out, nil
}

// printRecord renders rec to stdout and maps a failed record to a non-zero
// exit.
func printRecord(cmd *cobra.Command, rec core.Record) error {
	if err := render(cmd.OutOrStdout(), outputFormat, rec); err != nil {
		return err
	}
	if !rec.Succeeded() {
		return errRecordFailed
	}
	return nil
}
