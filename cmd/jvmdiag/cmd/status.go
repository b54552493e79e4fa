package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [pid]",
	Short: "Summarize threads, JVM info and memory for one JVM",
	Long: `Collect a thread summary, JVM flags and properties, and heap information for
one JVM. Without a pid, the first JVM that is not a JDK tool or a known
diagnostic agent is selected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pid := ""
	if len(args) == 1 {
		pid = args[0]
	}
	rec := a.facade.Status(cmd.Context(), a.target, pid)
	return printRecord(cmd, rec)
}
