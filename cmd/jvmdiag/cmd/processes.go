package cmd

import (
	"github.com/spf13/cobra"
)

var processesCmd = &cobra.Command{
	Use:     "processes",
	Aliases: []string{"ps"},
	Short:   "List running JVMs on the target",
	Args:    cobra.NoArgs,
	RunE:    runProcesses,
}

func init() {
	rootCmd.AddCommand(processesCmd)
}

func runProcesses(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec := a.facade.Invoke(cmd.Context(), a.target, "list_java_processes", nil)
	return printRecord(cmd, rec)
}
