package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/diagnostic"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
)

var toolsCmd = &cobra.Command{
	Use:         "tools",
	Short:       "List available diagnostic tools",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Listing needs no executor; use a bare facade over the built-in registry.
		f := diagnostic.New(nil, diagnostic.WithRegistry(jdk.NewRegistry()))
		return render(cmd.OutOrStdout(), outputFormat, f.Describe())
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
