package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/config"
)

const redacted = "********"

var (
	configInitForce bool
	configInitLocal bool
	configInitPath  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage jvmdiag configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default configuration file",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "write ./.jvmdiag.yaml instead of the user config")
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "write to this path")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := configInitTarget()
	if err != nil {
		return err
	}
	if err := config.InitConfigFile(path, configInitForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func configInitTarget() (string, error) {
	switch {
	case configInitPath != "":
		return configInitPath, nil
	case configInitLocal:
		return ".jvmdiag.yaml", nil
	default:
		return config.UserConfigPath()
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), outputFormat, redactConfig(*cfg))
}

// redactConfig returns a copy safe to print.
func redactConfig(cfg config.Config) config.Config {
	if cfg.Target.Password != "" {
		cfg.Target.Password = redacted
	}
	if cfg.Target.KeyPassphrase != "" {
		cfg.Target.KeyPassphrase = redacted
	}
	return cfg
}
