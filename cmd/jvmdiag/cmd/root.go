package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/config"
)

// skipConfigAnnotation marks commands that must work without a loadable
// configuration, such as `config init --force` over a broken file.
const skipConfigAnnotation = "jvmdiag/skip-config"

// errRecordFailed signals a failed diagnostic record. The record itself has
// already been printed, so Execute only sets the exit code.
var errRecordFailed = errors.New("diagnostic call failed")

var (
	cfgFile      string
	outputFormat string

	appCfg *config.Config

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "jvmdiag",
	Short: "Diagnose running JVMs with the JDK command-line tools",
	Long: `jvmdiag runs jps, jstack, jmap, jinfo, jstat, jcmd and javap against JVMs
on this machine or on a remote host over SSH, and turns their text output
into structured records.

Set target.host (or JVMDIAG_TARGET_HOST) to diagnose a remote host.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if _, skip := cmd.Annotations[skipConfigAnnotation]; skip {
			return nil
		}
		return initConfig()
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errRecordFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "",
		"config file (default: ./.jvmdiag.yaml or ~/.config/jvmdiag/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (auto, text, json)")
	flags.StringVarP(&outputFormat, "output", "o", "json", "output format (json, yaml, table)")
	flags.String("host", "", "remote host or user@host (default: local)")
	flags.Int("port", 22, "remote SSH port")
	flags.String("user", "", "remote SSH user")
	flags.String("key-file", "", "SSH private key file")
	flags.String("known-hosts", "", "known_hosts file for host key verification")
	flags.Int("max-concurrency", 4, "maximum concurrent tool executions")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("target.host", flags.Lookup("host"))
	_ = viper.BindPFlag("target.port", flags.Lookup("port"))
	_ = viper.BindPFlag("target.user", flags.Lookup("user"))
	_ = viper.BindPFlag("target.key_file", flags.Lookup("key-file"))
	_ = viper.BindPFlag("target.known_hosts", flags.Lookup("known-hosts"))
	_ = viper.BindPFlag("execution.max_concurrency", flags.Lookup("max-concurrency"))
}

func initConfig() error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	appCfg = cfg
	return nil
}

// currentConfig returns the loaded configuration, loading it on demand for
// callers that bypass PersistentPreRunE.
func currentConfig() (*config.Config, error) {
	if appCfg != nil {
		return appCfg, nil
	}
	if err := initConfig(); err != nil {
		return nil, err
	}
	return appCfg, nil
}
