package cmd

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/config"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/diagnostics"
)

// jdkTools are the executables the diagnostic commands invoke.
var jdkTools = []string{"jps", "jstack", "jmap", "jinfo", "jstat", "jcmd", "javap"}

// remoteProbeTimeout bounds the SSH reachability probe.
const remoteProbeTimeout = 20 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, JDK tools and target reachability",
	Long: `Verify that the configuration is valid, that the JDK tools are installed
(locally, or reachable over SSH for a remote target), and report host
resources.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// DoctorCheck is one line of the doctor report.
type DoctorCheck struct {
	Name     string `json:"name" yaml:"name"`
	OK       bool   `json:"ok" yaml:"ok"`
	Required bool   `json:"required" yaml:"required"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DoctorReport is printed by `jvmdiag doctor`.
type DoctorReport struct {
	OK     bool                     `json:"ok" yaml:"ok"`
	Target string                   `json:"target" yaml:"target"`
	Checks []DoctorCheck            `json:"checks" yaml:"checks"`
	Host   *diagnostics.HostMetrics `json:"host,omitempty" yaml:"host,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	report := diagnose(cmd.Context(), cfg, exec.LookPath)
	if err := render(cmd.OutOrStdout(), outputFormat, report); err != nil {
		return err
	}
	if !report.OK {
		return errRecordFailed
	}
	return nil
}

func diagnose(ctx context.Context, cfg *config.Config, lookPath func(string) (string, error)) DoctorReport {
	report := DoctorReport{OK: true, Target: "local"}
	add := func(c DoctorCheck) {
		report.Checks = append(report.Checks, c)
		if c.Required && !c.OK {
			report.OK = false
		}
	}

	a, err := newApp(cfg)
	if err != nil {
		add(DoctorCheck{Name: "config", Required: true, Detail: err.Error()})
		return report
	}
	defer a.Close()
	add(DoctorCheck{Name: "config", OK: true, Required: true})
	report.Target = a.target.Identity()

	if a.target.IsLocal() {
		for _, tool := range jdkTools {
			c := DoctorCheck{Name: tool, Required: tool == "jps"}
			if path, err := lookPath(tool); err == nil {
				c.OK, c.Detail = true, path
			} else {
				c.Detail = "not found on PATH"
			}
			add(c)
		}
		host := diagnostics.NewHostCollector("").Collect(ctx)
		report.Host = &host
		return report
	}

	add(probeRemote(ctx, a))
	return report
}

// probeRemote runs jps on the target, which proves the SSH connection works
// and a JDK is on the remote PATH.
func probeRemote(ctx context.Context, a *app) DoctorCheck {
	c := DoctorCheck{Name: "ssh " + a.target.Identity(), Required: true}

	spec := core.NewCommandSpec("jps", []string{"-l"}, core.KindProcessList, remoteProbeTimeout)
	res := a.router.Execute(ctx, a.target, spec)
	switch {
	case res.Succeeded:
		c.OK, c.Detail = true, "connected, jps available"
	case res.Err != nil && res.Err.Code == core.CodeToolNotFound:
		c.Detail = "connected, but jps is not on the remote PATH"
	case res.Err != nil:
		c.Detail = res.Err.Error()
	default:
		c.Detail = "jps exited with code " + strconv.Itoa(res.ExitCode)
	}
	return c
}
