package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/config"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/jdk"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		Log:    config.LogConfig{Level: "error", Format: "text"},
		Target: config.TargetConfig{Port: 22, DialTimeout: "1s"},
		Execution: config.ExecutionConfig{
			MaxConcurrency: 2,
			Retry:          config.RetryConfig{MaxAttempts: 1, TimeoutAttempts: 1, BaseDelay: "10ms", MaxDelay: "20ms"},
		},
		Cache: config.CacheConfig{Enabled: true},
	}
}

func sampleRecord() core.Record {
	return jdk.ParseProcessList("4242 com.acme.Main -Xmx512m\n4300 sun.tools.jps.Jps -l\n")
}

func TestParseToolArgs(t *testing.T) {
	args, err := parseToolArgs([]string{"pid=42", "live=true", "class_pattern=a=b"}, `{"pid":"1","max_matches":5}`)
	require.NoError(t, err)

	assert.Equal(t, "42", args["pid"])
	assert.Equal(t, "true", args["live"])
	assert.Equal(t, "a=b", args["class_pattern"])
	assert.Equal(t, float64(5), args["max_matches"])
}

func TestParseToolArgs_Invalid(t *testing.T) {
	_, err := parseToolArgs([]string{"pid"}, "")
	assert.Error(t, err)

	_, err = parseToolArgs([]string{"=1"}, "")
	assert.Error(t, err)

	_, err = parseToolArgs(nil, "{not json")
	assert.Error(t, err)
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", sampleRecord()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.NotContains(t, out, "error")
	assert.Len(t, out["processes"], 2)
}

func TestRender_JSONGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", sampleRecord()))
	testutil.NewGolden(t, "testdata").Assert("process_list_json", buf.Bytes())
}

func TestRender_YAMLKeepsFieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "yaml", sampleRecord()))

	var out map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.Len(t, out["processes"], 2)
	assert.NotContains(t, buf.String(), "{", "collections should be block style")
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "table", sampleRecord()))

	out := buf.String()
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "processes")
	assert.Contains(t, out, "PID")
	assert.Contains(t, out, "com.acme.Main")
}

func TestRender_TableLargeNumbers(t *testing.T) {
	var buf bytes.Buffer
	rec := map[string]any{"success": true, "total_bytes": int64(123456789012)}
	require.NoError(t, render(&buf, "table", rec))
	assert.Contains(t, buf.String(), "123456789012")
}

func TestRender_UnknownFormat(t *testing.T) {
	err := render(&bytes.Buffer{}, "xml", sampleRecord())
	assert.Error(t, err)
}

func TestPrintRecord_FailureExitCode(t *testing.T) {
	var buf bytes.Buffer
	invokeCmd.SetOut(&buf)
	defer invokeCmd.SetOut(nil)

	failure := core.NewFailure(core.KindThreadDump, core.ErrTool(core.CodeNoSuchProcess, "no such process"))
	err := printRecord(invokeCmd, failure)
	assert.True(t, errors.Is(err, errRecordFailed))
	assert.Contains(t, buf.String(), `"success": false`)
	assert.Contains(t, buf.String(), "NO_SUCH_PROCESS")
}

func TestApplyToolOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.Tools = map[string]config.ToolConfig{
		"get_memory_histogram": {Timeout: "2m", CacheTTL: "0s"},
	}
	registry := jdk.NewRegistry()
	require.NoError(t, applyToolOverrides(registry, cfg))

	_, inv, err := registry.Prepare("get_memory_histogram", jdk.Args{"pid": "1"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, inv.Spec.Timeout())
	assert.Zero(t, inv.TTL)

	_, inv, err = registry.Prepare("get_thread_info", jdk.Args{"pid": "1"})
	require.NoError(t, err)
	assert.Positive(t, inv.TTL, "untouched tools keep their TTL")
}

func TestApplyToolOverrides_CacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = false
	registry := jdk.NewRegistry()
	require.NoError(t, applyToolOverrides(registry, cfg))

	for _, name := range []string{"list_java_processes", "get_thread_info", "get_class_structure"} {
		args := jdk.Args{"pid": "1"}
		switch name {
		case "list_java_processes":
			args = nil
		case "get_class_structure":
			args = jdk.Args{"class_name": "java.lang.String"}
		}
		_, inv, err := registry.Prepare(name, args)
		require.NoError(t, err, name)
		assert.Zero(t, inv.TTL, name)
	}
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Tools = map[string]config.ToolConfig{"no_such_tool": {Timeout: "1s"}}

	_, err := newApp(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tools.no_such_tool")
}

func TestNewApp_RemoteTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Target.Host = "app01"
	cfg.Target.User = "deploy"

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "deploy@app01:22", a.target.Identity())
}

func TestDiagnose_Local(t *testing.T) {
	lookPath := func(name string) (string, error) {
		if name == "javap" {
			return "", errors.New("not found")
		}
		return "/opt/jdk/bin/" + name, nil
	}

	report := diagnose(t.Context(), testConfig(), lookPath)
	assert.True(t, report.OK, "javap is optional: %+v", report.Checks)
	assert.Equal(t, "local", report.Target)
	require.NotNil(t, report.Host)

	byName := map[string]DoctorCheck{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	assert.True(t, byName["config"].OK)
	assert.Equal(t, "/opt/jdk/bin/jps", byName["jps"].Detail)
	assert.False(t, byName["javap"].OK)
}

func TestDiagnose_MissingJps(t *testing.T) {
	lookPath := func(string) (string, error) { return "", errors.New("not found") }
	report := diagnose(t.Context(), testConfig(), lookPath)
	assert.False(t, report.OK)
}

func TestDiagnose_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.MaxConcurrency = 0
	report := diagnose(t.Context(), cfg, nil)
	assert.False(t, report.OK)
	require.Len(t, report.Checks, 1)
	assert.Contains(t, report.Checks[0].Detail, "execution.max_concurrency")
}

func TestRedactConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Target.Password = "s3cret"
	cfg.Target.KeyPassphrase = "phrase"

	out := redactConfig(*cfg)
	assert.Equal(t, redacted, out.Target.Password)
	assert.Equal(t, redacted, out.Target.KeyPassphrase)
	assert.Equal(t, "s3cret", cfg.Target.Password, "original must be untouched")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"config", "init", "--path", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, string(data))

	rootCmd.SetArgs([]string{"config", "init", "--path", path})
	err = rootCmd.Execute()
	assert.ErrorIs(t, err, config.ErrConfigExists)

	configInitPath = ""
}

func TestToolsCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"tools", "-o", "json"})
	require.NoError(t, rootCmd.Execute())

	var tools []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &tools))
	assert.Len(t, tools, 17)

	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		names = append(names, tl["name"].(string))
	}
	assert.Contains(t, strings.Join(names, ","), "get_thread_info")
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	assert.Contains(t, out, "jvmdiag v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2026-01-15")
}
