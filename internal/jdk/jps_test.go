package jdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

func TestParseProcessList(t *testing.T) {
	rec := ParseProcessList("12345 com.example.App --flag\n67890 ArthasBootstrap\n")

	require.True(t, rec.Succeeded())
	require.Len(t, rec.Processes, 2)
	assert.Equal(t, "12345", rec.Processes[0].PID)
	assert.Equal(t, "com.example.App", rec.Processes[0].Name)
	assert.Equal(t, "--flag", rec.Processes[0].Args)
	assert.Equal(t, "67890", rec.Processes[1].PID)
	assert.Empty(t, rec.Processes[1].Args)
}

func TestParseProcessList_SkipsMalformedLines(t *testing.T) {
	out := "garbage\n\nabc com.example.Main\n42 sun.tools.jps.Jps -Dapplication.home=/opt/jdk -Xms8m\n"
	rec := ParseProcessList(out)

	require.Len(t, rec.Processes, 1)
	assert.Equal(t, "42", rec.Processes[0].PID)
	assert.Equal(t, "-Dapplication.home=/opt/jdk -Xms8m", rec.Processes[0].Args)
}

func TestParseProcessList_Empty(t *testing.T) {
	rec := ParseProcessList("")
	assert.True(t, rec.Succeeded())
	assert.Empty(t, rec.Processes)
}

func TestListProcesses_Prepare(t *testing.T) {
	inv, err := NewListProcesses().Prepare(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"jps", "-l", "-v"}, inv.Spec.Argv())
	assert.Equal(t, core.KindProcessList, inv.Spec.Kind())

	_, err = NewListProcesses().Prepare(Args{"pid": "1"})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestPrepare_PIDValidation(t *testing.T) {
	cmd := NewThreadDump()
	tests := []struct {
		name string
		args Args
		code string
	}{
		{"missing", Args{}, core.CodeMissingArgument},
		{"empty", Args{"pid": ""}, core.CodeMissingArgument},
		{"non numeric", Args{"pid": "12a"}, core.CodeInvalidArgument},
		{"negative", Args{"pid": "-1"}, core.CodeInvalidArgument},
		{"unknown argument", Args{"pid": "1", "verbose": true}, core.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cmd.Prepare(tt.args)
			require.Error(t, err)
			de := core.AsDomainError(err)
			assert.Equal(t, core.ErrCatValidation, de.Category)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestPrepare_NumericPIDAccepted(t *testing.T) {
	inv, err := NewThreadDump().Prepare(Args{"pid": 4242})
	require.NoError(t, err)
	assert.Equal(t, []string{"jstack", "-l", "4242"}, inv.Spec.Argv())
	assert.Equal(t, 1, int(inv.TTL.Seconds()))
}
