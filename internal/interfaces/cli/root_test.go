package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// runCLI executes a fresh root command and returns what it wrote.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// localConfigFile writes a config for a local index under a temp directory.
func localConfigFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fpindex.yaml")
	content := fmt.Sprintf("log:\n  level: error\nindex:\n  backend: local\n  dir: %s\n", filepath.Join(dir, "index"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "fpindex", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"fingerprint", "search", "index", "snapshot", "events", "version"}, names)
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	tests := []struct {
		name string
		def  string
	}{
		{"config", ""},
		{"log-level", "warn"},
		{"output", OutputText},
		{"verbose", "false"},
		{"no-color", "false"},
		{"timeout", (5 * time.Minute).String()},
		{"server", os.Getenv("FPINDEX_SERVER")},
		{"api-key", os.Getenv("FPINDEX_API_KEY")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
	assert.Equal(t, "o", cmd.PersistentFlags().Lookup("output").Shorthand)
}

func TestNewRootCommand_SubcommandTree(t *testing.T) {
	cmd := NewRootCommand()
	tests := []struct {
		path []string
	}{
		{[]string{"index", "add"}},
		{[]string{"index", "delete"}},
		{[]string{"index", "rebuild"}},
		{[]string{"index", "stats"}},
		{[]string{"snapshot", "save"}},
		{[]string{"snapshot", "restore"}},
		{[]string{"events", "publish"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.path, " "), func(t *testing.T) {
			found, rest, err := cmd.Find(tt.path)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.path[len(tt.path)-1], found.Name())
		})
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fpindex "+Version)
	assert.Contains(t, out, "commit: "+GitCommit)
}

func TestPersistentPreRun_InvalidOutput(t *testing.T) {
	_, _, err := runCLI(t, "", "--config", localConfigFile(t), "-o", "yaml", "index", "stats")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestPersistentPreRun_MissingConfigFile(t *testing.T) {
	_, _, err := runCLI(t, "", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "index", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestPrintError(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetErr(&buf)

	PrintError(cmd, nil)
	assert.Empty(t, buf.String())

	PrintError(cmd, errors.InvalidParam("bad input").WithDetail("line 3"))
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "bad input")
	assert.Contains(t, buf.String(), "line 3")
}

func TestPrintResult_JSONWithoutContext(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, PrintResult(cmd, map[string]int{"docs": 3}, nil))
	assert.JSONEq(t, `{"docs":3}`, buf.String())
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer identifier", 10, "a longe..."},
		{"abc", 2, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateString(tt.in, tt.max))
		})
	}
}

//Personal.AI order the ending
