package process

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	requireShell(t)

	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo oops >&2"},
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Equal(t, "hello\noops\n", res.Output())
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	requireShell(t)

	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo partial; exit 3"},
	})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "partial\n", string(res.Stdout))
}

func TestExecRunner_WorkingDirAndEnv(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "/bin/sh",
		Args: []string{"-c", "pwd; echo \"$ONLY\"; echo \"[$HOME]\""},
		Dir:  dir,
		Env:  []string{"ONLY=visible"},
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Contains(t, string(res.Stdout), "visible\n")
	assert.Contains(t, string(res.Stdout), "[]\n")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{Name: "galley-definitely-not-installed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "galley-definitely-not-installed")
}
