// Package process runs external commands for the cqlsh client and data
// migration scripts.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string

	// Dir is the working directory. Empty means the caller's directory.
	Dir string

	// Env is the complete environment of the child. A nil Env inherits the
	// caller's environment; a non-nil empty Env gives the child none.
	Env []string
}

// Result is the outcome of a process that started.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// OK reports whether the process exited with status 0.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Output returns stdout followed by stderr.
func (r *Result) Output() string {
	if len(r.Stderr) == 0 {
		return string(r.Stdout)
	}
	return string(r.Stdout) + string(r.Stderr)
}

// Runner starts a command and waits for it.
// A non-zero exit is reported through Result, not as an error; the error is
// reserved for processes that could not be started at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, fmt.Errorf("running %s: %w", c.Name, err)
}
