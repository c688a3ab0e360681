package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/internal/process"
	"github.com/galleyhq/galley/pkg/artifact"
)

// Script runs a procedural artifact as its own process.
//
// The child sees only the variables named in AllowEnv (copied from this
// process when set) plus the fixed values in SetEnv. Its stdout is captured
// and returned in the error when it exits non-zero.
type Script struct {
	// Interpreter, if set, is invoked with the script path as its argument.
	// Otherwise the script itself is executed.
	Interpreter string

	// Dir is the working directory. Defaults to the directory of the artifact.
	Dir string

	AllowEnv []string
	SetEnv   map[string]string

	Runner process.Runner
	Log    *zap.Logger

	// lookupEnv is os.LookupEnv outside tests.
	lookupEnv func(string) (string, bool)
}

// Environment returns the child's environment as sorted KEY=value pairs.
func (s *Script) Environment() []string {
	lookup := s.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	vars := make(map[string]string, len(s.AllowEnv)+len(s.SetEnv))
	for _, name := range s.AllowEnv {
		if v, ok := lookup(name); ok {
			vars[name] = v
		}
	}
	for k, v := range s.SetEnv {
		vars[k] = v
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Command builds the process invocation for a. The script is always
// referenced by absolute path so it resolves regardless of Dir.
func (s *Script) Command(a artifact.Artifact) process.Command {
	path := a.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	cmd := process.Command{Name: path, Dir: s.Dir, Env: s.Environment()}
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(path)
	}
	if s.Interpreter != "" {
		cmd.Name = s.Interpreter
		cmd.Args = []string{path}
	}
	return cmd
}

// Execute implements Executor.
func (s *Script) Execute(ctx context.Context, a artifact.Artifact) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	runner := s.Runner
	if runner == nil {
		runner = process.ExecRunner{}
	}

	cmd := s.Command(a)
	log.Debug("Running data migration",
		zap.String("migration", a.ID),
		zap.String("command", cmd.Name),
		zap.String("dir", cmd.Dir))

	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("starting migration %s: %w", a.ID, err)
	}
	if !res.OK() {
		log.Error("Script failed, migration partially applied",
			zap.String("migration", a.ID),
			zap.Int("exit_code", res.ExitCode),
			zap.String("output", res.Output()))
		return &galley.PartialApplicationError{
			Artifact: a.ID,
			ExitCode: res.ExitCode,
			Output:   res.Output(),
		}
	}
	return nil
}
