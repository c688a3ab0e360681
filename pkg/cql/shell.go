package cql

import (
	"context"
	"strconv"

	"github.com/galleyhq/galley/internal/process"
)

// DefaultShellCommand is the external client binary.
const DefaultShellCommand = "cqlsh"

// Shell invokes the external CQL client:
//
//	cqlsh [-f file] [-e stmt] [-k keyspace] [-u user -p pass] host [port]
//
// Success is exit status 0.
type Shell struct {
	Command  string
	Host     string
	Port     int
	Username string
	Password string
	Runner   process.Runner
}

// NewShell returns a Shell for the first contact point in cfg.
func NewShell(command string, cfg Config) *Shell {
	if command == "" {
		command = DefaultShellCommand
	}
	sh := &Shell{
		Command: command,
		Port:    cfg.Port,
		Runner:  process.ExecRunner{},
	}
	if len(cfg.ContactPoints) > 0 {
		sh.Host = cfg.ContactPoints[0]
	}
	if cfg.AuthEnabled() {
		sh.Username = cfg.Username
		sh.Password = cfg.Password
	}
	return sh
}

// Args builds the argument list for one invocation. Empty file, stmt, or
// keyspace values are omitted.
func (s *Shell) Args(file, stmt, keyspace string) []string {
	var args []string
	if file != "" {
		args = append(args, "-f", file)
	}
	if stmt != "" {
		args = append(args, "-e", stmt)
	}
	if keyspace != "" {
		args = append(args, "-k", keyspace)
	}
	if s.Username != "" && s.Password != "" {
		args = append(args, "-u", s.Username, "-p", s.Password)
	}
	if s.Host != "" {
		args = append(args, s.Host)
		if s.Port != 0 {
			args = append(args, strconv.Itoa(s.Port))
		}
	}
	return args
}

// RunFile executes a CQL file, optionally against keyspace.
func (s *Shell) RunFile(ctx context.Context, file, keyspace string) (*process.Result, error) {
	return s.run(ctx, s.Args(file, "", keyspace))
}

// Execute runs a single inline statement.
func (s *Shell) Execute(ctx context.Context, stmt string) (*process.Result, error) {
	return s.run(ctx, s.Args("", stmt, ""))
}

func (s *Shell) run(ctx context.Context, args []string) (*process.Result, error) {
	r := s.Runner
	if r == nil {
		r = process.ExecRunner{}
	}
	return r.Run(ctx, process.Command{Name: s.Command, Args: args})
}
