package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/internal/cqltest"
	"github.com/galleyhq/galley/internal/process"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/cql"
)

type fakeRunner struct {
	cmds []process.Command
	res  *process.Result
	err  error
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command) (*process.Result, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	if f.res == nil {
		return &process.Result{}, nil
	}
	return f.res, nil
}

func writeArtifact(t *testing.T, name, content string, kind artifact.Kind) artifact.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return artifact.Artifact{ID: name, Path: path, Kind: kind}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "two statements",
			script: "CREATE TABLE a (id int PRIMARY KEY);\nCREATE TABLE b (id int PRIMARY KEY);\n",
			want:   []string{"CREATE TABLE a (id int PRIMARY KEY)", "CREATE TABLE b (id int PRIMARY KEY)"},
		},
		{
			name:   "empty segments skipped",
			script: " ; ;\n\nALTER TABLE a ADD name text;;",
			want:   []string{"ALTER TABLE a ADD name text"},
		},
		{
			name:   "no trailing delimiter",
			script: "DROP TABLE a",
			want:   []string{"DROP TABLE a"},
		},
		{
			name:   "empty file",
			script: "",
			want:   []string{},
		},
		{
			// Documented limitation: delimiters inside literals still split.
			name:   "delimiter in literal splits naively",
			script: "INSERT INTO a (id, v) VALUES (1, 'x;y');",
			want:   []string{"INSERT INTO a (id, v) VALUES (1, 'x", "y')"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestStatements_ExecutesInOrder(t *testing.T) {
	s := cqltest.NewSession()
	a := writeArtifact(t, "202401010000_a.cql", "CREATE TABLE x (id int PRIMARY KEY);\nCREATE INDEX ON x (id);", artifact.KindStatement)

	ex := &Statements{Session: s, Log: zaptest.NewLogger(t)}
	require.NoError(t, ex.Execute(context.Background(), a))
	assert.Equal(t, []string{"CREATE TABLE x (id int PRIMARY KEY)", "CREATE INDEX ON x (id)"}, s.Statements())
}

func TestStatements_FailFast(t *testing.T) {
	s := cqltest.NewSession()
	s.ExecErr = cqltest.FailOn("second", errors.New("InvalidRequest"))
	a := writeArtifact(t, "202401010000_a.cql", "CREATE TABLE first (id int PRIMARY KEY);\nCREATE TABLE second (id int PRIMARY KEY);\nCREATE TABLE third (id int PRIMARY KEY);", artifact.KindStatement)

	ex := &Statements{Session: s}
	err := ex.Execute(context.Background(), a)
	require.Error(t, err)
	assert.True(t, galley.IsPartialApplicationErr(err))

	var pe *galley.PartialApplicationError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "202401010000_a.cql", pe.Artifact)
	assert.Equal(t, "CREATE TABLE second (id int PRIMARY KEY)", pe.Statement)

	// The third statement is never attempted.
	assert.Equal(t, []string{"CREATE TABLE first (id int PRIMARY KEY)"}, s.Statements())
}

func TestStatements_MissingFile(t *testing.T) {
	ex := &Statements{Session: cqltest.NewSession()}
	err := ex.Execute(context.Background(), artifact.Artifact{ID: "x.cql", Path: filepath.Join(t.TempDir(), "x.cql")})
	require.Error(t, err)
	assert.False(t, galley.IsPartialApplicationErr(err))
}

func TestClient(t *testing.T) {
	a := writeArtifact(t, "202401010000_a.cql", "CREATE TABLE x (id int PRIMARY KEY);", artifact.KindStatement)

	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{}
		sh := cql.NewShell("cqlsh", cql.Config{ContactPoints: []string{"db"}})
		sh.Runner = runner

		ex := &Client{Shell: sh, Keyspace: "app"}
		require.NoError(t, ex.Execute(context.Background(), a))
		require.Len(t, runner.cmds, 1)
		assert.Equal(t, []string{"-f", a.Path, "-k", "app", "db"}, runner.cmds[0].Args)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		runner := &fakeRunner{res: &process.Result{ExitCode: 2, Stdout: []byte("SyntaxException")}}
		sh := cql.NewShell("cqlsh", cql.Config{ContactPoints: []string{"db"}})
		sh.Runner = runner

		ex := &Client{Shell: sh, Keyspace: "app", Log: zaptest.NewLogger(t)}
		err := ex.Execute(context.Background(), a)

		var pe *galley.PartialApplicationError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 2, pe.ExitCode)
		assert.Equal(t, "SyntaxException", pe.Output)
		assert.Contains(t, err.Error(), "SyntaxException")
	})

	t.Run("client missing", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("executable file not found")}
		sh := cql.NewShell("cqlsh", cql.Config{ContactPoints: []string{"db"}})
		sh.Runner = runner

		err := (&Client{Shell: sh, Keyspace: "app"}).Execute(context.Background(), a)
		assert.True(t, galley.IsTransportErr(err))
	})
}

func TestScript_Environment(t *testing.T) {
	env := map[string]string{"ENVIRONMENT": "staging", "AWS_SECRET_ACCESS_KEY": "nope", "HOME": "/root"}
	s := &Script{
		AllowEnv:  []string{"ENVIRONMENT", "PYTHONPATH"},
		SetEnv:    map[string]string{"PYTHONPATH": "/app"},
		lookupEnv: func(k string) (string, bool) { v, ok := env[k]; return v, ok },
	}
	assert.Equal(t, []string{"ENVIRONMENT=staging", "PYTHONPATH=/app"}, s.Environment())
}

func TestScript_EmptyEnvironmentIsNotInherited(t *testing.T) {
	s := &Script{lookupEnv: func(string) (string, bool) { return "", false }}
	env := s.Environment()
	assert.NotNil(t, env)
	assert.Empty(t, env)
}

func TestScript_Command(t *testing.T) {
	a := writeArtifact(t, "202401010000_backfill.py", "print('ok')", artifact.KindProcedural)

	t.Run("interpreter with fixed dir", func(t *testing.T) {
		s := &Script{Interpreter: "python3", Dir: "/app/db/data"}
		cmd := s.Command(a)
		assert.Equal(t, "python3", cmd.Name)
		assert.Equal(t, []string{a.Path}, cmd.Args)
		assert.Equal(t, "/app/db/data", cmd.Dir)
	})

	t.Run("direct execution defaults dir to artifact dir", func(t *testing.T) {
		s := &Script{}
		cmd := s.Command(a)
		assert.Equal(t, a.Path, cmd.Name)
		assert.Empty(t, cmd.Args)
		assert.Equal(t, filepath.Dir(a.Path), cmd.Dir)
	})
}

func TestScript_Execute(t *testing.T) {
	a := writeArtifact(t, "202401010000_backfill.py", "import sys; sys.exit(1)", artifact.KindProcedural)

	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{}
		s := &Script{Interpreter: "python3", Runner: runner}
		require.NoError(t, s.Execute(context.Background(), a))
		require.Len(t, runner.cmds, 1)
	})

	t.Run("failure surfaces stdout and stderr", func(t *testing.T) {
		runner := &fakeRunner{res: &process.Result{
			ExitCode: 3,
			Stdout:   []byte("updated 10 rows\n"),
			Stderr:   []byte("Traceback: boom\n"),
		}}
		core, logs := observer.New(zapcore.ErrorLevel)
		s := &Script{Interpreter: "python3", Runner: runner, Log: zap.New(core)}

		err := s.Execute(context.Background(), a)
		var pe *galley.PartialApplicationError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 3, pe.ExitCode)
		assert.Equal(t, "updated 10 rows\nTraceback: boom\n", pe.Output)
		assert.Contains(t, err.Error(), "updated 10 rows")
		assert.Contains(t, err.Error(), "Traceback: boom")

		entries := logs.FilterField(zap.String("output", "updated 10 rows\nTraceback: boom\n")).All()
		require.Len(t, entries, 1)
		assert.Equal(t, "Script failed, migration partially applied", entries[0].Message)
	})
}

func TestByKind(t *testing.T) {
	var ran []string
	rec := func(tag string) Executor {
		return Func(func(_ context.Context, a artifact.Artifact) error {
			ran = append(ran, tag+":"+a.ID)
			return nil
		})
	}
	ex := ByKind{
		artifact.KindStatement:  rec("cql"),
		artifact.KindProcedural: rec("py"),
	}

	ctx := context.Background()
	require.NoError(t, ex.Execute(ctx, artifact.Artifact{ID: "a.cql", Kind: artifact.KindStatement}))
	require.NoError(t, ex.Execute(ctx, artifact.Artifact{ID: "b.py", Kind: artifact.KindProcedural}))
	assert.Equal(t, []string{"cql:a.cql", "py:b.py"}, ran)

	err := ByKind{}.Execute(ctx, artifact.Artifact{ID: "c.cql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no executor")
}
