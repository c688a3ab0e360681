package migrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/internal/cqltest"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/executor"
	"github.com/galleyhq/galley/pkg/ledger"
)

// recordingExecutor records executed identifiers and fails those in failOn.
type recordingExecutor struct {
	ran    []string
	failOn map[string]error
}

func (r *recordingExecutor) Execute(_ context.Context, a artifact.Artifact) error {
	r.ran = append(r.ran, a.ID)
	if err := r.failOn[a.ID]; err != nil {
		return &galley.PartialApplicationError{Artifact: a.ID, Err: err}
	}
	return nil
}

type fixture struct {
	dir     string
	session *cqltest.Session
	ledger  *ledger.Ledger
	repo    *artifact.Repository
	exec    *recordingExecutor
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o644))
	}
	s := cqltest.NewSession()
	l, err := ledger.New(s, "app", ledger.WithMaster(true))
	require.NoError(t, err)
	return &fixture{
		dir:     dir,
		session: s,
		ledger:  l,
		repo:    artifact.NewRepository(dir, ".cql", artifact.KindStatement),
		exec:    &recordingExecutor{failOn: map[string]error{}},
	}
}

func (f *fixture) migrator(t *testing.T, opts ...Option) *Migrator {
	opts = append([]Option{WithMaster(true), WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(f.ledger, f.repo, f.exec, opts...)
}

func ids(as []artifact.Artifact) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestPending(t *testing.T) {
	candidates := []artifact.Artifact{
		{ID: "202401010000_a.cql"},
		{ID: "202401010005_b.cql"},
		{ID: "202312310000_c.cql"},
	}

	tests := []struct {
		name    string
		applied []string
		want    []string
	}{
		{"none applied sorts by identifier", nil, []string{"202312310000_c.cql", "202401010000_a.cql", "202401010005_b.cql"}},
		{"some applied", []string{"202312310000_c.cql"}, []string{"202401010000_a.cql", "202401010005_b.cql"}},
		{"all applied", []string{"202312310000_c.cql", "202401010000_a.cql", "202401010005_b.cql"}, []string{}},
		{"unknown ledger entries ignored", []string{"201901010000_gone.cql", "202401010000_a.cql"}, []string{"202312310000_c.cql", "202401010005_b.cql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied := map[string]struct{}{}
			for _, id := range tt.applied {
				applied[id] = struct{}{}
			}
			assert.Equal(t, tt.want, ids(Pending(candidates, applied)))
		})
	}
}

func TestMigrate_OrdersByIdentifier(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql", "202401010005_b.cql", "202312310000_c.cql")

	res, err := f.migrator(t).Migrate(context.Background(), MigrateOptions{})
	require.NoError(t, err)

	want := []string{"202312310000_c.cql", "202401010000_a.cql", "202401010005_b.cql"}
	assert.Equal(t, want, f.exec.ran)
	assert.Equal(t, want, res.Applied)
	assert.Equal(t, want, f.session.AppliedIDs())
}

func TestMigrate_NothingToDo(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql", "202401010005_b.cql")
	f.session.Record("202401010000_a.cql", "202401010005_b.cql")

	res, err := f.migrator(t).Migrate(context.Background(), MigrateOptions{})
	require.NoError(t, err)
	assert.True(t, res.UpToDate())
	assert.Empty(t, f.exec.ran)
	assert.Empty(t, f.session.Statements())
}

func TestMigrate_Idempotent(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql", "202401010005_b.cql")
	m := f.migrator(t)
	ctx := context.Background()

	_, err := m.Migrate(ctx, MigrateOptions{})
	require.NoError(t, err)
	first := f.session.AppliedIDs()

	res, err := m.Migrate(ctx, MigrateOptions{})
	require.NoError(t, err)
	assert.True(t, res.UpToDate())
	assert.Equal(t, first, f.session.AppliedIDs())
	assert.Len(t, f.exec.ran, 2)
}

func TestMigrate_Resumes(t *testing.T) {
	f := newFixture(t, "202401010000_x.cql", "202401020000_y.cql")
	f.session.Record("202401010000_x.cql")

	res, err := f.migrator(t).Migrate(context.Background(), MigrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"202401020000_y.cql"}, f.exec.ran)
	assert.Equal(t, []string{"202401020000_y.cql"}, res.Applied)
}

func TestMigrate_HaltsOnFirstFailure(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql", "202401020000_b.cql", "202401030000_c.cql")
	f.exec.failOn["202401020000_b.cql"] = errors.New("InvalidRequest")

	m := f.migrator(t)
	res, err := m.Migrate(context.Background(), MigrateOptions{})
	require.Error(t, err)
	assert.True(t, galley.IsPartialApplicationErr(err))

	// a stays recorded, b is not recorded, c never runs.
	assert.Equal(t, []string{"202401010000_a.cql", "202401020000_b.cql"}, f.exec.ran)
	assert.Equal(t, []string{"202401010000_a.cql"}, res.Applied)
	assert.Equal(t, []string{"202401010000_a.cql"}, f.session.AppliedIDs())

	// Fix b and re-run: resumes at b.
	delete(f.exec.failOn, "202401020000_b.cql")
	f.exec.ran = nil
	res, err = m.Migrate(context.Background(), MigrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"202401020000_b.cql", "202401030000_c.cql"}, f.exec.ran)
	assert.Equal(t, []string{"202401020000_b.cql", "202401030000_c.cql"}, res.Applied)
}

func TestMigrate_StatementFailureLeavesArtifactUnrecorded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "202401010000_a.cql"),
		[]byte("CREATE TABLE one (id int PRIMARY KEY);\nCREATE TABLE two (id int PRIMARY KEY);\nCREATE TABLE three (id int PRIMARY KEY);"), 0o644))

	s := cqltest.NewSession()
	s.ExecErr = cqltest.FailOn("two", errors.New("already exists"))
	l, err := ledger.New(s, "app", ledger.WithMaster(true))
	require.NoError(t, err)

	m := New(l, artifact.NewRepository(dir, ".cql", artifact.KindStatement),
		&executor.Statements{Session: s}, WithMaster(true))

	_, err = m.Migrate(context.Background(), MigrateOptions{})
	require.Error(t, err)
	assert.True(t, galley.IsPartialApplicationErr(err))
	assert.Equal(t, []string{"CREATE TABLE one (id int PRIMARY KEY)"}, s.Statements())
	assert.Empty(t, s.AppliedIDs())
}

func TestMigrate_LedgerWriteFailure(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql", "202401020000_b.cql")
	f.session.ExecErr = func(stmt string, values []any) error {
		if len(values) == 1 && values[0] == "202401010000_a.cql" {
			return errors.New("write timeout")
		}
		return nil
	}

	m := f.migrator(t)
	res, err := m.Migrate(context.Background(), MigrateOptions{})
	require.Error(t, err)
	assert.True(t, galley.IsLedgerInconsistencyErr(err))

	var le *galley.LedgerInconsistencyError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "202401010000_a.cql", le.Artifact)

	// Executed but not recorded, and the run stopped there.
	assert.Equal(t, []string{"202401010000_a.cql"}, f.exec.ran)
	assert.Empty(t, res.Applied)
	assert.Empty(t, f.session.AppliedIDs())

	// Documented re-run behavior: the migration executes again.
	f.session.ExecErr = nil
	_, err = m.Migrate(context.Background(), MigrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"202401010000_a.cql", "202401010000_a.cql", "202401020000_b.cql"}, f.exec.ran)
	assert.Equal(t, []string{"202401010000_a.cql", "202401020000_b.cql"}, f.session.AppliedIDs())
}

func TestMigrate_NotMasterIsNoOp(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql")

	m := New(f.ledger, f.repo, f.exec, WithMaster(false))
	res, err := m.Migrate(context.Background(), MigrateOptions{})
	require.NoError(t, err)
	assert.True(t, res.NotMaster)
	assert.False(t, res.UpToDate())
	assert.Empty(t, f.exec.ran)
	assert.Empty(t, f.session.Statements())
}

func TestMigrate_MissingDirectory(t *testing.T) {
	f := newFixture(t)
	f.repo.Root = filepath.Join(f.dir, "missing")

	_, err := f.migrator(t).Migrate(context.Background(), MigrateOptions{})
	assert.True(t, galley.IsArtifactNotFoundErr(err))
}

func TestMigrate_DryRun(t *testing.T) {
	f := newFixture(t, "202401010005_b.cql", "202401010000_a.cql")

	var buf bytes.Buffer
	res, err := f.migrator(t).Migrate(context.Background(), MigrateOptions{DryRun: &buf})
	require.NoError(t, err)
	assert.Equal(t, "202401010000_a.cql\n202401010005_b.cql\n", buf.String())
	assert.Equal(t, []string{"202401010000_a.cql", "202401010005_b.cql"}, res.Pending)
	assert.Empty(t, res.Applied)
	assert.Empty(t, f.exec.ran)
}

func TestMigrate_AfterHook(t *testing.T) {
	t.Run("runs after success and no-op", func(t *testing.T) {
		f := newFixture(t, "202401010000_a.cql")
		calls := 0
		m := f.migrator(t, WithAfterMigrate(func(context.Context) error { calls++; return nil }))

		_, err := m.Migrate(context.Background(), MigrateOptions{})
		require.NoError(t, err)
		_, err = m.Migrate(context.Background(), MigrateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("skipped on failure", func(t *testing.T) {
		f := newFixture(t, "202401010000_a.cql")
		f.exec.failOn["202401010000_a.cql"] = errors.New("boom")
		called := false
		m := f.migrator(t, WithAfterMigrate(func(context.Context) error { called = true; return nil }))

		_, err := m.Migrate(context.Background(), MigrateOptions{})
		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("hook error is returned", func(t *testing.T) {
		f := newFixture(t)
		m := f.migrator(t, WithAfterMigrate(func(context.Context) error { return errors.New("disk full") }))

		_, err := m.Migrate(context.Background(), MigrateOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, "202401010000_a.cql", "202401020000_b.cql", "202401030000_c.cql")
	f.session.Record("202401010000_a.cql", "202301010000_data.py", "201901010000_gone.cql")

	s, err := f.migrator(t).GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"202401010000_a.cql"}, s.Applied)
	assert.Equal(t, []string{"202401020000_b.cql", "202401030000_c.cql"}, s.Pending)
	assert.Equal(t, []string{"201901010000_gone.cql", "202301010000_data.py", "202401010000_a.cql"}, s.Recorded)

	// Orphans are computed across both families.
	assert.Equal(t, []string{"201901010000_gone.cql"},
		Orphaned(s.Recorded, []string{"202401010000_a.cql", "202401020000_b.cql"}, []string{"202301010000_data.py"}))
}
