package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleyhq/galley"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("-- "+n), 0o644))
	}
}

func TestList_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"202401010000_a.cql",
		"202401010005_b.cql",
		"202312310000_c.cql",
		"README.md",
		"202401020000_upper.CQL",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "202401030000_dir.cql"), 0o755))

	repo := NewRepository(dir, ".cql", KindStatement)
	got, err := repo.List()
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
		assert.Equal(t, KindStatement, a.Kind)
		assert.Equal(t, filepath.Join(dir, a.ID), a.Path)
	}
	assert.Equal(t, []string{"202312310000_c.cql", "202401010000_a.cql", "202401010005_b.cql"}, ids)
}

func TestList_EmptyDirectory(t *testing.T) {
	repo := NewRepository(t.TempDir(), ".cql", KindStatement)
	got, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_MissingDirectory(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "missing"), ".cql", KindStatement)
	_, err := repo.List()
	require.Error(t, err)
	assert.True(t, galley.IsArtifactNotFoundErr(err))
}

func TestIDs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "202401010000_a.py", "202301010000_b.py", "helper.txt")

	ids, err := NewRepository(dir, ".py", KindProcedural).IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"202301010000_b.py", "202401010000_a.py"}, ids)
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "202401010000_a.cql")

	a := Artifact{ID: "202401010000_a.cql", Path: filepath.Join(dir, "202401010000_a.cql")}
	b, err := a.Read()
	require.NoError(t, err)
	assert.Equal(t, "-- 202401010000_a.cql", string(b))
}

func TestCreate_UsesUTCMinuteTimestamp(t *testing.T) {
	dir := t.TempDir()
	mock := clock.NewMock()
	loc := time.FixedZone("UTC+5", 5*60*60)
	mock.Set(time.Date(2024, 3, 7, 14, 30, 59, 0, loc))

	repo := NewRepository(dir, ".cql", KindStatement)
	repo.Clock = mock

	path, err := repo.Create("add_users_table")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "202403070930_add_users_table.cql"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.True(t, WellFormed(filepath.Base(path)))
}

func TestCreate_RequiresName(t *testing.T) {
	repo := NewRepository(t.TempDir(), ".cql", KindStatement)

	for _, name := range []string{"", "   "} {
		_, err := repo.Create(name)
		require.Error(t, err)
		assert.True(t, galley.IsInvalidArgumentErr(err), "name %q", name)
	}

	_, err := repo.Create("../escape")
	assert.True(t, galley.IsInvalidArgumentErr(err))
}

func TestCreate_RefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	repo := NewRepository(dir, ".cql", KindStatement)
	repo.Clock = mock

	_, err := repo.Create("users")
	require.NoError(t, err)
	_, err = repo.Create("users")
	assert.True(t, galley.IsAlreadyExistsErr(err))
}

func TestCreate_MissingRoot(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "nope"), ".cql", KindStatement)
	_, err := repo.Create("users")
	assert.True(t, galley.IsArtifactNotFoundErr(err))
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"202401010000_users.cql", true},
		{"202401010000_.cql", true},
		{"20240101_users.cql", false},
		{"users.cql", false},
		{"202401010000users.cql", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, WellFormed(tt.id))
		})
	}
}
