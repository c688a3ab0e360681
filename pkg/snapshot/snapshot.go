package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/internal/process"
	"github.com/galleyhq/galley/pkg/cql"
)

// DefaultPath is where the snapshot lives relative to the project root.
const DefaultPath = "db/schema.cql"

// Dumper writes the schema of a keyspace to Path, replacing any previous
// snapshot.
type Dumper struct {
	Exporter Exporter
	Keyspace string
	Path     string
	Log      *zap.Logger
}

// Dump exports the schema and writes it to Path. The previous file is
// replaced only once the new one is fully written.
func (d *Dumper) Dump(ctx context.Context) error {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	schema, err := d.Exporter.Export(ctx, d.Keyspace)
	if err != nil {
		return fmt.Errorf("exporting schema: %w", err)
	}
	if err := writeFile(d.Path, []byte(schema)); err != nil {
		return err
	}

	log.Info("Wrote schema snapshot",
		zap.String("path", d.Path),
		zap.String("size", humanize.Bytes(uint64(len(schema)))))
	return nil
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".schema-*.cql")
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Ledger is what loading needs from the ledger. Implemented by *ledger.Ledger.
type Ledger interface {
	Master() bool
	KeyspaceExists(ctx context.Context) (bool, error)
	EnsureSchema(ctx context.Context, replication cql.Replication) error
	Backfill(ctx context.Context, ids []string) error
}

// FileRunner runs a CQL file through the external client.
// *cql.Shell implements it.
type FileRunner interface {
	RunFile(ctx context.Context, file, keyspace string) (*process.Result, error)
}

// IDSource lists migration identifiers on disk.
// Implemented by *artifact.Repository.
type IDSource interface {
	IDs() ([]string, error)
}

// Loader bootstraps an empty cluster from a snapshot.
type Loader struct {
	Ledger      Ledger
	Runner      FileRunner
	Path        string
	Replication cql.Replication

	// Sources are the migration families the snapshot supersedes. Every
	// identifier they list is backfilled into the ledger.
	Sources []IDSource

	Log *zap.Logger
}

// Load replays the snapshot and backfills the ledger.
//
// It fails with galley.ErrAlreadyExists if the keyspace is present, and with
// galley.ErrPartialApplication if the client reports an error, in which case
// the ledger is left untouched.
func (l *Loader) Load(ctx context.Context) ([]string, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	if !l.Ledger.Master() {
		return nil, galley.ErrNotMaster
	}

	if _, err := os.Stat(l.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (run dump_schema first)", galley.ErrArtifactNotFound, l.Path)
		}
		return nil, err
	}

	ids, err := l.ids()
	if err != nil {
		return nil, err
	}

	log.Info("Verifying keyspace is not present")
	exists, err := l.Ledger.KeyspaceExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: keyspace exists, drop it first then try again", galley.ErrAlreadyExists)
	}

	log.Info("Loading the schema", zap.String("path", l.Path))
	res, err := l.Runner.RunFile(ctx, l.Path, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", galley.ErrTransport, err)
	}
	if !res.OK() {
		log.Error("Schema load failed",
			zap.String("path", l.Path),
			zap.Int("exit_code", res.ExitCode),
			zap.String("output", res.Output()))
		return nil, &galley.PartialApplicationError{
			Artifact: filepath.Base(l.Path),
			ExitCode: res.ExitCode,
			Output:   res.Output(),
		}
	}

	log.Info("Load successful, updating migrations table")
	if err := l.Ledger.EnsureSchema(ctx, l.Replication); err != nil {
		return nil, err
	}
	if err := l.Ledger.Backfill(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (l *Loader) ids() ([]string, error) {
	var ids []string
	for _, src := range l.Sources {
		more, err := src.IDs()
		if err != nil {
			return nil, err
		}
		ids = append(ids, more...)
	}
	return ids, nil
}
