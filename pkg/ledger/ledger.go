// Package ledger records which migrations have been applied to a keyspace.
//
// The ledger lives in the target keyspace itself:
//
//	CREATE TABLE IF NOT EXISTS <keyspace>.migrations (
//	    migration text,
//	    PRIMARY KEY (migration)
//	)
//
// It is the only source of truth for "already applied". Rows are appended
// after a migration succeeds and are never updated or deleted except by
// dropping the keyspace.
package ledger

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/pkg/cql"
)

// Table is the ledger table name.
const Table = "migrations"

// Session is what the ledger needs from a CQL session.
type Session interface {
	cql.Execer
	cql.Querier
}

// Ledger reads and writes the migrations table of one keyspace.
// Mutating methods fail with galley.ErrNotMaster unless Master is set.
type Ledger struct {
	session  Session
	keyspace string
	master   bool
	log      *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaster marks this process as the migration master.
func WithMaster(master bool) Option {
	return func(l *Ledger) { l.master = master }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// Unquoted CQL identifiers fold to lower case, so only lower case names
// refer to the same keyspace in DDL, system_schema lookups and USE.
var keyspaceName = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// ValidateKeyspace reports whether name can be used as a keyspace name.
func ValidateKeyspace(name string) error {
	if !keyspaceName.MatchString(name) {
		return fmt.Errorf("%w: keyspace name %q must be 1-48 lower case letters, digits or underscores",
			galley.ErrInvalidArgument, name)
	}
	return nil
}

// New returns a Ledger for keyspace. The keyspace name is interpolated
// into CQL, so it must pass ValidateKeyspace.
func New(session Session, keyspace string, opts ...Option) (*Ledger, error) {
	if err := ValidateKeyspace(keyspace); err != nil {
		return nil, err
	}
	l := &Ledger{session: session, keyspace: keyspace, log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Keyspace returns the target keyspace.
func (l *Ledger) Keyspace() string {
	return l.keyspace
}

// Master reports whether this ledger may mutate state.
func (l *Ledger) Master() bool {
	return l.master
}

func (l *Ledger) requireMaster() error {
	if !l.master {
		return galley.ErrNotMaster
	}
	return nil
}

// EnsureSchema creates the keyspace with the given replication and the
// ledger table. Both statements are IF NOT EXISTS, so it is safe to repeat.
func (l *Ledger) EnsureSchema(ctx context.Context, replication cql.Replication) error {
	if err := l.requireMaster(); err != nil {
		return err
	}
	if replication == nil {
		replication = cql.DefaultReplication()
	}

	l.log.Info("Creating keyspace",
		zap.String("keyspace", l.keyspace),
		zap.String("replication", replication.String()))
	if err := l.session.Exec(ctx, fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s", l.keyspace, replication,
	)); err != nil {
		return fmt.Errorf("creating keyspace %s: %w", l.keyspace, err)
	}

	if err := l.session.Exec(ctx, l.createTableCQL()); err != nil {
		return fmt.Errorf("creating ledger table: %w", err)
	}
	return nil
}

func (l *Ledger) createTableCQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (migration text, PRIMARY KEY (migration))", l.keyspace, Table)
}

// ListApplied returns every recorded migration identifier.
func (l *Ledger) ListApplied(ctx context.Context) (map[string]struct{}, error) {
	ids, err := l.session.Strings(ctx, fmt.Sprintf("SELECT migration FROM %s.%s", l.keyspace, Table))
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	applied := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		applied[id] = struct{}{}
	}
	return applied, nil
}

// RecordApplied appends id to the ledger. Call it only after the migration
// executed without error.
func (l *Ledger) RecordApplied(ctx context.Context, id string) error {
	if err := l.requireMaster(); err != nil {
		return err
	}
	if err := l.session.Exec(ctx, fmt.Sprintf("INSERT INTO %s.%s (migration) VALUES (?)", l.keyspace, Table), id); err != nil {
		return fmt.Errorf("recording %s: %w", id, err)
	}
	return nil
}

// Backfill records every id, treating them as applied without running them.
// Used after loading a schema snapshot.
func (l *Ledger) Backfill(ctx context.Context, ids []string) error {
	if err := l.requireMaster(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := l.RecordApplied(ctx, id); err != nil {
			return err
		}
	}
	l.log.Info("Backfilled ledger", zap.Int("migration_count", len(ids)))
	return nil
}

// Drop removes the keyspace, and with it the ledger. Used for environment
// teardown only.
func (l *Ledger) Drop(ctx context.Context) error {
	if err := l.requireMaster(); err != nil {
		return err
	}
	l.log.Info("Dropping keyspace", zap.String("keyspace", l.keyspace))
	if err := l.session.Exec(ctx, fmt.Sprintf("DROP KEYSPACE %s", l.keyspace)); err != nil {
		return fmt.Errorf("dropping keyspace %s: %w", l.keyspace, err)
	}
	return nil
}

// KeyspaceExists reports whether the target keyspace is present.
func (l *Ledger) KeyspaceExists(ctx context.Context) (bool, error) {
	rows, err := l.session.Strings(ctx,
		"SELECT keyspace_name FROM system_schema.keyspaces WHERE keyspace_name = ?", l.keyspace)
	if err != nil {
		return false, fmt.Errorf("checking keyspace %s: %w", l.keyspace, err)
	}
	return len(rows) > 0, nil
}

// TableExists reports whether the ledger table is present.
func (l *Ledger) TableExists(ctx context.Context) (bool, error) {
	rows, err := l.session.Strings(ctx,
		"SELECT table_name FROM system_schema.tables WHERE keyspace_name = ? AND table_name = ?", l.keyspace, Table)
	if err != nil {
		return false, fmt.Errorf("checking ledger table: %w", err)
	}
	return len(rows) > 0, nil
}
