package migrator

import (
	"context"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/executor"
)

// MigrateOptions controls a single run.
type MigrateOptions struct {
	// DryRun lists pending migrations to the writer in execution order
	// without executing or recording anything.
	DryRun io.Writer
}

// Result summarizes a run.
type Result struct {
	// Applied holds identifiers executed and recorded by this run, in order.
	Applied []string

	// Pending holds the identifiers that were pending when the run started.
	Pending []string

	// NotMaster is set when the run was skipped because this process is not
	// the migration master.
	NotMaster bool
}

// UpToDate reports whether there was nothing to apply.
func (r *Result) UpToDate() bool {
	return !r.NotMaster && len(r.Pending) == 0
}

// Migrator reconciles migrations on disk against the ledger.
//
// A run:
//  1. returns immediately, with Result.NotMaster, unless this is the migration master
//  2. computes pending = sort(candidates - applied)
//  3. executes pending migrations one at a time in ascending identifier order
//  4. records each migration only after it executed without error
//  5. stops at the first failure; migrations recorded earlier in the run stay recorded
//  6. calls the after-migrate hook once every pending migration succeeded
//
// Re-running after a failure resumes at the failed migration.
type Migrator struct {
	ledger Ledger
	source Source
	exec   executor.Executor

	master       bool
	afterMigrate func(ctx context.Context) error
	log          *zap.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithMaster marks this process as the migration master.
func WithMaster(master bool) Option {
	return func(m *Migrator) { m.master = master }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Migrator) { m.log = log }
}

// WithAfterMigrate registers a hook run after a successful run, including
// one with nothing to apply. A schema snapshot export is the usual hook.
func WithAfterMigrate(fn func(ctx context.Context) error) Option {
	return func(m *Migrator) { m.afterMigrate = fn }
}

// New creates a Migrator.
func New(l Ledger, src Source, ex executor.Executor, opts ...Option) *Migrator {
	m := &Migrator{
		ledger: l,
		source: src,
		exec:   ex,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pending returns the migrations not yet recorded, in execution order.
func (m *Migrator) Pending(ctx context.Context) ([]artifact.Artifact, error) {
	candidates, err := m.source.List()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return nil, err
	}
	return Pending(candidates, applied), nil
}

// Migrate runs every pending migration.
//
// On failure the returned Result still lists the migrations applied before
// the failure. A *galley.PartialApplicationError means the failing migration
// was not recorded; a *galley.LedgerInconsistencyError means it ran but the
// ledger write failed, so the next run will execute it again.
func (m *Migrator) Migrate(ctx context.Context, opts MigrateOptions) (*Result, error) {
	res := &Result{}
	if !m.master {
		m.log.Info("Not the migration master, skipping")
		res.NotMaster = true
		return res, nil
	}

	m.log.Info("Loading migrations")
	pending, err := m.Pending(ctx)
	if err != nil {
		return res, err
	}
	for _, a := range pending {
		res.Pending = append(res.Pending, a.ID)
	}

	if opts.DryRun != nil {
		for _, id := range res.Pending {
			_, _ = fmt.Fprintln(opts.DryRun, id)
		}
		return res, nil
	}

	if len(pending) == 0 {
		m.log.Info("All migrations have already been run")
	} else {
		m.log.Info("Bringing up migrations", zap.Int("migration_count", len(pending)))
	}

	for _, a := range pending {
		if err := m.apply(ctx, a); err != nil {
			return res, err
		}
		res.Applied = append(res.Applied, a.ID)
	}

	if m.afterMigrate != nil {
		if err := m.afterMigrate(ctx); err != nil {
			return res, fmt.Errorf("after migrate: %w", err)
		}
	}
	return res, nil
}

// apply executes one migration and then records it.
func (m *Migrator) apply(ctx context.Context, a artifact.Artifact) error {
	m.log.Info("Running migration", zap.String("migration", a.ID), zap.Stringer("kind", a.Kind))

	if err := m.exec.Execute(ctx, a); err != nil {
		return err
	}

	if err := m.ledger.RecordApplied(ctx, a.ID); err != nil {
		m.log.Error("Migration applied but NOT recorded; it will run again on the next migrate unless recorded by hand",
			zap.String("migration", a.ID),
			zap.Error(err))
		return &galley.LedgerInconsistencyError{Artifact: a.ID, Err: err}
	}
	return nil
}

// Pending returns candidates whose identifiers are not in applied, sorted
// ascending by identifier.
func Pending(candidates []artifact.Artifact, applied map[string]struct{}) []artifact.Artifact {
	pending := make([]artifact.Artifact, 0, len(candidates))
	for _, a := range candidates {
		if _, ok := applied[a.ID]; !ok {
			pending = append(pending, a)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ID < pending[j].ID
	})
	return pending
}
