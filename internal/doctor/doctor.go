// Package doctor provides health checks for a galley project.
//
// The doctor command validates that a project is properly laid out and that
// the cluster ledger agrees with the migrations on disk.
//
// Example usage:
//
//	d := doctor.New(
//		doctor.WithLedger(l),
//		doctor.WithFamily("Schema Migrations", "db/migrations", schemaRepo),
//		doctor.WithSnapshot("db/schema.cql"),
//		doctor.WithCoreRoot("db/solr"),
//	)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/migrator"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Project Layout", "Ledger").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Ledger is what the ledger checks read. Implemented by *ledger.Ledger.
type Ledger interface {
	Keyspace() string
	KeyspaceExists(ctx context.Context) (bool, error)
	TableExists(ctx context.Context) (bool, error)
	ListApplied(ctx context.Context) (map[string]struct{}, error)
}

// Source lists one family's migrations. Implemented by *artifact.Repository.
type Source interface {
	List() ([]artifact.Artifact, error)
}

type family struct {
	name   string
	root   string
	source Source
}

// Doctor performs health checks on a galley project.
type Doctor struct {
	ledger     Ledger
	connectErr error
	families   []family
	snapshot   string
	coreRoot   string

	// Populated during Run.
	onDisk  map[string][]artifact.Artifact
	applied map[string]struct{}
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithLedger enables the ledger checks.
func WithLedger(l Ledger) Option {
	return func(d *Doctor) { d.ledger = l }
}

// WithConnectError records that the cluster could not be reached. The
// ledger checks are replaced by a single failure.
func WithConnectError(err error) Option {
	return func(d *Doctor) { d.connectErr = err }
}

// WithFamily adds a migration family rooted at root.
func WithFamily(name, root string, src Source) Option {
	return func(d *Doctor) { d.families = append(d.families, family{name: name, root: root, source: src}) }
}

// WithSnapshot enables the schema snapshot check.
func WithSnapshot(path string) Option {
	return func(d *Doctor) { d.snapshot = path }
}

// WithCoreRoot enables the Solr core checks.
func WithCoreRoot(root string) Option {
	return func(d *Doctor) { d.coreRoot = root }
}

// New creates a new Doctor instance.
func New(opts ...Option) *Doctor {
	d := &Doctor{onDisk: make(map[string][]artifact.Artifact)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	d.checkLayout(report)
	d.checkIdentifiers(report)
	if err := d.checkLedger(ctx, report); err != nil {
		return nil, fmt.Errorf("checking ledger: %w", err)
	}
	d.checkPending(report)
	d.checkOrphans(report)
	d.checkSnapshot(report)
	d.checkCores(report)

	return report, nil
}

// checkLayout validates that each migration family directory exists.
func (d *Doctor) checkLayout(report *Report) {
	for _, f := range d.families {
		artifacts, err := f.source.List()
		if err != nil {
			report.AddCheck(CheckResult{
				Category: "Project Layout",
				Name:     "directory",
				Status:   StatusFail,
				Message:  fmt.Sprintf("%s directory %s is not readable", f.name, f.root),
				Details:  err.Error(),
				FixHint:  "Run 'galley setup' to create the project directories",
			})
			continue
		}
		d.onDisk[f.name] = artifacts
		report.AddCheck(CheckResult{
			Category: "Project Layout",
			Name:     "directory",
			Status:   StatusPass,
			Message:  fmt.Sprintf("%s directory %s exists (%d migrations)", f.name, f.root, len(artifacts)),
		})
	}
}

// checkIdentifiers validates migration file names.
func (d *Doctor) checkIdentifiers(report *Report) {
	for _, f := range d.families {
		artifacts, ok := d.onDisk[f.name]
		if !ok {
			continue
		}

		var malformed []string
		byStamp := make(map[string][]string)
		for _, a := range artifacts {
			if !artifact.WellFormed(a.ID) {
				malformed = append(malformed, a.ID)
				continue
			}
			stamp := a.ID[:len(artifact.TimestampLayout)]
			byStamp[stamp] = append(byStamp[stamp], a.ID)
		}

		if len(malformed) > 0 {
			report.AddCheck(CheckResult{
				Category: "Migrations",
				Name:     "naming",
				Status:   StatusWarn,
				Message:  fmt.Sprintf("%s: %d files do not start with a YYYYMMDDHHMM_ timestamp", f.name, len(malformed)),
				Details:  strings.Join(malformed, "\n"),
				FixHint:  "Rename them with add_migration-style names so they sort in creation order",
			})
		} else {
			report.AddCheck(CheckResult{
				Category: "Migrations",
				Name:     "naming",
				Status:   StatusPass,
				Message:  fmt.Sprintf("%s: all file names are timestamped", f.name),
			})
		}

		var shared []string
		for _, ids := range byStamp {
			if len(ids) > 1 {
				shared = append(shared, strings.Join(ids, ", "))
			}
		}
		if len(shared) > 0 {
			sort.Strings(shared)
			report.AddCheck(CheckResult{
				Category: "Migrations",
				Name:     "timestamps",
				Status:   StatusWarn,
				Message:  fmt.Sprintf("%s: %d timestamps are shared by more than one file", f.name, len(shared)),
				Details:  strings.Join(shared, "\n"),
				FixHint:  "Files sharing a timestamp run in name order; re-stamp them if order matters",
			})
		}
	}
}

// checkLedger validates keyspace and ledger table presence.
func (d *Doctor) checkLedger(ctx context.Context, report *Report) error {
	if d.connectErr != nil {
		report.AddCheck(CheckResult{
			Category: "Ledger",
			Name:     "connect",
			Status:   StatusFail,
			Message:  "Cannot connect to Cassandra",
			Details:  d.connectErr.Error(),
			FixHint:  "Check cassandra.contact_points and credentials",
		})
		return nil
	}
	if d.ledger == nil {
		return nil
	}

	ks := d.ledger.Keyspace()
	exists, err := d.ledger.KeyspaceExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		report.AddCheck(CheckResult{
			Category: "Ledger",
			Name:     "keyspace",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Keyspace %s does not exist", ks),
			FixHint:  "Run 'galley cassandra create' or 'galley cassandra load_schema'",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: "Ledger",
		Name:     "keyspace",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Keyspace %s exists", ks),
	})

	exists, err = d.ledger.TableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		report.AddCheck(CheckResult{
			Category: "Ledger",
			Name:     "table",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Ledger table %s.migrations does not exist", ks),
			FixHint:  "Run 'galley cassandra create' to create it",
		})
		return nil
	}

	applied, err := d.ledger.ListApplied(ctx)
	if err != nil {
		return err
	}
	d.applied = applied
	report.AddCheck(CheckResult{
		Category: "Ledger",
		Name:     "table",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Ledger table %s.migrations exists (%d recorded)", ks, len(applied)),
	})
	return nil
}

// checkPending reports migrations on disk that have not been applied.
func (d *Doctor) checkPending(report *Report) {
	if d.applied == nil {
		return
	}
	for _, f := range d.families {
		artifacts, ok := d.onDisk[f.name]
		if !ok {
			continue
		}
		pending := migrator.Pending(artifacts, d.applied)
		if len(pending) == 0 {
			report.AddCheck(CheckResult{
				Category: "Ledger",
				Name:     "pending",
				Status:   StatusPass,
				Message:  fmt.Sprintf("%s: up to date", f.name),
			})
			continue
		}
		ids := make([]string, len(pending))
		for i, a := range pending {
			ids[i] = a.ID
		}
		report.AddCheck(CheckResult{
			Category: "Ledger",
			Name:     "pending",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%s: %d pending", f.name, len(pending)),
			Details:  strings.Join(ids, "\n"),
			FixHint:  "Run the family's migrate command",
		})
	}
}

// checkOrphans reports ledger entries with no file on disk.
func (d *Doctor) checkOrphans(report *Report) {
	if d.applied == nil || len(d.onDisk) != len(d.families) {
		return
	}

	var onDisk [][]string
	for _, artifacts := range d.onDisk {
		ids := make([]string, len(artifacts))
		for i, a := range artifacts {
			ids[i] = a.ID
		}
		onDisk = append(onDisk, ids)
	}
	recorded := make([]string, 0, len(d.applied))
	for id := range d.applied {
		recorded = append(recorded, id)
	}

	orphans := migrator.Orphaned(recorded, onDisk...)
	if len(orphans) == 0 {
		report.AddCheck(CheckResult{
			Category: "Ledger",
			Name:     "orphans",
			Status:   StatusPass,
			Message:  "Every recorded migration exists on disk",
		})
		return
	}
	report.AddCheck(CheckResult{
		Category: "Ledger",
		Name:     "orphans",
		Status:   StatusWarn,
		Message:  fmt.Sprintf("%d recorded migrations are missing on disk", len(orphans)),
		Details:  strings.Join(orphans, "\n"),
		FixHint:  "Restore the files; recorded migrations are never re-run",
	})
}

// checkSnapshot validates the schema snapshot file.
func (d *Doctor) checkSnapshot(report *Report) {
	if d.snapshot == "" {
		return
	}
	info, err := os.Stat(d.snapshot)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.AddCheck(CheckResult{
			Category: "Schema Snapshot",
			Name:     "exists",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("No snapshot at %s", d.snapshot),
			FixHint:  "Run 'galley cassandra dump_schema'",
		})
	case err != nil:
		report.AddCheck(CheckResult{
			Category: "Schema Snapshot",
			Name:     "exists",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Cannot read snapshot %s", d.snapshot),
			Details:  err.Error(),
		})
	case info.Size() == 0:
		report.AddCheck(CheckResult{
			Category: "Schema Snapshot",
			Name:     "exists",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("Snapshot %s is empty", d.snapshot),
			FixHint:  "Run 'galley cassandra dump_schema'",
		})
	default:
		report.AddCheck(CheckResult{
			Category: "Schema Snapshot",
			Name:     "exists",
			Status:   StatusPass,
			Message:  fmt.Sprintf("Snapshot %s (%s)", d.snapshot, humanize.Bytes(uint64(info.Size()))),
			Details:  "Last written " + humanize.Time(info.ModTime()),
		})
	}
}

// checkCores validates each Solr core directory.
func (d *Doctor) checkCores(report *Report) {
	if d.coreRoot == "" {
		return
	}
	entries, err := os.ReadDir(d.coreRoot)
	if errors.Is(err, fs.ErrNotExist) {
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "root",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("Core directory %s does not exist", d.coreRoot),
			FixHint:  "Run 'galley setup'",
		})
		return
	}
	if err != nil {
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "root",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Cannot read core directory %s", d.coreRoot),
			Details:  err.Error(),
		})
		return
	}

	cores := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cores++
		d.checkCore(report, e.Name())
	}
	if cores == 0 {
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "root",
			Status:   StatusPass,
			Message:  "No cores defined",
		})
	}
}

func (d *Doctor) checkCore(report *Report, core string) {
	dir := filepath.Join(d.coreRoot, core)

	var (
		files int
		size  int64
		empty []string
	)
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		if info.Size() == 0 {
			rel, _ := filepath.Rel(dir, path)
			empty = append(empty, filepath.ToSlash(rel))
		}
		return nil
	})

	switch {
	case err != nil:
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "core",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%s: cannot read core files", core),
			Details:  err.Error(),
		})
	case files == 0:
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "core",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%s: no configuration files", core),
			FixHint:  "Add solrconfig.xml and schema.xml, or remove the directory",
		})
	case len(empty) > 0:
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "core",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%s: %d of %d files are empty placeholders", core, len(empty), files),
			Details:  strings.Join(empty, "\n"),
			FixHint:  "Fill in the placeholder files before publishing",
		})
	default:
		report.AddCheck(CheckResult{
			Category: "Solr Cores",
			Name:     "core",
			Status:   StatusPass,
			Message:  fmt.Sprintf("%s: %d files (%s)", core, files, humanize.Bytes(uint64(size))),
		})
	}
}
