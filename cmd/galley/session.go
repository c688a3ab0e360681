package main

import (
	"context"
	"fmt"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/internal/cli"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/cql"
	"github.com/galleyhq/galley/pkg/ledger"
	"github.com/galleyhq/galley/pkg/snapshot"
)

// Flags shared by the cassandra and data commands.
var (
	keyspaceFlag string
	masterFlag   bool
)

// keyspace resolves the target keyspace, --keyspace first.
func keyspace() (string, error) {
	c := *cfg
	c.Cassandra.Keyspace = resolveString(keyspaceFlag, cfg.Cassandra.Keyspace)
	ks, err := c.RequireKeyspace()
	if err != nil {
		return "", cli.ConfigError("resolving keyspace", err)
	}
	return ks, nil
}

func isMaster() bool {
	return resolveBool(masterFlag, cfg.Cassandra.MigrationMaster)
}

// skipUnlessMaster prints a notice and reports true when this process may
// not change cluster state.
func skipUnlessMaster() bool {
	if isMaster() {
		return false
	}
	notMaster()
	return true
}

func notMaster() {
	if !quiet {
		fmt.Println("Not the migration master (cassandra.migration_master is false), nothing to do.")
	}
}

// withSession connects to keyspace, runs fn, and closes the session.
func withSession(keyspace string, fn func(cql.Session) error) error {
	s, err := cql.Connect(cfg.CQL(), keyspace, logger)
	if galley.IsTransportErr(err) {
		return cli.ConnectError("connecting to Cassandra", err)
	}
	if err != nil {
		return cli.Classify("connecting to Cassandra", err)
	}
	defer s.Close()
	return fn(s)
}

func newLedger(s ledger.Session, ks string) (*ledger.Ledger, error) {
	l, err := ledger.New(s, ks, ledger.WithMaster(isMaster()), ledger.WithLogger(logger))
	if err != nil {
		return nil, cli.Classify("configuring ledger", err)
	}
	return l, nil
}

func newShell() *cql.Shell {
	return cql.NewShell(cfg.Client.Command, cfg.CQL())
}

func schemaRepo() *artifact.Repository {
	return artifact.NewRepository(cfg.Paths.Migrations, ".cql", artifact.KindStatement)
}

func dataRepo() *artifact.Repository {
	return artifact.NewRepository(cfg.Paths.Data, cfg.Data.Extension, artifact.KindProcedural)
}

// newDumper returns the configured snapshot writer. The metadata exporter
// reads from s, so s must stay open while the dumper is used.
func newDumper(s cql.MetadataSource, ks string) *snapshot.Dumper {
	var exporter snapshot.Exporter
	switch cfg.Snapshot.Exporter {
	case cli.ExporterMetadata:
		exporter = &snapshot.MetadataExporter{Source: s}
	default:
		exporter = &snapshot.ClientExporter{Shell: newShell()}
	}
	return &snapshot.Dumper{
		Exporter: exporter,
		Keyspace: ks,
		Path:     cfg.Paths.Schema,
		Log:      logger,
	}
}

// finish maps a command error to an exit error, treating ErrNotMaster as
// success.
func finish(msg string, err error) error {
	if galley.IsNotMasterErr(err) {
		notMaster()
		return nil
	}
	return cli.Classify(msg, err)
}

// dumpHook returns the after-migrate hook, or nil if snapshots are disabled.
func dumpHook(s cql.MetadataSource, ks string) func(context.Context) error {
	if !cfg.Migrate.DumpSchema {
		return nil
	}
	d := newDumper(s, ks)
	return d.Dump
}
