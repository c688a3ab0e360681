package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/galleyhq/galley/internal/cli"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/cql"
	"github.com/galleyhq/galley/pkg/executor"
	"github.com/galleyhq/galley/pkg/migrator"
	"github.com/galleyhq/galley/pkg/snapshot"
)

var (
	cassandraMigrateDryRun bool
	cassandraMigrationName string
)

var cassandraCmd = &cobra.Command{
	Use:   "cassandra",
	Short: "Manage the keyspace and its CQL migrations",
}

var cassandraCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the keyspace and the migrations table",
	Long: `Create the keyspace with the configured replication, then the migrations
table inside it. Both are created only if missing.`,
	Example: `  # Create the keyspace from galley.yaml
  galley cassandra create

  # Create a different keyspace
  galley cassandra create --keyspace app_test --master`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := keyspace()
		if err != nil {
			return err
		}
		if skipUnlessMaster() {
			return nil
		}

		return withSession(cql.SystemKeyspace, func(s cql.Session) error {
			l, err := newLedger(s, ks)
			if err != nil {
				return err
			}
			if err := l.EnsureSchema(cmd.Context(), cfg.Replication()); err != nil {
				return finish("creating keyspace", err)
			}
			if !quiet {
				fmt.Printf("Keyspace %s is ready.\n", ks)
			}
			return nil
		})
	},
}

var cassandraDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the keyspace, including the migrations table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := keyspace()
		if err != nil {
			return err
		}
		if skipUnlessMaster() {
			return nil
		}

		return withSession(cql.SystemKeyspace, func(s cql.Session) error {
			l, err := newLedger(s, ks)
			if err != nil {
				return err
			}
			if err := l.Drop(cmd.Context()); err != nil {
				return finish("dropping keyspace", err)
			}
			if !quiet {
				fmt.Printf("Keyspace %s dropped.\n", ks)
			}
			return nil
		})
	},
}

var cassandraMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending CQL migrations",
	Long: `Apply every CQL migration under paths.migrations that is not yet recorded
in the migrations table, in timestamp order. Each migration is recorded only
after it succeeds; the first failure stops the run.

After a successful run the schema snapshot is rewritten unless
migrate.dump_schema is false.`,
	Example: `  # Apply pending migrations
  galley cassandra migrate

  # List pending migrations without applying them
  galley cassandra migrate --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := keyspace()
		if err != nil {
			return err
		}
		if skipUnlessMaster() {
			return nil
		}

		return withSession(ks, func(s cql.Session) error {
			l, err := newLedger(s, ks)
			if err != nil {
				return err
			}

			var ex executor.Executor = &executor.Statements{Session: s, Log: logger}
			if cfg.Migrate.Executor == cli.ExecutorClient {
				ex = &executor.Client{Shell: newShell(), Keyspace: ks, Log: logger}
			}

			m := migrator.New(l, schemaRepo(), ex,
				migrator.WithMaster(isMaster()),
				migrator.WithLogger(logger),
				migrator.WithAfterMigrate(dumpHook(s, ks)),
			)
			return runMigrate(cmd, m, cassandraMigrateDryRun)
		})
	},
}

var cassandraDumpSchemaCmd = &cobra.Command{
	Use:     "dump_schema",
	Aliases: []string{"dump-schema"},
	Short:   "Write the keyspace schema to the snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := keyspace()
		if err != nil {
			return err
		}

		dump := func(s cql.MetadataSource) error {
			if err := newDumper(s, ks).Dump(cmd.Context()); err != nil {
				return cli.Classify("dumping schema", err)
			}
			if !quiet {
				fmt.Printf("Wrote %s\n", cfg.Paths.Schema)
			}
			return nil
		}

		if cfg.Snapshot.Exporter != cli.ExporterMetadata {
			return dump(nil)
		}
		return withSession(cql.SystemKeyspace, func(s cql.Session) error {
			return dump(s)
		})
	},
}

var cassandraLoadSchemaCmd = &cobra.Command{
	Use:     "load_schema",
	Aliases: []string{"load-schema"},
	Short:   "Create the keyspace from the snapshot file",
	Long: `Load the schema snapshot into a cluster where the keyspace does not exist
yet, then record every CQL migration on disk as applied.

Refuses to run if the keyspace already exists; drop it first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := keyspace()
		if err != nil {
			return err
		}
		if skipUnlessMaster() {
			return nil
		}

		return withSession(cql.SystemKeyspace, func(s cql.Session) error {
			l, err := newLedger(s, ks)
			if err != nil {
				return err
			}
			loader := &snapshot.Loader{
				Ledger:      l,
				Runner:      newShell(),
				Path:        cfg.Paths.Schema,
				Replication: cfg.Replication(),
				Sources:     []snapshot.IDSource{schemaRepo()},
				Log:         logger,
			}
			ids, err := loader.Load(cmd.Context())
			if err != nil {
				return finish("loading schema", err)
			}
			if !quiet {
				fmt.Printf("Loaded %s and recorded %d migrations.\n", cfg.Paths.Schema, len(ids))
			}
			return nil
		})
	},
}

var cassandraAddMigrationCmd = &cobra.Command{
	Use:     "add_migration",
	Aliases: []string{"add-migration"},
	Short:   "Create an empty, timestamped CQL migration",
	Example: `  galley cassandra add_migration --name=add_users_table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return addMigration(schemaRepo(), cassandraMigrationName)
	},
}

func init() {
	cassandraMigrateCmd.Flags().BoolVar(&cassandraMigrateDryRun, "dry-run", false, "list pending migrations without applying them")
	cassandraAddMigrationCmd.Flags().StringVar(&cassandraMigrationName, "name", "", "migration name, e.g. add_users_table")

	cassandraCmd.AddCommand(
		cassandraCreateCmd,
		cassandraDropCmd,
		cassandraMigrateCmd,
		cassandraDumpSchemaCmd,
		cassandraLoadSchemaCmd,
		cassandraAddMigrationCmd,
	)
}

// runMigrate runs m and prints the outcome.
func runMigrate(cmd *cobra.Command, m *migrator.Migrator, dryRun bool) error {
	opts := migrator.MigrateOptions{}
	if dryRun {
		opts.DryRun = os.Stdout
		if !quiet {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: pending migrations are listed but not applied")
		}
	}

	res, err := m.Migrate(cmd.Context(), opts)
	if err != nil {
		if res != nil && len(res.Applied) > 0 && !quiet {
			fmt.Printf("Applied %d migrations before the failure.\n", len(res.Applied))
		}
		return finish("migration failed", err)
	}

	switch {
	case res.NotMaster:
		notMaster()
	case dryRun:
		if !quiet && res.UpToDate() {
			fmt.Fprintln(os.Stderr, "-- Nothing pending")
		}
	case quiet:
	case res.UpToDate():
		fmt.Println("All migrations have already been run.")
	default:
		fmt.Printf("Applied %d migrations.\n", len(res.Applied))
	}
	return nil
}

func addMigration(repo *artifact.Repository, name string) error {
	path, err := repo.Create(name)
	if err != nil {
		return cli.Classify("creating migration", err)
	}
	if !quiet {
		fmt.Printf("Created migration: %s\n", path)
	}
	return nil
}
