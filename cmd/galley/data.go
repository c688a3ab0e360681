package main

import (
	"github.com/spf13/cobra"

	"github.com/galleyhq/galley/internal/process"
	"github.com/galleyhq/galley/pkg/cql"
	"github.com/galleyhq/galley/pkg/executor"
	"github.com/galleyhq/galley/pkg/migrator"
)

var (
	dataMigrateDryRun bool
	dataMigrationName string
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage data migration scripts",
	Long: `Manage data migration scripts under paths.data.

Data migrations are programs run with data.interpreter. They share the
migrations table with the CQL migrations, so each one runs exactly once.`,
}

var dataMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending data migration scripts",
	Example: `  # Run pending data migrations
  galley data migrate

  # List pending data migrations
  galley data migrate --dry-run`,
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
			ex := &executor.Script{
				Interpreter: cfg.Data.Interpreter,
				Dir:         cfg.ResolvedDataDir(),
				AllowEnv:    cfg.Data.Env,
				SetEnv:      cfg.Data.SetEnv,
				Runner:      process.ExecRunner{},
				Log:         logger,
			}
			m := migrator.New(l, dataRepo(), ex,
				migrator.WithMaster(isMaster()),
				migrator.WithLogger(logger),
			)
			return runMigrate(cmd, m, dataMigrateDryRun)
		})
	},
}

var dataAddMigrationCmd = &cobra.Command{
	Use:     "add_migration",
	Aliases: []string{"add-migration"},
	Short:   "Create an empty, timestamped data migration script",
	Example: `  galley data add_migration --name=backfill_user_emails`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return addMigration(dataRepo(), dataMigrationName)
	},
}

func init() {
	dataMigrateCmd.Flags().BoolVar(&dataMigrateDryRun, "dry-run", false, "list pending migrations without running them")
	dataAddMigrationCmd.Flags().StringVar(&dataMigrationName, "name", "", "migration name, e.g. backfill_user_emails")

	dataCmd.AddCommand(dataMigrateCmd, dataAddMigrationCmd)
}
