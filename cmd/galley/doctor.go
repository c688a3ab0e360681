package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/galleyhq/galley/internal/cli"
	"github.com/galleyhq/galley/internal/doctor"
	"github.com/galleyhq/galley/pkg/cql"
)

var doctorVerbose bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long: `Run health checks on the project layout, migration naming, the
migrations table, the schema snapshot, and the Solr cores.`,
	Example: `  # Run health checks
  galley doctor

  # Show details for every check
  galley doctor --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !quiet {
			fmt.Println("galley doctor - Health Check")
		}

		opts := []doctor.Option{
			doctor.WithFamily("Schema Migrations", cfg.Paths.Migrations, schemaRepo()),
			doctor.WithFamily("Data Migrations", cfg.Paths.Data, dataRepo()),
			doctor.WithSnapshot(cfg.Paths.Schema),
			doctor.WithCoreRoot(cfg.Paths.Solr),
		}

		if ks := resolveString(keyspaceFlag, cfg.Cassandra.Keyspace); ks == "" {
			opts = append(opts, doctor.WithConnectError(errors.New("cassandra.keyspace is not set")))
		} else if s, err := cql.Connect(cfg.CQL(), cql.SystemKeyspace, logger); err != nil {
			opts = append(opts, doctor.WithConnectError(err))
		} else {
			defer s.Close()
			l, err := newLedger(s, ks)
			if err != nil {
				return err
			}
			opts = append(opts, doctor.WithLedger(l))
		}

		report, err := doctor.New(opts...).Run(cmd.Context())
		if err != nil {
			return cli.GeneralError("running doctor", err)
		}

		report.Print(os.Stdout, doctorVerbose || verbose > 0)

		if report.HasErrors() {
			return cli.GeneralError("health checks failed", nil)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}
