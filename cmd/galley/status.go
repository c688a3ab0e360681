package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/galleyhq/galley/internal/cli"
	"github.com/galleyhq/galley/pkg/cql"
	"github.com/galleyhq/galley/pkg/migrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Long: `Show, for the CQL and data migration families, which migrations are
applied and which are pending. Ledger entries with no file on disk are listed
as orphaned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := keyspace()
		if err != nil {
			return err
		}

		return withSession(ks, func(s cql.Session) error {
			l, err := newLedger(s, ks)
			if err != nil {
				return err
			}

			// GetStatus never executes, so no executor is needed.
			families := []struct {
				name string
				m    *migrator.Migrator
			}{
				{"Schema migrations", migrator.New(l, schemaRepo(), nil)},
				{"Data migrations", migrator.New(l, dataRepo(), nil)},
			}

			var recorded []string
			var onDisk [][]string
			for _, f := range families {
				st, err := f.m.GetStatus(cmd.Context())
				if err != nil {
					return cli.Classify("reading status", err)
				}
				recorded = st.Recorded
				onDisk = append(onDisk, st.Applied, st.Pending)

				fmt.Printf("%s: %d applied, %d pending\n", f.name, len(st.Applied), len(st.Pending))
				for _, id := range st.Pending {
					fmt.Printf("  pending  %s\n", id)
				}
			}

			orphans := migrator.Orphaned(recorded, onDisk...)
			if len(orphans) > 0 {
				fmt.Printf("\nOrphaned ledger entries (no file on disk): %d\n", len(orphans))
				for _, id := range orphans {
					fmt.Printf("  %s\n", id)
				}
			}
			return nil
		})
	},
}
