package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/galleyhq/galley/internal/cli"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the project directory layout",
	Long: `Create the directories galley reads from: the migration, data, and Solr
roots plus the directory holding the schema snapshot. Existing directories
are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs := []string{
			filepath.Dir(cfg.Paths.Schema),
			cfg.Paths.Solr,
			cfg.Paths.Migrations,
			cfg.Paths.Data,
		}
		for _, dir := range dirs {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return cli.GeneralError("creating "+dir, err)
			}
			if !quiet {
				fmt.Printf("  %s/\n", filepath.ToSlash(dir))
			}
		}
		return nil
	},
}
