package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/galleyhq/galley/internal/cli"
	"github.com/galleyhq/galley/pkg/solr"
)

var (
	solrCore     string
	solrCoreName string
)

var solrCmd = &cobra.Command{
	Use:   "solr",
	Short: "Publish Solr core configuration",
	Long: `Publish the core directories under paths.solr to Solr.

Every file in a core directory is uploaded to the resource endpoint, then the
core admin API is asked to create or reload the core.`,
}

var solrCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload core configuration and create the cores",
	Example: `  # Create every core
  galley solr create

  # Create one core
  galley solr create --core=app.users`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPublisher()
		if err != nil {
			return err
		}
		if err := p.Create(cmd.Context(), solrCore); err != nil {
			return cli.Classify("creating cores", err)
		}
		if !quiet {
			fmt.Println("Cores created.")
		}
		return nil
	},
}

var solrMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload core configuration and reload the cores",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPublisher()
		if err != nil {
			return err
		}
		if err := p.Migrate(cmd.Context(), solrCore); err != nil {
			return cli.Classify("reloading cores", err)
		}
		if !quiet {
			fmt.Println("Cores reloaded.")
		}
		return nil
	},
}

var solrAddCoreCmd = &cobra.Command{
	Use:     "add_core",
	Aliases: []string{"add-core"},
	Short:   "Create a core directory with empty configuration files",
	Example: `  galley solr add_core --name=app.users`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := solr.AddCore(cfg.Paths.Solr, solrCoreName)
		if err != nil {
			return cli.Classify("adding core", err)
		}
		if !quiet {
			fmt.Printf("Created core: %s\n", dir)
		}
		return nil
	},
}

func init() {
	solrCreateCmd.Flags().StringVar(&solrCore, "core", "", "core to publish (default: all cores)")
	solrMigrateCmd.Flags().StringVar(&solrCore, "core", "", "core to publish (default: all cores)")
	solrAddCoreCmd.Flags().StringVar(&solrCoreName, "name", "", "core name, e.g. app.users")

	solrCmd.AddCommand(solrCreateCmd, solrMigrateCmd, solrAddCoreCmd)
}

func newPublisher() (*solr.Publisher, error) {
	p, err := solr.New(cfg.Paths.Solr, solr.Config{
		URL:      cfg.Solr.URL,
		Username: cfg.Solr.Username,
		Password: cfg.Solr.Password,
		Retries:  cfg.Solr.Retries,
		Timeout:  cfg.Solr.Timeout,
	}, solr.WithLogger(logger))
	if err != nil {
		return nil, cli.ConfigError("solr.url is required", err)
	}
	return p, nil
}
