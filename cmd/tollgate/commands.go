package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tollgate/internal/idp/app"
)

var (
	seedFile string
	port     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the identity provider. Migrations are applied on start and, when
TOLLGATE_SEED_FILE or --seed is set, the seed is applied before serving.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := app.LoadConfig()
		if seedFile != "" {
			cfg.SeedFile = seedFile
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}

		application, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return application.Run()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := app.LoadConfig()
		db, err := app.OpenDatabase(cfg, app.NewLogger(cfg))
		if err != nil {
			return err
		}
		return db.Close()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load orgs, roles, scopes, clients, users and SAML IdPs from a YAML file",
	Long: `Load a YAML seed into the database. Rows that already exist are left
untouched, so the same file can be applied on every deploy. Values such as
client secrets and passwords may reference environment variables (${NAME}).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.LoadConfig()
		path := cfg.SeedFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no seed file: pass one or set TOLLGATE_SEED_FILE")
		}

		res, err := app.SeedDatabase(cmd.Context(), cfg, path, app.NewLogger(cfg))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rows, %d already present\n", res.Created, res.Skipped)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&seedFile, "seed", "", "YAML seed applied before serving (overrides TOLLGATE_SEED_FILE)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port (overrides PORT)")
}
