package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tollgate/internal/idp/app"
)

var rootCmd = &cobra.Command{
	Use:   "tollgate",
	Short: "Tollgate is an identity provider for interactive and confidential clients",
	Long: `Tollgate runs the authorization code flow with PKCE, consent and MFA,
rotates refresh tokens with reuse detection and bridges SAML identity providers.

Configuration is read from the environment (TOLLGATE_*, LOG_*, PORT, ...).`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			fmt.Printf("Error displaying help: %v\n", err)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of tollgate",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("tollgate " + app.BuildVersion)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
