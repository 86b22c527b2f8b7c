// Package cli builds the alms command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// ServeFunc runs the HTTP server until ctx is cancelled. The binary supplies
// it so internal packages never import the root package.
type ServeFunc func(ctx context.Context, logger *slog.Logger) error

// NewRootCommand returns the alms command with every subcommand attached.
func NewRootCommand(version string, serve ServeFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alms",
		Short: "Bookkeeping, reconciliation and reporting for almsdata",
		Long: `alms manages the almsdata PostgreSQL database: schema migrations,
reconciliation of charters, payments, receipts and banking, bank statement
imports, vendor clean-up and reports.

Configuration comes from the environment (and .env when present).`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("database-url", "", "Override DATABASE_URL")

	rootCmd.AddCommand(
		newMigrateCommand(),
		newSchemaCommand(),
		newAuditCommand(),
		newReconcileCommand(),
		newStatementCommand(),
		newBankingCommand(),
		newVendorsCommand(),
		newReportCommand(),
		newUserCommand(),
		newWatchCommand(),
		newServeCommand(serve),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "alms %s\n", version)
			},
		},
	)
	return rootCmd
}
