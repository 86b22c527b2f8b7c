package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/storage"
	"github.com/arrowlimo/alms/migrations"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Applies every embedded migration not yet recorded in schema_migrations.
Each file runs in its own transaction. Migrations are forward-only.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("status", false, "List migrations and their state without applying")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	statusOnly, err := boolFlag(cmd, "status")
	if err != nil {
		return err
	}
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if statusOnly {
		status, err := s.db.MigrationStatus(cmd.Context(), migrations.FS)
		if err != nil {
			return err
		}
		return printMigrationStatus(out, status)
	}

	applied, err := s.db.RunMigrations(cmd.Context(), migrations.FS)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		_, err = fmt.Fprintln(out, "schema is up to date")
		return err
	}
	for _, v := range applied {
		if _, err := fmt.Fprintf(out, "applied %s\n", v); err != nil {
			return err
		}
	}
	return nil
}

func printMigrationStatus(w io.Writer, status []storage.MigrationStatus) error {
	rows := make([][]string, 0, len(status))
	for _, m := range status {
		appliedAt := ""
		if m.AppliedAt != nil {
			appliedAt = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{m.Version, strconv.FormatBool(m.Applied), appliedAt, strconv.FormatBool(m.Drifted)})
	}
	return writeTable(w, []string{"version", "applied", "applied_at", "drifted"}, rows)
}
