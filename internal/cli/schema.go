package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/storage"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the almsdata schema",
	}

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables with estimated row counts",
		Args:  cobra.NoArgs,
		RunE:  runSchemaTables,
	}
	tablesCmd.Flags().Bool("json", false, "Print machine-readable output")

	columnsCmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchemaColumns,
	}
	columnsCmd.Flags().Bool("json", false, "Print machine-readable output")

	cmd.AddCommand(tablesCmd, columnsCmd)
	return cmd
}

func runSchemaTables(cmd *cobra.Command, _ []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	tables, err := s.db.ListTables(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), tables)
	}
	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, []string{t.Name, strconv.FormatInt(t.EstimatedRows, 10)})
	}
	return writeTable(cmd.OutOrStdout(), []string{"table", "estimated_rows"}, rows)
}

func runSchemaColumns(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	cols, err := s.db.ListColumns(cmd.Context(), args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("table %q does not exist", args[0])
	}
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), cols)
	}
	rows := make([][]string, 0, len(cols))
	for _, c := range cols {
		def := ""
		if c.Default != nil {
			def = *c.Default
		}
		rows = append(rows, []string{c.Name, c.DataType, strconv.FormatBool(c.Nullable), def})
	}
	return writeTable(cmd.OutOrStdout(), []string{"column", "type", "nullable", "default"}, rows)
}
