package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/statement"
)

func newStatementCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Bank statement tools",
	}
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV, XLSX or PDF bank statement",
		Long: `Parses a statement and stores its transactions under --account.
Every row is fingerprinted, so importing the same statement twice inserts
nothing the second time.`,
		Args: cobra.ExactArgs(1),
		RunE: runStatementImport,
	}
	importCmd.Flags().String("account", "", "Bank account number the statement belongs to (required)")
	importCmd.Flags().String("format", "", "Statement format: csv|xlsx|pdf (default: from extension)")
	importCmd.Flags().Bool("dry-run", false, "Parse and report without writing")
	importCmd.Flags().Bool("json", false, "Print machine-readable output")
	_ = importCmd.MarkFlagRequired("account")

	cmd.AddCommand(importCmd)
	return cmd
}

func runStatementImport(cmd *cobra.Command, args []string) error {
	account, err := OptionalStringFlag(cmd, "account")
	if err != nil {
		return err
	}
	rawFormat, err := OptionalStringFlag(cmd, "format")
	if err != nil {
		return err
	}
	opts := statement.ImportOptions{Account: account}
	if rawFormat != "" {
		if opts.Format, err = statement.ParseFormat(rawFormat); err != nil {
			return err
		}
	}
	if opts.DryRun, err = boolFlag(cmd, "dry-run"); err != nil {
		return err
	}
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}

	var (
		store  statement.Store
		logger = NewLogger("")
	)
	if !opts.DryRun {
		s, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer s.Close()
		store, logger = s.db, s.logger
	}

	res, err := statement.NewImporter(store, logger).ImportFile(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	return printImport(cmd.OutOrStdout(), res)
}

func printImport(w io.Writer, res statement.ImportResult) error {
	if res.DryRun {
		rows := make([][]string, 0, len(res.Transactions))
		for _, t := range res.Transactions {
			rows = append(rows, []string{
				formatDate(t.TransactionDate), t.Description,
				t.DebitAmount.StringFixed(2), t.CreditAmount.StringFixed(2), t.VendorExtracted,
			})
		}
		if err := writeTable(w, []string{"date", "description", "debit", "credit", "vendor"}, rows); err != nil {
			return err
		}
	}
	for _, re := range res.RowErrors {
		if _, err := fmt.Fprintf(w, "skipped %s\n", re.Error()); err != nil {
			return err
		}
	}
	b := res.Batch
	if res.DryRun {
		_, err := fmt.Fprintf(w, "%s (%s): %d transactions parsed, nothing written\n", b.SourceFile, b.Format, b.ParsedCount)
		return err
	}
	_, err := fmt.Fprintf(w, "%s (%s): %d parsed, %d inserted, %d duplicates (batch %s)\n",
		b.SourceFile, b.Format, b.ParsedCount, b.InsertedCount, b.DuplicateCount, b.ID)
	return err
}
