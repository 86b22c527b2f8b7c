package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/matching"
)

func newBankingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banking",
		Short: "Banking transaction tools",
	}
	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Match unlinked receipts to banking debits",
		Long: `Pairs receipts with debits of the same amount within --window, scoring
date closeness and vendor similarity. With --apply each pair is linked.`,
		Args: cobra.NoArgs,
		RunE: runBankingMatch,
	}
	addRangeFlags(matchCmd)
	matchCmd.Flags().Duration("window", 0, "Largest date gap between receipt and debit (default: ALMS_MATCH_WINDOW)")
	matchCmd.Flags().Bool("apply", false, "Link matched receipts")
	matchCmd.Flags().Bool("json", false, "Print machine-readable output")

	cmd.AddCommand(matchCmd)
	return cmd
}

func runBankingMatch(cmd *cobra.Command, _ []string) error {
	dr, err := rangeFlags(cmd)
	if err != nil {
		return err
	}
	window, err := cmd.Flags().GetDuration("window")
	if err != nil {
		return fmt.Errorf("failed to read --window flag: %w", err)
	}
	if window < 0 {
		return fmt.Errorf("--window must not be negative")
	}
	apply, err := boolFlag(cmd, "apply")
	if err != nil {
		return err
	}
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := matching.Options{Tolerance: s.cfg.ReconcileTolerance, Window: s.cfg.MatchWindow}
	if cmd.Flags().Changed("window") {
		opts.Window = window
	}
	out, err := matching.NewService(s.db, opts, s.logger).Run(cmd.Context(), matching.Request{
		Range: dr,
		Apply: apply,
		Actor: actor(),
	})
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	return printMatches(cmd.OutOrStdout(), out, apply)
}

func printMatches(w io.Writer, out matching.Outcome, applied bool) error {
	if len(out.Matches) > 0 {
		rows := make([][]string, 0, len(out.Matches))
		for _, m := range out.Matches {
			rows = append(rows, []string{
				strconv.FormatInt(m.ReceiptID, 10), strconv.FormatInt(m.TransactionID, 10),
				m.Amount.StringFixed(2), formatDate(m.ReceiptDate), formatDate(m.DebitDate),
				m.Vendor, m.Description, strconv.FormatFloat(m.Score, 'f', 3, 64),
			})
		}
		headers := []string{"receipt", "transaction", "amount", "receipt_date", "debit_date", "vendor", "description", "score"}
		if err := writeTable(w, headers, rows); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d matches, %d receipts and %d debits left unmatched\n",
		len(out.Matches), len(out.UnmatchedReceipts), len(out.UnmatchedDebits))
	if err != nil || !applied {
		return err
	}
	_, err = fmt.Fprintf(w, "linked %d, skipped %d already linked\n", out.Linked, out.Skipped)
	return err
}
