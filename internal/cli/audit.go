package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/reconcile"
)

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check bookkeeping invariants without changing data",
		Long: `Runs the selected reconciliation checks (all by default) and records
the findings. Nothing is modified; run "alms reconcile --apply" to fix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error { return runReconcile(cmd, false) },
	}
	addReconcileFlags(cmd)
	cmd.Flags().Bool("list", false, "List available checks and exit")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fix bookkeeping invariants",
		Long: `Runs the selected checks and, with --apply, fixes what can be fixed.
Each charter is corrected in its own serializable transaction with an audit
row per change. Re-running after a successful apply reports nothing fixable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			apply, err := boolFlag(cmd, "apply")
			if err != nil {
				return err
			}
			if !apply {
				fmt.Fprintln(cmd.ErrOrStderr(), "dry run: pass --apply to write fixes")
			}
			return runReconcile(cmd, apply)
		},
	}
	addReconcileFlags(cmd)
	cmd.Flags().Bool("apply", false, "Write fixes")
	return cmd
}

func addReconcileFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("checks", nil, "Checks to run (default: all)")
	cmd.Flags().String("reserve", "", "Limit charter checks to one reserve number")
	cmd.Flags().Bool("json", false, "Print machine-readable output")
}

func runReconcile(cmd *cobra.Command, apply bool) error {
	if cmd.Flags().Lookup("list") != nil {
		list, err := boolFlag(cmd, "list")
		if err != nil {
			return err
		}
		if list {
			return printCatalog(cmd.OutOrStdout(), reconcile.Catalog())
		}
	}
	checks, err := cmd.Flags().GetStringSlice("checks")
	if err != nil {
		return fmt.Errorf("failed to read --checks flag: %w", err)
	}
	// Validate before connecting.
	if _, err := reconcile.ParseChecks(checks); err != nil {
		return err
	}
	reserve, err := reserveFlag(cmd)
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

	opts := reconcile.Options{Tolerance: s.cfg.ReconcileTolerance, GSTRate: s.cfg.GSTRate}
	res, err := reconcile.New(s.db, opts, s.logger).Run(cmd.Context(), reconcile.Request{
		Checks:  checks,
		Reserve: reserve,
		Apply:   apply,
		Actor:   actor(),
	})
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	return printResult(cmd.OutOrStdout(), res)
}

func printCatalog(w io.Writer, checks []reconcile.CheckInfo) error {
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		rows = append(rows, []string{c.Name, string(c.Severity), strconv.FormatBool(c.Fixable), c.Description})
	}
	return writeTable(w, []string{"check", "severity", "fixable", "description"}, rows)
}

func printResult(w io.Writer, res reconcile.Result) error {
	if len(res.Findings) > 0 {
		rows := make([][]string, 0, len(res.Findings))
		for _, f := range res.Findings {
			rows = append(rows, []string{
				f.Check, string(f.Severity), f.EntityType, f.EntityKey,
				money(f.Expected), money(f.Actual), strconv.FormatBool(f.Fixed), f.Message,
			})
		}
		headers := []string{"check", "severity", "entity", "key", "expected", "actual", "fixed", "message"}
		if err := writeTable(w, headers, rows); err != nil {
			return err
		}
	}
	run := res.Run
	_, err := fmt.Fprintf(w, "run %s (%s): %d findings, %d fixed, %d failed\n",
		run.ID, run.Mode, run.FindingsCount, run.FixedCount, run.FailedCount)
	return err
}
