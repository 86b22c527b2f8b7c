package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/report"
)

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <name>",
		Short: "Generate a report",
		Long: "Generates one of: " + strings.Join(report.Names(), ", ") + `.
Text goes to the terminal; use --out for csv and xlsx files.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: report.Names(),
		RunE:      runReport,
	}
	addRangeFlags(cmd)
	cmd.Flags().String("format", string(report.FormatText), "Output format: text|csv|json|xlsx")
	cmd.Flags().String("out", "", "Write to this file instead of stdout")
	cmd.Flags().Bool("all", false, "charter-balances: include settled charters")
	cmd.Flags().String("as-of", "", "receivables: aging date (default: today)")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	rawFormat, err := OptionalStringFlag(cmd, "format")
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(rawFormat)
	if err != nil {
		return err
	}
	outPath, err := OptionalStringFlag(cmd, "out")
	if err != nil {
		return err
	}
	if format == report.FormatXLSX && outPath == "" {
		return fmt.Errorf("--format xlsx requires --out")
	}
	params, err := reportParams(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	rep, err := report.NewGenerator(s.db).Generate(cmd.Context(), args[0], params)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := report.Render(w, rep, format); err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", outPath)
	}
	return nil
}

func reportParams(cmd *cobra.Command) (report.Params, error) {
	dr, err := rangeFlags(cmd)
	if err != nil {
		return report.Params{}, err
	}
	p := report.Params{Range: dr}
	if p.All, err = boolFlag(cmd, "all"); err != nil {
		return report.Params{}, err
	}
	asOf, err := OptionalStringFlag(cmd, "as-of")
	if err != nil {
		return report.Params{}, err
	}
	if asOf != "" {
		if p.AsOf, err = time.Parse(time.DateOnly, asOf); err != nil {
			return report.Params{}, fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
		}
	}
	return p, nil
}
