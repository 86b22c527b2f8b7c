package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/vendors"
)

func newVendorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Vendor name tools",
	}
	normalizeCmd := &cobra.Command{
		Use:   "normalize",
		Short: "Cluster spellings of the same vendor",
		Long: `Groups receipt vendor names whose normalized forms are similar and
picks the most frequent spelling as canonical. With --apply the aliases are
stored and receipts.canonical_vendor is rewritten.`,
		Args: cobra.NoArgs,
		RunE: runVendorsNormalize,
	}
	normalizeCmd.Flags().Float64("threshold", 0, "Similarity in (0,1] needed to join a cluster (default: ALMS_VENDOR_SIMILARITY)")
	normalizeCmd.Flags().Bool("apply", false, "Store aliases and update receipts")
	normalizeCmd.Flags().Bool("json", false, "Print machine-readable output")

	cmd.AddCommand(normalizeCmd)
	return cmd
}

func runVendorsNormalize(cmd *cobra.Command, _ []string) error {
	threshold, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return fmt.Errorf("failed to read --threshold flag: %w", err)
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("--threshold must be in (0, 1]")
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

	svc := vendors.NewService(s.db, s.cfg.VendorSimilarity, s.logger)
	var (
		clusters []vendors.Cluster
		updated  int64
	)
	if apply {
		clusters, updated, err = svc.Apply(cmd.Context(), actor(), threshold)
	} else {
		clusters, err = svc.Plan(cmd.Context(), threshold)
	}
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"clusters": clusters, "receipts_updated": updated})
	}
	if err := printClusters(cmd.OutOrStdout(), clusters); err != nil {
		return err
	}
	if apply {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %d receipts\n", updated)
	}
	return err
}

func printClusters(w io.Writer, clusters []vendors.Cluster) error {
	if len(clusters) == 0 {
		_, err := fmt.Fprintln(w, "no vendor spellings to merge")
		return err
	}
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		spellings := make([]string, 0, len(c.Members))
		for _, m := range c.Members {
			spellings = append(spellings, fmt.Sprintf("%s (%d)", m.Name, m.Count))
		}
		rows = append(rows, []string{c.Canonical, strconv.Itoa(c.Total), strings.Join(spellings, "; ")})
	}
	return writeTable(w, []string{"canonical", "receipts", "spellings"}, rows)
}
