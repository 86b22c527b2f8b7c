package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/model"
)

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func boolFlag(cmd *cobra.Command, name string) (bool, error) {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return v, nil
}

// rangeFlags reads --from and --to as YYYY-MM-DD.
func rangeFlags(cmd *cobra.Command) (model.DateRange, error) {
	from, err := OptionalStringFlag(cmd, "from")
	if err != nil {
		return model.DateRange{}, err
	}
	to, err := OptionalStringFlag(cmd, "to")
	if err != nil {
		return model.DateRange{}, err
	}
	return model.ParseDateRange(from, to)
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date, inclusive (YYYY-MM-DD)")
}

// reserveFlag returns --reserve as a filter, nil when unset.
func reserveFlag(cmd *cobra.Command) (*string, error) {
	v, err := OptionalStringFlag(cmd, "reserve")
	if err != nil || v == "" {
		return nil, err
	}
	return &v, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
