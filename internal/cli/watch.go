package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/storage"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print reconciliation runs as they complete",
		Long: `Listens on the alms_runs channel and prints each completed run's
summary as JSON, one per line, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if err := s.db.Listen(ctx, storage.ChannelRuns); err != nil {
		return err
	}
	s.logger.Info("watching reconciliation runs", "channel", storage.ChannelRuns)
	for {
		_, payload, err := s.db.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), payload); err != nil {
			return err
		}
	}
}
