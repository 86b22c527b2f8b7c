package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newServeCommand(serve ServeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Reads .env before anything looks at ALMS_LOG_LEVEL.
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
			slog.SetDefault(logger)
			// The app loads its own config; carry the flag override through.
			if err := os.Setenv("DATABASE_URL", cfg.DatabaseURL); err != nil {
				return err
			}
			return serve(cmd.Context(), logger)
		},
	}
}
