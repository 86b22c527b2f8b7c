package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/config"
	"github.com/arrowlimo/alms/internal/storage"
)

// session is the configuration, logger and database shared by one command.
type session struct {
	cfg    config.Config
	db     *storage.DB
	logger *slog.Logger
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	url, err := OptionalStringFlag(cmd, "database-url")
	if err != nil {
		return config.Config{}, err
	}
	if url != "" {
		cfg.DatabaseURL = url
	}
	return cfg, nil
}

// NewLogger returns the interactive logger: text on stderr, debug when
// level is "debug".
func NewLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// parseLevel maps ALMS_LOG_LEVEL to a slog level; anything unknown is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openSession connects to almsdata. withNotify also opens the dedicated
// LISTEN connection, falling back to DATABASE_URL when NOTIFY_URL is unset.
func openSession(cmd *cobra.Command, withNotify bool) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg.LogLevel)

	notifyURL := ""
	if withNotify {
		notifyURL = cfg.NotifyURL
		if notifyURL == "" {
			notifyURL = cfg.DatabaseURL
		}
	}
	db, err := storage.New(cmd.Context(), cfg.DatabaseURL, notifyURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &session{cfg: cfg, db: db, logger: logger}, nil
}

func (s *session) Close() {
	s.db.Close(context.Background())
}

// actor names the operator in audit columns.
func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}
