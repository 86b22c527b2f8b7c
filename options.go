package alms

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	port            int
	databaseURL     string
	notifyURL       string
	logger          *slog.Logger
	version         string
	findingHooks    []FindingHook
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (ALMS_PORT).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides DATABASE_URL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides NOTIFY_URL. LISTEN/NOTIFY needs a direct,
// non-pooled connection, so set this when DATABASE_URL points at PgBouncer.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version reported by /health and in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithFindingHook registers a hook called after every reconciliation run.
// Multiple hooks may be registered.
func WithFindingHook(hook FindingHook) Option {
	return func(o *resolvedOptions) { o.findingHooks = append(o.findingHooks, hook) }
}

// WithExtraMigrations adds a migration filesystem applied after the
// embedded almsdata migrations, in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
