// Package alms is the public API for embedding the ALMS bookkeeping server.
//
//	app, err := alms.New(
//	    alms.WithVersion(version),
//	    alms.WithLogger(logger),
//	    alms.WithFindingHook(myHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, never the reverse. Public types are
// standalone structs; conversion from internal types happens in this file.
package alms

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/arrowlimo/alms/api"
	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/config"
	"github.com/arrowlimo/alms/internal/mcp"
	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/ratelimit"
	"github.com/arrowlimo/alms/internal/reconcile"
	"github.com/arrowlimo/alms/internal/report"
	"github.com/arrowlimo/alms/internal/server"
	"github.com/arrowlimo/alms/internal/storage"
	"github.com/arrowlimo/alms/internal/telemetry"
	"github.com/arrowlimo/alms/migrations"
)

const shutdownTimeout = 10 * time.Second

// App is the ALMS server lifecycle. Construct with New, run with Run.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	broker       *server.Broker // nil when no notify connection
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New connects to the database, applies migrations and wires every
// subsystem. It starts no goroutines; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("alms starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	db.RegisterPoolMetrics()

	fail := func(err error) (*App, error) {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, err
	}

	if cfg.SkipMigrations {
		logger.Info("migrations skipped by config")
	} else {
		applied, err := db.RunMigrations(ctx, append([]fs.FS{migrations.FS}, o.extraMigrations...)...)
		if err != nil {
			return fail(fmt.Errorf("migrations: %w", err))
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "versions", applied)
		}
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}
	users := auth.NewUsers(db, jwtMgr, logger)

	var hooks []reconcile.Hook
	for _, h := range o.findingHooks {
		hooks = append(hooks, &findingHookAdapter{hook: h})
	}
	auditor := reconcile.New(db, ReconcileOptions(cfg), logger, hooks...)
	reports := report.NewGenerator(db)

	mcpSrv := mcp.New(db, reports, auditor, logger, version)

	var broker *server.Broker
	if db.HasNotifyConn() {
		broker = server.NewBroker(db, logger)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	rlCfg := RateLimitConfig(cfg)
	limiter := ratelimit.New(rlCfg)
	if rlCfg.Enabled {
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", rlCfg.RPS, "burst", rlCfg.Burst, "idle_ttl", rlCfg.IdleTTL)
	} else {
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		Store:               db,
		Users:               users,
		Auditor:             auditor,
		Reports:             reports,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		Limiter:             limiter,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		broker:       broker,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// ReconcileOptions maps configuration onto reconciliation rule options.
func ReconcileOptions(cfg config.Config) reconcile.Options {
	return reconcile.Options{Tolerance: cfg.ReconcileTolerance, GSTRate: cfg.GSTRate}
}

// RateLimitConfig maps the ALMS_RATE_LIMIT_* settings onto the limiter.
func RateLimitConfig(cfg config.Config) ratelimit.Config {
	return ratelimit.Config{
		Enabled: cfg.RateLimitEnabled,
		RPS:     cfg.RateLimitRPS,
		Burst:   cfg.RateLimitBurst,
		IdleTTL: cfg.RateLimitIdleTTL,
	}
}

// Run starts the broker and the HTTP server, then blocks until ctx is
// cancelled or the server fails. Shutdown runs before Run returns.
func (a *App) Run(ctx context.Context) error {
	if a.broker != nil {
		go a.broker.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}
	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then releases the limiter, the
// database pool and the telemetry providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("alms shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	err := a.srv.Shutdown(httpCtx)
	cancel()
	if err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("alms stopped")
	return err
}

// findingHookAdapter exposes internal runs to a public FindingHook.
type findingHookAdapter struct {
	hook FindingHook
}

func (a *findingHookAdapter) OnRunComplete(ctx context.Context, run model.ReconciliationRun, findings []model.Finding) error {
	pub := make([]Finding, len(findings))
	for i, f := range findings {
		pub[i] = toPublicFinding(f)
	}
	return a.hook.OnRunComplete(ctx, toPublicRun(run), pub)
}

func toPublicRun(r model.ReconciliationRun) Run {
	return Run{
		ID:            r.ID,
		Apply:         r.Mode == model.RunModeApply,
		Checks:        r.Checks,
		StartedBy:     r.StartedBy,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		FindingsCount: r.FindingsCount,
		FixedCount:    r.FixedCount,
		FailedCount:   r.FailedCount,
	}
}

func toPublicFinding(f model.Finding) Finding {
	out := Finding{
		Check:      f.Check,
		Severity:   string(f.Severity),
		EntityType: f.EntityType,
		EntityKey:  f.EntityKey,
		Message:    f.Message,
		Fixed:      f.Fixed,
	}
	if f.Expected != nil {
		out.Expected = f.Expected.StringFixed(2)
	}
	if f.Actual != nil {
		out.Actual = f.Actual.StringFixed(2)
	}
	return out
}
