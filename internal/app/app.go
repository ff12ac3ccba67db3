// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/attachments"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/incidents"
	incidentspostgres "github.com/opsdesk/opsdesk/internal/incidents/postgres"
	incidentssqlite "github.com/opsdesk/opsdesk/internal/incidents/sqlite"
	"github.com/opsdesk/opsdesk/internal/pkg/ctxlog"
	"github.com/opsdesk/opsdesk/internal/pkg/httputil"
	"github.com/opsdesk/opsdesk/internal/pkg/metrics"
	"github.com/opsdesk/opsdesk/internal/pkg/postgres"
	"github.com/opsdesk/opsdesk/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// App represents the application instance.
type App struct {
	config          *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	sqldb           *sql.DB
	server          *http.Server
	metricsServer   *http.Server
	metricsCancel   context.CancelFunc
	sweeper         *attachments.Sweeper
	incidentService *incidents.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	var (
		pool  *pgxpool.Pool
		sqldb *sql.DB
		repo  incidents.Repository
	)

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := incidentssqlite.Open(connectCtx, cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		sqldb = db
		repo = incidentssqlite.NewRepository(db)
	default:
		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		pool = db
		repo = incidentspostgres.NewRepository(db)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		pool:          pool,
		sqldb:         sqldb,
		metricsCancel: metricsCancel,
	}

	store, err := attachments.NewStore(cfg.Uploads.Dir)
	if err != nil {
		app.closeStorage()
		metricsCancel()
		return nil, fmt.Errorf("create attachment store: %w", err)
	}

	app.incidentService = incidents.NewService(repo, store)

	if cfg.Uploads.SweepInterval > 0 {
		app.sweeper = attachments.NewSweeper(attachments.SweeperConfig{
			Interval: cfg.Uploads.SweepInterval,
			MinAge:   cfg.Uploads.SweepMinAge,
		}, store, repo)
		app.sweeper.Start(metricsCtx)
	}

	go app.collectDBMetrics(metricsCtx)
	go app.collectIncidentMetrics(metricsCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the sweeper before pulling storage out from under it
	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.closeStorage()

	return errors.Join(errs...)
}

func (a *App) closeStorage() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqldb != nil {
		a.sqldb.Close()
	}
}

func (a *App) pingStorage(ctx context.Context) error {
	if a.pool != nil {
		return a.pool.Ping(ctx)
	}
	return a.sqldb.PingContext(ctx)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	a.recordDBMetrics()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.recordDBMetrics()
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) recordDBMetrics() {
	if a.pool != nil {
		metrics.RecordDBPoolMetrics(a.pool)
	}
	if a.sqldb != nil {
		metrics.RecordSQLDBMetrics(a.sqldb)
	}
}

func (a *App) collectIncidentMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			counts, err := a.incidentService.CountByStatus(ctx)
			if err != nil {
				slog.Error("failed to count incidents by status", "error", err)
				continue
			}
			incidents.RecordStatusCounts(counts)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>OpsDesk API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	var limiter *rate.Limiter
	if a.config.RateLimit.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.config.RateLimit.RPS), a.config.RateLimit.Burst)
	}

	incidentHandler := incidents.NewHandler(a.incidentService, a.config.Uploads.MaxSize)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.RateLimitMiddleware(limiter))

		incidentHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.pingStorage(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
