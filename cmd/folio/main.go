package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/foliohq/folio/pkg/api"
	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/config"
	"github.com/foliohq/folio/pkg/links"
	"github.com/foliohq/folio/pkg/middleware"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

func main() {
	bootLogger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		bootLogger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting folio permission service")

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}
	cancel()

	if err := workspace.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Workspace migrations failed")
		os.Exit(1)
	}
	if err := authz.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Permission migrations failed")
		os.Exit(1)
	}
	if err := links.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Public link migrations failed")
		os.Exit(1)
	}

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("Failed to create audit logger")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Error("Invalid redis URL")
			os.Exit(1)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, rate limiting will fail open")
		}
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	workspaceStore := workspace.NewStore(db)
	permissionStore := authz.NewStore(db, auditLogger, logger)

	resolver := authz.NewResolver(workspaceStore, permissionStore, workspaceStore, logger, authz.ResolverConfig{
		MaxAncestorDepth: cfg.Authz.MaxAncestorDepth,
		ResolveTimeout:   cfg.Authz.ResolveTimeout,
	})
	if metrics != nil {
		resolver = resolver.WithMetrics(metrics)
	}
	if cfg.Authz.CacheSize > 0 {
		cache, err := authz.NewDecisionCache(cfg.Authz.CacheSize, workspaceStore)
		if err != nil {
			logger.WithError(err).Error("Failed to create decision cache")
			os.Exit(1)
		}
		resolver = resolver.WithCache(cache)
	}

	linkStore := links.NewStore(db, auditLogger)
	linkValidator := links.NewValidator(linkStore, workspaceStore, logger, cfg.Authz.MaxAncestorDepth)
	if metrics != nil {
		linkValidator = linkValidator.WithMetrics(metrics)
	}

	janitor := links.NewJanitor(linkStore, logger, auditLogger, cfg.Links.PurgeSchedule, cfg.Links.PurgeRetention)
	if err := janitor.Start(); err != nil {
		logger.WithError(err).Error("Failed to start link janitor")
		os.Exit(1)
	}

	policy := api.DefaultPolicy()
	if cfg.Policy.Path != "" {
		policy, err = api.LoadPolicy(cfg.Policy.Path)
		if err != nil {
			logger.WithError(err).Errorf("Failed to load policy file %s", cfg.Policy.Path)
			os.Exit(1)
		}
		logger.Infof("Loaded action policy from %s", cfg.Policy.Path)
	}

	var rateLimit *middleware.RateLimitMiddleware
	if redisClient != nil {
		rateLimit = middleware.NewRateLimitMiddleware(redisClient, logger)
	}

	apiServer := api.NewServer(api.ServerDeps{
		Logger:           logger,
		Metrics:          metrics,
		Resolver:         resolver,
		PermissionStore:  permissionStore,
		WorkspaceStore:   workspaceStore,
		LinkStore:        linkStore,
		LinkValidator:    linkValidator,
		AuditLogger:      auditLogger,
		Policy:           policy,
		RateLimit:        rateLimit,
		BatchConcurrency: cfg.Authz.BatchConcurrency,
	})

	var handler http.Handler = apiServer.Router()
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "folio-api")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if registry != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		janitor.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	go func() {
		logger.Infof("Health endpoints listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
