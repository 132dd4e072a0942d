package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appintegration "github.com/ledgerlink/backend/internal/application/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/accounting"
	"github.com/ledgerlink/backend/internal/infrastructure/auth"
	"github.com/ledgerlink/backend/internal/infrastructure/cache"
	"github.com/ledgerlink/backend/internal/infrastructure/config"
	"github.com/ledgerlink/backend/internal/infrastructure/crm"
	"github.com/ledgerlink/backend/internal/infrastructure/logger"
	"github.com/ledgerlink/backend/internal/infrastructure/migration"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence"
	"github.com/ledgerlink/backend/internal/infrastructure/scheduler"
	"github.com/ledgerlink/backend/internal/infrastructure/telemetry"
	"github.com/ledgerlink/backend/internal/interfaces/http/handler"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
	"github.com/ledgerlink/backend/internal/interfaces/http/router"
)

const slowQueryThreshold = 200 * time.Millisecond

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}

	// Ship logs to the collector alongside stdout
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	bridgeLevel, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		bridgeLevel = zapcore.InfoLevel
	}
	log = logProvider.Bridge(log, bridgeLevel)

	log.Info("Starting ledgerlink",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingAuthPass,
		Contention:        cfg.Telemetry.ProfilingContention,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter(telemetry.TracerName)

	// Initialize database connection with the zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), slowQueryThreshold)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.SlowQueryThresh = slowQueryThreshold
	dbTracing.DBName = cfg.Database.DBName
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get underlying sql.DB", zap.Error(err))
	}
	migrator, err := migration.New(sqlDB, log)
	if err != nil {
		log.Fatal("Failed to initialize migrator", zap.Error(err))
	}
	if err := migrator.Up(); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Webhook de-duplication store
	dedup, err := cache.NewDeduplicatorFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).Create(ctx)
	if err != nil {
		log.Fatal("Failed to initialize webhook deduplicator", zap.Error(err))
	}
	defer func() {
		if err := dedup.Close(); err != nil {
			log.Error("Error closing deduplicator", zap.Error(err))
		}
	}()

	// Revoked operator tokens share the Redis instance
	var revocations auth.RevocationList
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, token revocations are kept in memory", zap.Error(err))
		revocations = auth.NewInMemoryRevocationList()
	} else {
		defer func() { _ = redisClient.Close() }()
		revocations = auth.NewRedisRevocationList(redisClient)
	}

	// Remote systems
	hubspotCfg := crm.NewHubSpotConfig(cfg.CRM.ClientID, cfg.CRM.ClientSecret)
	if cfg.CRM.APIBaseURL != "" {
		hubspotCfg.APIBaseURL = cfg.CRM.APIBaseURL
	}
	hubspotCfg.TimeoutSeconds = cfg.CRM.TimeoutSeconds
	crmGateway, err := crm.NewHubSpotGateway(hubspotCfg, log.Named("hubspot"))
	if err != nil {
		log.Fatal("Failed to initialize HubSpot gateway", zap.Error(err))
	}
	crmRefresher, err := crm.NewHubSpotRefresher(hubspotCfg)
	if err != nil {
		log.Fatal("Failed to initialize HubSpot token refresher", zap.Error(err))
	}

	saasuCfg := accounting.NewSaasuConfig()
	if cfg.Accounting.APIBaseURL != "" {
		saasuCfg.APIBaseURL = cfg.Accounting.APIBaseURL
	}
	saasuCfg.TimeoutSeconds = cfg.Accounting.TimeoutSeconds
	if cfg.Accounting.PageSize > 0 {
		saasuCfg.PageSize = cfg.Accounting.PageSize
	}
	accountingGateway, err := accounting.NewSaasuGateway(saasuCfg, log.Named("saasu"))
	if err != nil {
		log.Fatal("Failed to initialize Saasu gateway", zap.Error(err))
	}
	accountingRefresher, err := accounting.NewSaasuRefresher(saasuCfg)
	if err != nil {
		log.Fatal("Failed to initialize Saasu token refresher", zap.Error(err))
	}

	// Initialize repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	mappingRepo := persistence.NewGormIdentityMapRepository(db.DB)
	runRepo := persistence.NewGormSyncRunRepository(db.DB)

	sessions := appintegration.NewSessionManager(tenantRepo, log, crmRefresher, accountingRefresher)

	writeBack, err := cfg.Sync.WriteBackFactor()
	if err != nil {
		log.Fatal("Invalid sync configuration", zap.Error(err))
	}
	location, err := cfg.Sync.Location()
	if err != nil {
		log.Fatal("Invalid poll time zone", zap.Error(err))
	}
	syncOptions := appintegration.DefaultSyncOptions()
	syncOptions.CurrencyFields = cfg.Sync.CurrencyFields
	syncOptions.QuoteStages = cfg.Sync.QuoteStages
	syncOptions.WriteBackFactor = writeBack

	synchronizers := appintegration.NewSynchronizers(appintegration.SynchronizerDeps{
		CRM:        crmGateway,
		Accounting: accountingGateway,
		Mappings:   mappingRepo,
		Options:    syncOptions,
		Logger:     log,
	})

	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}

	// Reconcile worker pool
	var deleter appintegration.Deleter
	if cfg.Sync.PropagateDeletions {
		deleter = appintegration.NewDeletionService(accountingGateway, mappingRepo, log)
	}
	executor := appintegration.NewReconcileExecutor(appintegration.ReconcileExecutorDeps{
		Sessions:      sessions,
		Synchronizers: synchronizers,
		CRM:           crmGateway,
		Deleter:       deleter,
		Metrics:       syncMetrics,
		Logger:        log,
	})
	queueCfg := scheduler.DefaultReconcileQueueConfig()
	queueCfg.Workers = cfg.Sync.Workers
	queueCfg.QueueSize = cfg.Sync.QueueSize
	queueCfg.JobTimeout = cfg.Sync.JobTimeout
	queueCfg.RetryAttempts = cfg.Sync.RetryAttempts
	queueCfg.RetryDelay = cfg.Sync.RetryDelay
	queue, err := scheduler.NewReconcileQueue(queueCfg, executor, log)
	if err != nil {
		log.Fatal("Failed to create reconcile queue", zap.Error(err))
	}
	if err := queue.Start(ctx); err != nil {
		log.Fatal("Failed to start reconcile queue", zap.Error(err))
	}

	eventRouter := appintegration.NewEventRouter(sessions, queue, dedup,
		appintegration.RouterOptions{
			PropagateDeletions: cfg.Sync.PropagateDeletions,
			DedupTTL:           cfg.Sync.DedupTTL,
		}, log)
	eventRouter.SetMetrics(syncMetrics)

	// Daily accounting poll
	pollDriver := appintegration.NewPollDriver(appintegration.PollDriverDeps{
		Accounting:    accountingGateway,
		Synchronizers: synchronizers,
		Runs:          runRepo,
		Tenants:       tenantRepo,
		Sessions:      sessions,
		Metrics:       syncMetrics,
		Logger:        log,
	})
	pollTrigger, err := scheduler.NewPollTrigger(scheduler.PollTriggerConfig{
		Hour:          cfg.Sync.PollHour,
		Minute:        cfg.Sync.PollMinute,
		Location:      location,
		CheckInterval: time.Minute,
		PollTimeout:   time.Hour,
	}, pollDriver, log)
	if err != nil {
		log.Fatal("Failed to create poll trigger", zap.Error(err))
	}
	if cfg.Sync.PollEnabled {
		if err := pollTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start poll trigger", zap.Error(err))
		}
	} else {
		log.Info("Daily poll disabled")
	}

	// HTTP handlers
	var webhookOpts []handler.WebhookHandlerOption
	if cfg.CRM.WebhookBaseURL != "" {
		webhookOpts = append(webhookOpts, handler.WithPublicBaseURL(cfg.CRM.WebhookBaseURL))
	}
	webhookHandler := handler.NewWebhookHandler(
		crm.NewSignatureVerifier(cfg.CRM.ClientSecret, crm.DefaultSignatureMaxSkew),
		eventRouter, log, webhookOpts...)
	healthHandler := handler.NewHealthHandler(cfg.App.Name, map[string]handler.HealthCheck{
		"database": db.PingContext,
	})
	opsHandler := handler.NewOpsHandler(pollTrigger, tenantRepo, runRepo, location, log)

	var jwtService *auth.JWTService
	if cfg.Ops.JWTSecret != "" {
		jwtService = auth.NewJWTService(cfg.Ops)
	} else {
		log.Warn("ops.jwt_secret not set, operator API disabled")
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer rateLimiter.Stop()
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		TracingEnabled: cfg.Telemetry.Enabled,
		Meter:          meter,

		ProfilingEnabled: profiler.IsEnabled(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RateLimiter:    rateLimiter,
		Webhook:        webhookHandler,
		Health:         healthHandler,
		Ops:            opsHandler,
		JWT: middleware.JWTMiddlewareConfig{
			JWTService:  jwtService,
			Revocations: revocations,
			Logger:      log,
		},
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cfg.Sync.PollEnabled {
		if err := pollTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping poll trigger", zap.Error(err))
		}
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error("Error draining reconcile queue", zap.Error(err))
	}

	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	shutdownTelemetry(shutdownCtx, log, meterProvider, tracerProvider, logProvider)
	log.Info("Server exited gracefully")
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownTelemetry flushes the exporters in order; the log exporter goes last
func shutdownTelemetry(ctx context.Context, log *zap.Logger, providers ...shutdowner) {
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Error("Error shutting down telemetry provider", zap.Error(err))
		}
	}
}
