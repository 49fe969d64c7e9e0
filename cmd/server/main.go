package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	integrationapp "github.com/cardvault/backend/internal/application/integration"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/infrastructure/cache"
	"github.com/cardvault/backend/internal/infrastructure/config"
	"github.com/cardvault/backend/internal/infrastructure/crypto"
	"github.com/cardvault/backend/internal/infrastructure/ecommerce"
	"github.com/cardvault/backend/internal/infrastructure/logger"
	"github.com/cardvault/backend/internal/infrastructure/persistence"
	"github.com/cardvault/backend/internal/infrastructure/scheduler"
	"github.com/cardvault/backend/internal/infrastructure/telemetry"
	"github.com/cardvault/backend/internal/interfaces/http/handler"
	"github.com/cardvault/backend/internal/interfaces/http/middleware"
	"github.com/cardvault/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry providers; each one is a no-op when disabled
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = lp.Tee(log)

	log.Info("Starting CardVault sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Production schemas are applied with cmd/migrate
	if cfg.App.Env != "production" {
		if err := db.Migrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Secrets are sealed at rest with the configured key
	key, err := cfg.Secrets.KeyBytes()
	if err != nil {
		log.Fatal("Invalid secrets key", zap.Error(err))
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		log.Fatal("Failed to initialize secret sealer", zap.Error(err))
	}

	tokens, err := cache.NewTokenCacheFactory(cfg.Redis, cfg.Sync.TokenExpiryMargin,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateCache(cfg.Sync.TokenCache)
	if err != nil {
		log.Fatal("Failed to initialize token cache", zap.Error(err))
	}

	// Initialize repositories
	cardRepo := persistence.NewGormCardRepository(db.DB)
	recordRepo := persistence.NewGormRecordRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB, sealer)
	refStore := persistence.NewGormRemoteRefStore(db.DB)

	registry, err := newAdapterRegistry(cfg, ecommerce.Dependencies{
		Refs:   refStore,
		Tokens: tokens,
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to initialize marketplace adapters", zap.Error(err))
	}

	// Initialize application services
	engine := integrationapp.NewSyncEngine(credentialRepo, cardRepo, recordRepo, registry, integrationapp.EngineConfig{
		Concurrency:  cfg.Sync.Concurrency,
		CallTimeout:  cfg.Sync.CallTimeout,
		BatchTimeout: cfg.Sync.BatchTimeout,
	}, log)
	syncMetrics, err := telemetry.NewSyncMetrics(mp.Meter("cardvault.sync"))
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	engine.WithRecorder(syncMetrics)

	credentialService := integrationapp.NewCredentialService(
		credentialRepo, refStore, registry, tokens, cfg.Sync.CallTimeout, log)

	// Background passes
	schedulerCfg := scheduler.DefaultSyncSchedulerConfig()
	if cfg.Sync.MaxConcurrentJobs > 0 {
		schedulerCfg.MaxConcurrentJobs = cfg.Sync.MaxConcurrentJobs
	}
	if cfg.Sync.BatchTimeout > 0 {
		schedulerCfg.JobTimeout = cfg.Sync.BatchTimeout
	}
	syncScheduler, err := scheduler.NewSyncScheduler(schedulerCfg, engine, log)
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	if err := syncScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}

	var trigger *scheduler.IntervalTrigger
	if cfg.Sync.Interval > 0 {
		trigger, err = scheduler.NewIntervalTrigger(cfg.Sync.Interval, syncScheduler, credentialService, log)
		if err != nil {
			log.Fatal("Failed to create interval trigger", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start interval trigger", zap.Error(err))
		}
		log.Info("Interval sync enabled", zap.Duration("interval", cfg.Sync.Interval))
	}

	// Initialize handlers
	integrationHandler := handler.NewIntegrationHandler(credentialService, engine, syncScheduler)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db, syncScheduler, registry)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	r.Use(logger.RequestID())
	r.Use(logger.Recovery(log))
	r.Use(logger.GinMiddleware(log))
	r.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tp.IsEnabled(),
	}))
	r.Use(middleware.SpanAttributes())
	r.Use(middleware.SpanErrorMarker())
	r.Use(middleware.Secure())
	r.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var syncGuards []gin.HandlerFunc
	if cfg.HTTP.SyncRateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.SyncRateLimit, cfg.HTTP.SyncRateWindow)
		syncGuards = append(syncGuards, middleware.RateLimitByKey(limiter, middleware.ByStore))
	}

	router.RegisterHealth(r, systemHandler)
	router.NewRouter(r, router.WithAPIVersion("v1")).
		Register(router.IntegrationRoutes(integrationHandler, syncGuards...)).
		Register(router.SystemRoutes(systemHandler)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        r,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping interval trigger", zap.Error(err))
		}
	}
	if err := syncScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sync scheduler", zap.Error(err))
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited")
}

// newAdapterRegistry builds one adapter per supported marketplace from the [marketplaces] sections
func newAdapterRegistry(cfg *config.Config, deps ecommerce.Dependencies) (*ecommerce.Registry, error) {
	registry := ecommerce.NewRegistry()

	adapterConfig := func(m integration.Marketplace) ecommerce.AdapterConfig {
		ac := ecommerce.DefaultAdapterConfig()
		if mc, ok := cfg.Marketplaces[strings.ToLower(m.String())]; ok {
			ac.BaseURL = mc.BaseURL
			ac.RequestsPerSecond = mc.RequestsPerSecond
			ac.Burst = mc.Burst
			ac.TimeoutSeconds = mc.TimeoutSeconds
		}
		return ac
	}

	storefront, err := ecommerce.NewStorefrontAdapter(adapterConfig(integration.MarketplaceStorefront), deps)
	if err != nil {
		return nil, err
	}
	registry.Register(storefront)

	auction, err := ecommerce.NewAuctionAdapter(adapterConfig(integration.MarketplaceAuction), deps)
	if err != nil {
		return nil, err
	}
	registry.Register(auction)

	cardMarket, err := ecommerce.NewCardMarketAdapter(adapterConfig(integration.MarketplaceCardMarket), deps)
	if err != nil {
		return nil, err
	}
	registry.Register(cardMarket)

	retail, err := ecommerce.NewRetailAdapter(adapterConfig(integration.MarketplaceRetail), deps)
	if err != nil {
		return nil, err
	}
	registry.Register(retail)

	return registry, nil
}
