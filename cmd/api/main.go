package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"distrihub-sync-api/internal/cache"
	"distrihub-sync-api/internal/config"
	"distrihub-sync-api/internal/handler"
	"distrihub-sync-api/internal/middleware"
	"distrihub-sync-api/internal/remote"
	"distrihub-sync-api/internal/repository"
	"distrihub-sync-api/internal/router"
	"distrihub-sync-api/internal/service"
	"distrihub-sync-api/internal/stock"
	"distrihub-sync-api/internal/syncengine"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.Info("Starting DistriHub Sync API...")

	// Load configuration
	cfg := config.MustLoad()
	log.WithField("environment", cfg.App.Environment).Info("configuration loaded")
	if cfg.App.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	// Initialize queue repository based on config
	var queueRepo repository.QueueRepository
	switch cfg.QueueDB.Type {
	case "postgres", "postgresql":
		pgRepo, err := repository.NewPostgresQueueRepository(cfg.QueueDB.PostgresDSN())
		if err != nil {
			log.WithError(err).Fatal("failed to initialize PostgreSQL queue store")
		}
		queueRepo = pgRepo
		log.Info("PostgreSQL queue repository initialized")
	case "memory":
		queueRepo = repository.NewMemoryQueueRepository()
		log.Warn("in-memory queue repository initialized, operations will NOT survive restarts")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteQueueRepository(cfg.QueueDB.Path)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize SQLite queue store")
		}
		queueRepo = sqliteRepo
		log.Info("SQLite queue repository initialized")
	}
	defer queueRepo.Close()

	// Initialize cache for last-known stock levels
	var stockCache cache.Cache
	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.WithError(err).Warn("Redis connection failed, falling back to memory cache")
			stockCache = cache.NewMemoryCache()
		} else {
			stockCache = redisCache
			log.Info("Redis cache initialized")
		}
	} else {
		stockCache = cache.NewMemoryCache()
		log.Info("memory cache initialized")
	}
	defer stockCache.Close()

	// Remote backend client
	backend := remote.NewHTTPClient(remote.ClientConfig{
		BaseURL:    cfg.Remote.BaseURL,
		APIKey:     cfg.Remote.APIKey,
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: uint64(cfg.Remote.MaxRetries),
	})

	// Stock validation against cached last-known levels
	stockProvider := stock.NewCachedStockProvider(backend, stockCache, log)
	resolver := stock.NewResolver(queueRepo, stockProvider)

	// Sync engine and connectivity plumbing
	registry := syncengine.NewRegistry(backend)
	engine := syncengine.NewEngine(queueRepo, registry, syncengine.Config{
		BatchSize:      cfg.Sync.BatchSize,
		OperationDelay: cfg.Sync.OperationDelay,
	})

	// Optional MongoDB audit trail of sync attempts
	var auditRepo repository.AuditRepository
	if cfg.Audit.MongoURI != "" {
		mongoAudit, err := repository.NewMongoDBAuditRepository(
			cfg.Audit.MongoURI,
			cfg.Audit.MongoDatabase,
			cfg.Audit.MongoCollection,
			cfg.Audit.Retention(),
		)
		if err != nil {
			log.WithError(err).Warn("MongoDB audit trail initialization failed, continuing without it")
		} else {
			auditRepo = mongoAudit
			engine.SetAuditRecorder(mongoAudit)
			defer mongoAudit.Close()
			log.Info("MongoDB audit trail initialized")
		}
	}

	bus := syncengine.NewSignalBus()
	prober := syncengine.NewProber(backend, bus, cfg.Sync.ProbeInterval)
	prober.Start()
	defer prober.Stop()

	observer := syncengine.NewObserver(engine, queueRepo, bus, syncengine.ObserverConfig{
		StabilizeDelay:  cfg.Sync.StabilizeDelay,
		CleanupInterval: cfg.Sync.CleanupInterval,
		Retention:       cfg.Sync.Retention(),
	})
	observer.Start()
	defer observer.Stop()

	// Initialize services
	offlineService := service.NewOfflineService(queueRepo, resolver, engine, cfg.Sync.Retention())
	if offlineService == nil {
		log.Fatal("failed to initialize offline service")
	}

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Version)
	queueHandler := handler.NewQueueHandler(offlineService)
	signalsHandler := handler.NewSignalsHandler(bus)

	var historyHandler *handler.HistoryHandler
	if auditRepo != nil {
		historyHandler = handler.NewHistoryHandler(auditRepo)
	}

	var apiKeys []string
	if key := os.Getenv("API_KEY"); key != "" {
		apiKeys = append(apiKeys, key)
	}
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: apiKeys})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		QueueHandler:   queueHandler,
		SignalsHandler: signalsHandler,
		HistoryHandler: historyHandler,
		ReadyChecks: map[string]handler.ReadyChecker{
			"queue": func() error {
				_, err := queueRepo.Counts(context.Background())
				return err
			},
		},
		AuthMiddleware: authMiddleware,
		Logger:         log,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.WithField("address", cfg.Server.Address()).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	log.Info("server stopped")
}
