package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/clients"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/controllers"
	"portfolio-analytics/internal/engine"
	"portfolio-analytics/internal/messaging"
	"portfolio-analytics/internal/middleware"
	"portfolio-analytics/internal/monitoring"
	"portfolio-analytics/internal/repositories"
	"portfolio-analytics/internal/repositories/memcached"
	"portfolio-analytics/internal/repositories/mongo"
	"portfolio-analytics/internal/repositories/redis"
	"portfolio-analytics/internal/scheduler"
	"portfolio-analytics/internal/services"
	"portfolio-analytics/pkg/cache"
	"portfolio-analytics/pkg/database"
	"portfolio-analytics/pkg/logger"
)

const serviceName = "portfolio-analytics"

// closer collects shutdown hooks in reverse order of creation
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	baseLogger := logger.Init(cfg.Logger)
	log := baseLogger.WithField("service", serviceName)

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	log.Info("Starting Portfolio Analytics service...")

	var shutdown closer
	defer shutdown.run()

	metrics := monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	health := monitoring.NewHealthChecker(serviceName, 5*time.Second)

	// Price providers
	prices, err := clients.NewProviderChain(cfg.MarketData, baseLogger, metrics)
	if err != nil {
		log.Fatal("Failed to initialize price providers: ", err)
	}

	for _, provider := range prices.Providers() {
		if checker, ok := provider.(interface{ IsHealthy(context.Context) bool }); ok {
			health.RegisterCheck(monitoring.CheckFunc{
				ComponentName: "provider_" + provider.Name(),
				Fn: func(ctx context.Context) error {
					if !checker.IsHealthy(ctx) {
						return fmt.Errorf("price provider is not healthy")
					}
					return nil
				},
			})
		}
	}

	// Result cache backend
	store, distLock := initCacheStore(cfg, baseLogger, &shutdown)

	resultCache := engine.NewResultCache(engine.ResultCacheConfig{
		LocalTTL:     cfg.Cache.LocalTTL,
		LocalMaxSize: cfg.Cache.LocalMaxSize,
		StoreTimeout: cfg.Cache.StoreTimeout,
		LockTTL:      cfg.Cache.LockTTL,
	}, store, distLock, baseLogger, metrics)
	shutdown.add(resultCache.Stop)

	health.RegisterCheck(monitoring.CheckFunc{
		ComponentName: "cache_store_" + resultCache.StoreName(),
		Fn:            resultCache.Ping,
	})

	// Analysis events
	var publisher services.AnalysisPublisherInterface
	if cfg.RabbitMQ.Enabled {
		p, err := messaging.NewAnalysisPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, baseLogger)
		if err != nil {
			log.Warn("Failed to initialize analysis publisher, events disabled: ", err)
		} else {
			publisher = p
			shutdown.add(func() { p.Close() })
		}
	}

	analysisService := services.NewAnalysisService(cfg.Analytics, prices, resultCache, publisher, baseLogger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RabbitMQ.Enabled {
		consumer, err := messaging.NewInvalidationConsumer(
			cfg.RabbitMQ.URL,
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.InvalidationQueue,
			cfg.RabbitMQ.InvalidationRoutingKey,
			analysisService,
			baseLogger,
		)
		if err != nil {
			log.Warn("Failed to initialize cache invalidation consumer: ", err)
		} else {
			shutdown.add(func() { consumer.Close() })
			go func() {
				if err := consumer.Start(ctx); err != nil {
					log.Error("Cache invalidation consumer stopped: ", err)
				}
			}()
		}
	}

	// Background jobs
	if cfg.Scheduler.Enabled {
		if purger, ok := store.(repositories.Purger); ok {
			sched, err := scheduler.NewScheduler(cfg.Scheduler, baseLogger)
			if err != nil {
				log.Fatal("Failed to initialize scheduler: ", err)
			}
			if err := sched.AddCachePurge(purger, cfg.Cache.ResultTTL); err != nil {
				log.Fatal("Failed to schedule cache purge: ", err)
			}
			sched.Start()
			shutdown.add(sched.Stop)
		}
	}

	// Setup HTTP server
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit)
		shutdown.add(limiter.Stop)
	}

	analysisController := controllers.NewAnalysisController(baseLogger, analysisService, health)
	router := setupRouter(cfg, baseLogger, limiter, analysisController)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"port":          cfg.Server.Port,
			"cache_backend": resultCache.StoreName(),
			"providers":     prices.Name(),
		}).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	log.Info("Server exited")
}

// initCacheStore connects the configured persistent backend. Connection
// failures degrade to the local tier only; analyses never depend on the store.
func initCacheStore(cfg *config.Config, log *logrus.Logger, shutdown *closer) (repositories.CacheRepository, repositories.LockRepository) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return repositories.NewMemoryCacheRepository(cfg.Cache.ResultTTL), nil

	case config.CacheBackendRedis:
		client, err := cache.NewRedisClient(cfg.Cache)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, result cache runs without a store")
			return nil, nil
		}
		shutdown.add(func() { client.Close() })

		var lock repositories.LockRepository
		if cfg.Cache.DistributedLock {
			lock = redis.NewLockRepository(client.Client())
		}
		return redis.NewCacheRepository(client, cfg.Cache.ResultTTL), lock

	case config.CacheBackendMongo:
		db, err := database.NewMongoDB(cfg.Database, cfg.Cache.ResultTTL)
		if err != nil {
			log.WithError(err).Warn("MongoDB unavailable, result cache runs without a store")
			return nil, nil
		}
		shutdown.add(func() { db.Disconnect() })
		return mongo.NewCacheRepository(db, cfg.Cache.ResultTTL), nil

	case config.CacheBackendMemcached:
		return memcached.NewCacheRepository(cfg.Cache.MemcachedHosts, cfg.Cache.MemcachedTimeout, cfg.Cache.ResultTTL), nil

	default:
		return nil, nil
	}
}

func setupRouter(cfg *config.Config, log *logrus.Logger, limiter *middleware.RateLimiter, analysisController *controllers.AnalysisController) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, cfg.Server.SlowRequest))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	analysisController.RegisterRoutes(api)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"code":  "not_found",
		})
	})

	return router
}
