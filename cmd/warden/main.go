// Command warden serves the role/permission hierarchy API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/archive"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/hierarchy"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
	"github.com/platinummonkey/warden/pkg/translate"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting warden")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer providers.Shutdown(context.Background())

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// Database
	db, err := postgres.NewConnectionManager(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db.Primary(), logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	// Cache
	var redisClient *redis.Client
	if cfg.Storage.CacheEnabled {
		redisClient, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Reads degrade to the store; startup proceeds.
			logger.WithError(err).Warn("redis unreachable at startup, cache will recover when it returns")
		}
	}

	// Shared collaborators
	jobs := postgres.NewPurgeJobStore(db)
	scheduler := archive.NewScheduler(jobs, logger, metrics)

	recorder, err := audit.NewDBRecorder(db.Primary(), logger)
	if err != nil {
		return fmt.Errorf("failed to create operation recorder: %w", err)
	}

	translator, err := translate.NewCatalog(cfg.Archive.TranslationCatalog, logger)
	if err != nil {
		return fmt.Errorf("failed to load translation catalog: %w", err)
	}
	defer translator.Close()

	// One engine per kind
	router := mux.NewRouter()
	stores := make(map[hierarchy.Kind]hierarchy.NodeStore)
	for _, kind := range []hierarchy.Kind{hierarchy.KindRole, hierarchy.KindPermission} {
		paths := postgres.NewPathStore(db, kind)
		nodes := postgres.NewNodeStore(db, kind, paths)
		stores[kind] = nodes

		var cache hierarchy.NodeCache
		if redisClient != nil {
			nodeCache, err := storage.NewNodeCache(kind, redisClient, cfg.Storage, logger, metrics)
			if err != nil {
				return fmt.Errorf("failed to create %s cache: %w", kind, err)
			}
			cache = nodeCache
		}

		engine, err := hierarchy.NewEngine(kind, hierarchy.EngineOptions{
			Nodes:      nodes,
			Paths:      paths,
			Cache:      cache,
			Scheduler:  scheduler,
			Translator: translator,
			Recorder:   recorder,
			Logger:     logger,
			Metrics:    metrics,
			Retention:  cfg.Archive.RetentionWindow,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s engine: %w", kind, err)
		}
		hierarchy.NewHandlers(engine).RegisterRoutes(router)
	}

	// In-process purge runner; the reaper binary covers deployments that want
	// purges out of the API process.
	runner := archive.NewRunner(jobs, stores, cfg.Archive.PurgeSchedule, logger, metrics)
	if err := runner.Start(); err != nil {
		return err
	}
	defer runner.Stop()

	var handler http.Handler = httputil.Chain(
		httputil.RecoveryMiddleware(logger),
		httputil.RequestIDMiddleware,
		httputil.IdentityMiddleware,
		httputil.LoggingMiddleware(logger),
		metrics.HTTPMiddleware,
		httputil.MaxBytesMiddleware(1<<20),
	)(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "warden")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes.
	health := observability.NewHealthChecker(db.Primary(), redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("API listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("health/metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	return group.Wait()
}
