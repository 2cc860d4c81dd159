// Command warden-reaper runs the archive purge schedule out of process, for
// deployments that keep background work off the API nodes. It can also export
// aged operation logs to object storage.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/archive"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/hierarchy"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

var (
	dbURL          = flag.String("db-url", getEnv("WARDEN_POSTGRES_URL", "postgres://localhost/warden?sslmode=disable"), "PostgreSQL connection URL")
	purgeSchedule  = flag.String("purge-schedule", getEnv("WARDEN_PURGE_SCHEDULE", "*/5 * * * *"), "Cron schedule for executing due purges")
	exportSchedule = flag.String("export-schedule", getEnv("WARDEN_EXPORT_SCHEDULE", "30 2 * * *"), "Cron schedule for operation log export (default: 02:30 UTC)")
	exportAge      = flag.Duration("export-age", 90*24*time.Hour, "Minimum age of operation log entries to export")
	runOnce        = flag.Bool("run-once", false, "Run due purges once and exit (for testing)")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := storage.DefaultConfig()
	cfg.PostgresURL = *dbURL

	appLogger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	ctx := context.Background()
	db, err := postgres.NewConnectionManager(ctx, cfg, appLogger)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	jobs := postgres.NewPurgeJobStore(db)
	stores := map[hierarchy.Kind]hierarchy.NodeStore{}
	for _, kind := range []hierarchy.Kind{hierarchy.KindRole, hierarchy.KindPermission} {
		stores[kind] = postgres.NewNodeStore(db, kind, postgres.NewPathStore(db, kind))
	}
	runner := archive.NewRunner(jobs, stores, *purgeSchedule, appLogger, nil)

	if *runOnce {
		purged, err := runner.RunOnce(ctx)
		if err != nil {
			log.WithError(err).Fatal("purge run failed")
		}
		log.WithField("purged", purged).Info("purge run completed")
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*purgeSchedule, func() {
		purged, err := runner.RunOnce(context.Background())
		if err != nil {
			log.WithError(err).Error("purge run failed")
			return
		}
		if purged > 0 {
			log.WithField("purged", purged).Info("purge run completed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal("failed to schedule purges")
	}

	// Export only runs when a bucket is configured.
	exportCfg := loadExportConfig(cfg)
	if exportCfg.Bucket != "" {
		exporter, err := audit.NewS3Exporter(ctx, db.Primary(), exportCfg, appLogger)
		if err != nil {
			log.WithError(err).Fatal("failed to create operation log exporter")
		}

		_, err = c.AddFunc(*exportSchedule, func() {
			cutoff := time.Now().UTC().Add(-*exportAge)
			exported, err := exporter.ExportOlderThan(context.Background(), cutoff)
			if err != nil {
				log.WithError(err).Error("operation log export failed")
				return
			}
			if exported > 0 {
				log.WithField("exported", exported).Info("operation logs exported")
			}
		})
		if err != nil {
			log.WithError(err).Fatal("failed to schedule export")
		}
		log.WithField("schedule", *exportSchedule).Info("operation log export enabled")
	}

	c.Start()
	log.WithField("schedule", *purgeSchedule).Info("warden reaper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("shutting down gracefully")

	stopCtx := c.Stop()
	<-stopCtx.Done()

	log.Info("reaper stopped")
}

func loadExportConfig(cfg storage.Config) audit.S3Config {
	out := audit.S3Config{
		Endpoint:     getEnv("WARDEN_S3_ENDPOINT", cfg.S3Endpoint),
		Region:       getEnv("WARDEN_S3_REGION", cfg.S3Region),
		Bucket:       getEnv("WARDEN_S3_BUCKET", cfg.S3Bucket),
		AccessKey:    getEnv("WARDEN_S3_ACCESS_KEY", cfg.S3AccessKey),
		SecretKey:    getEnv("WARDEN_S3_SECRET_KEY", cfg.S3SecretKey),
		UsePathStyle: cfg.S3UsePathStyle,
	}
	if v := getEnv("WARDEN_S3_USE_PATH_STYLE", ""); v != "" {
		out.UsePathStyle = v == "true" || v == "1"
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
