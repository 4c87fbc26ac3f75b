package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/licensesync/api/routes"
	"github.com/angelmondragon/licensesync/internal/licenses"
	"github.com/angelmondragon/licensesync/internal/mailing"
	"github.com/angelmondragon/licensesync/internal/organizations"
	"github.com/angelmondragon/licensesync/internal/scheduler"
	"github.com/angelmondragon/licensesync/pkg/config"
	"github.com/angelmondragon/licensesync/pkg/db"
	"github.com/angelmondragon/licensesync/pkg/instance"
	"github.com/angelmondragon/licensesync/pkg/logger"
	"github.com/angelmondragon/licensesync/pkg/mailer"
	"github.com/angelmondragon/licensesync/pkg/marketplace"
	"github.com/angelmondragon/licensesync/pkg/metrics"
	"github.com/angelmondragon/licensesync/pkg/migrate"
	"github.com/angelmondragon/licensesync/pkg/orgdata"
	"github.com/angelmondragon/licensesync/pkg/redis"
)

const cycleLockName = "sync-cycle"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis is optional: without it the watermark lock degrades to a no-op,
	// which is fine as long as only one worker runs.
	var lock scheduler.Lock = scheduler.NoopLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLock, err := scheduler.NewRedisLock(redisClient, redisClient.LockKey(cycleLockName), cfg.Sync.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cycle lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	metricsCollector := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)

	marketClient, err := marketplace.NewClient(cfg.Marketplace)
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace client", err)
		os.Exit(1)
	}

	var enricher licenses.BatchEnricher
	if cfg.OrgData.Enabled() {
		orgClient, err := orgdata.NewClient(cfg.OrgData)
		if err != nil {
			logg.Error(context.Background(), "failed to create organization data client", err)
			os.Exit(1)
		}
		orgService, err := organizations.NewService(organizations.ServiceParams{
			Logger:      logg,
			Metrics:     metricsCollector,
			Provider:    orgClient,
			Repo:        organizations.NewRepository(dbClient.DB()),
			SkipDomains: cfg.OrgData.SkipDomains,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create organization service", err)
			os.Exit(1)
		}
		enricher = orgService
	} else {
		logg.Info(context.Background(), "organization enrichment disabled, no provider configured")
	}

	// The mailing service always records entries; the downstream push only
	// happens when a provider is configured.
	var pusher mailing.Pusher
	if cfg.Mailing.Enabled() {
		mailClient, err := mailer.NewClient(cfg.Mailing)
		if err != nil {
			logg.Error(context.Background(), "failed to create mailing client", err)
			os.Exit(1)
		}
		pusher = mailClient
	} else {
		logg.Info(context.Background(), "mailing push disabled, entries will be recorded locally")
	}
	feed, err := mailing.NewService(mailing.ServiceParams{
		Logger:    logg,
		Metrics:   metricsCollector,
		Repo:      mailing.NewRepository(dbClient.DB()),
		Pusher:    pusher,
		ChunkSize: cfg.Mailing.ChunkSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mailing service", err)
		os.Exit(1)
	}

	loader, err := licenses.NewLoader(licenses.LoaderParams{
		Logger:   logg,
		Metrics:  metricsCollector,
		Repo:     licenses.NewRepository(dbClient.DB()),
		Enricher: enricher,
		Mailing:  feed,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create loader", err)
		os.Exit(1)
	}

	runner, err := scheduler.NewRunner(scheduler.RunnerParams{
		Logger:       logg,
		Metrics:      metricsCollector,
		Exporter:     marketClient,
		Loader:       loader,
		ArtifactPath: cfg.Sync.ArtifactPath,
		SettleDelay:  cfg.Sync.SettleDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cycle runner", err)
		os.Exit(1)
	}

	firstRun, err := cfg.Sync.FirstRun(time.Now())
	if err != nil {
		logg.Error(context.Background(), "invalid first run configuration", err)
		os.Exit(1)
	}
	modifiedSince, err := cfg.Sync.StartModifiedSince()
	if err != nil {
		logg.Error(context.Background(), "invalid modified since configuration", err)
		os.Exit(1)
	}

	service, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:      logg,
		Metrics:     metricsCollector,
		Runner:      runner,
		Lock:        lock,
		Watermark:   scheduler.NewWatermark(firstRun, modifiedSince),
		Interval:    cfg.Sync.Interval,
		InitialPoll: cfg.Sync.InitialPoll,
		SteadyPoll:  cfg.Sync.SteadyPoll,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	opsServer := &http.Server{
		Addr:    ":" + cfg.Ops.Port,
		Handler: routes.NewRouter(cfg, logg, dbClient, service, prometheus.DefaultGatherer),
	}
	go func() {
		logg.Info(logg.WithField(ctx, "addr", opsServer.Addr), "ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()

	logg.Info(ctx, "starting sync worker")
	runErr := service.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "ops server shutdown failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", runErr)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}
