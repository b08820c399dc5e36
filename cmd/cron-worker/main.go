package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storyblok-sync/internal/cron"
	"github.com/angelmondragon/storyblok-sync/internal/engine"
	"github.com/angelmondragon/storyblok-sync/pkg/config"
	"github.com/angelmondragon/storyblok-sync/pkg/db"
	"github.com/angelmondragon/storyblok-sync/pkg/lock"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/metrics"
	"github.com/angelmondragon/storyblok-sync/pkg/migrate"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox"
	"github.com/angelmondragon/storyblok-sync/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single maintenance cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to register jobs", err)
		os.Exit(1)
	}

	cycleLock, err := lock.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", envOrLocal(cfg.App.Env)), cfg.Jobs.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     cycleLock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Jobs.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Jobs.Interval.String(),
	})
	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "maintenance cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	retention := cron.RetentionJobParams{Logger: logg, DB: dbClient}

	retention.RetentionDays = cfg.Jobs.OutboxRetentionDays
	outboxJob, err := cron.NewOutboxRetentionJob(retention, outbox.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	retention.RetentionDays = cfg.Jobs.DLQRetentionDays
	dlqJob, err := cron.NewDLQRetentionJob(retention, outbox.NewDLQRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	registry := cron.NewRegistry(outboxJob, dlqJob)

	if !cfg.Jobs.PruneLinks {
		return registry, nil
	}
	eng, err := engine.New(engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Locks:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}
	pruneJob, err := cron.NewLinkPruneJob(cron.LinkPruneJobParams{
		Logger:  logg,
		Catalog: eng.Commerce,
		Links:   eng.Links,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(pruneJob)
	return registry, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
