package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dormstay-backend/internal/audit"
	"github.com/angelmondragon/dormstay-backend/internal/cron"
	"github.com/angelmondragon/dormstay-backend/internal/notifications"
	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/internal/reservations"
	"github.com/angelmondragon/dormstay-backend/internal/users"
	"github.com/angelmondragon/dormstay-backend/pkg/config"
	"github.com/angelmondragon/dormstay-backend/pkg/db"
	"github.com/angelmondragon/dormstay-backend/pkg/instance"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/metrics"
	"github.com/angelmondragon/dormstay-backend/pkg/migrate"
	"github.com/angelmondragon/dormstay-backend/pkg/pubsub"
	"github.com/angelmondragon/dormstay-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	var (
		cronLock    cron.Lock = cron.LocalLock{}
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		cronLock, err = cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", envName(cfg.App.Env)), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; cron lock is process-local")
	}

	roomLocker, err := occupancy.NewRoomLocker(cfg.FeatureFlags.RoomLockBackend, redisClient, logg, cfg.Reservation)
	if err != nil {
		logg.Error(context.Background(), "failed to create room locker", err)
		os.Exit(1)
	}

	notifier, closeNotifier := reminderNotifier(cfg, logg)
	defer closeNotifier()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cronMetrics := metrics.NewCronJobMetrics(registry)
	occupancyMetrics := metrics.NewOccupancyMetrics(registry)

	reconciler, err := occupancy.NewReconciler(logg, occupancyMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}
	userRepo := users.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())
	reservationSvc, err := reservations.NewService(reservations.ServiceParams{
		DB:               dbClient,
		Repo:             reservationRepo,
		Reconciler:       reconciler,
		Locker:           roomLocker,
		Audit:            audit.NewRepository(dbClient.DB()),
		Promoter:         userRepo,
		Guests:           userRepo,
		Policy:           reservations.NewTimePolicy(cfg.Reservation),
		MaxExtensionDays: cfg.Reservation.MaxExtensionDays,
		Logger:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	jobs := cron.NewRegistry()
	sweepJob, err := cron.NewRiskSweepJob(cron.RiskSweepJobParams{
		Logger:    logg,
		Repo:      reservationRepo,
		Service:   reservationSvc,
		Notifier:  notifier,
		Metrics:   occupancyMetrics,
		BatchSize: cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create risk sweep job", err)
		os.Exit(1)
	}
	if err := jobs.Register(sweepJob); err != nil {
		logg.Error(context.Background(), "failed to register risk sweep job", err)
		os.Exit(1)
	}

	if cfg.Cron.DriftRepair {
		recalculator, err := occupancy.NewRecalculator(occupancy.RecalculatorParams{
			DB:      dbClient,
			Locker:  roomLocker,
			Logger:  logg,
			Metrics: occupancyMetrics,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create recalculator", err)
			os.Exit(1)
		}
		reconcileJob, err := cron.NewOccupancyReconcileJob(cron.OccupancyReconcileJobParams{
			Logger:       logg,
			Recalculator: recalculator,
			Every:        cfg.Cron.DriftRepairInterval,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create occupancy reconcile job", err)
			os.Exit(1)
		}
		if err := jobs.Register(reconcileJob); err != nil {
			logg.Error(context.Background(), "failed to register occupancy reconcile job", err)
			os.Exit(1)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     cronLock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"jobs":        jobs.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Cron.MetricsPort,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := service.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// reminderNotifier publishes to Pub/Sub when a reminder topic is configured and
// falls back to logging otherwise.
func reminderNotifier(cfg *config.Config, logg *logger.Logger) (notifications.Notifier, func()) {
	noop := func() {}
	if !cfg.PubSub.Enabled() {
		logg.Warn(context.Background(), "pubsub reminder topic not configured; reminders are logged only")
		return notifications.NewLogNotifier(logg), noop
	}
	client, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	notifier, err := notifications.NewPubSubNotifier(client.ReminderPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reminder notifier", err)
		os.Exit(1)
	}
	return notifier, func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
