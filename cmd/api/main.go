package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dormstay-backend/api"
	"github.com/angelmondragon/dormstay-backend/api/controllers"
	"github.com/angelmondragon/dormstay-backend/api/routes"
	"github.com/angelmondragon/dormstay-backend/internal/audit"
	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/internal/reservations"
	"github.com/angelmondragon/dormstay-backend/internal/rooms"
	"github.com/angelmondragon/dormstay-backend/internal/users"
	"github.com/angelmondragon/dormstay-backend/pkg/config"
	"github.com/angelmondragon/dormstay-backend/pkg/db"
	"github.com/angelmondragon/dormstay-backend/pkg/instance"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/metrics"
	"github.com/angelmondragon/dormstay-backend/pkg/migrate"
	"github.com/angelmondragon/dormstay-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	ready := map[string]controllers.Pinger{"db": dbClient}
	deps := routes.Dependencies{Ready: ready}

	var redisClient *redis.Client
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
		ready["redis"] = redisClient
		deps.Idempotency = redisClient
	}

	locker, err := occupancy.NewRoomLocker(cfg.FeatureFlags.RoomLockBackend, redisClient, logg, cfg.Reservation)
	if err != nil {
		logg.Error(context.Background(), "failed to create room locker", err)
		os.Exit(1)
	}

	occupancyMetrics := metrics.NewOccupancyMetrics(prometheus.DefaultRegisterer)
	reconciler, err := occupancy.NewReconciler(logg, occupancyMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}
	recalculator, err := occupancy.NewRecalculator(occupancy.RecalculatorParams{
		DB:      dbClient,
		Locker:  locker,
		Logger:  logg,
		Metrics: occupancyMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recalculator", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	auditRepo := audit.NewRepository(dbClient.DB())

	var codes reservations.CodeGenerator = reservations.RandomCodes{}
	if redisClient != nil {
		sequential, err := reservations.NewSequentialCodes(redisClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create reservation code sequence", err)
			os.Exit(1)
		}
		codes = sequential
	}

	deps.Reservations, err = reservations.NewService(reservations.ServiceParams{
		DB:               dbClient,
		Repo:             reservations.NewRepository(dbClient.DB()),
		Reconciler:       reconciler,
		Locker:           locker,
		Audit:            auditRepo,
		Promoter:         userRepo,
		Guests:           userRepo,
		Codes:            codes,
		Policy:           reservations.NewTimePolicy(cfg.Reservation),
		MaxExtensionDays: cfg.Reservation.MaxExtensionDays,
		Logger:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	deps.Rooms, err = rooms.NewService(rooms.ServiceParams{
		DB:           dbClient,
		Repo:         rooms.NewRepository(dbClient.DB()),
		Recalculator: recalculator,
		Locker:       locker,
		Audit:        auditRepo,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create room service", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg, routes.NewRouter(cfg, logg, deps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
