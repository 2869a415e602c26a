package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/api"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/config"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/db"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/events"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/metrics"
	redisclient "github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/redis"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/schedule"
)

const version = "1.2.0"

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "api-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	metrics.Register()

	bus := events.NewBus()
	subscribeNotifications(bus, logger)

	repo := schedule.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	cache := redisclient.NewSlotCache(rdb, cfg.SlotCacheTTL)

	svc := schedule.NewService(repo, locker, cfg, logger).
		WithSlotCache(cache).
		WithBus(bus)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// subscribeNotifications stands in for the notification collaborator: the
// booking path only publishes; whatever delivers email or SMS subscribes here.
func subscribeNotifications(bus *events.Bus, logger zerolog.Logger) {
	for _, t := range []events.Type{events.AppointmentBooked, events.AppointmentRescheduled, events.AppointmentCancelled} {
		bus.Subscribe(t, func(e events.Event) {
			logger.Info().
				Str("event", string(e.Type)).
				Stringer("appointment_id", e.AppointmentID).
				Stringer("practitioner_id", e.PractitionerID).
				Str("date", e.Date).
				Str("start", e.Start).
				Msg("notification event")
		})
	}
}
