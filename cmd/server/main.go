// Command server runs the streak and scoring engine behind a REST API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/habitsnap/core/internal/app"
	"github.com/habitsnap/core/internal/app/httpapi"
	"github.com/habitsnap/core/internal/app/storage/postgres"
	"github.com/habitsnap/core/internal/config"
	"github.com/habitsnap/core/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Fatal("load config")
	}

	log := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "server",
	})

	var stores app.Stores
	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("open postgres store")
		}
		stores = app.Stores{
			PairStreaks: store,
			Habits:      store,
			HabitDays:   store,
			Scores:      store,
			SendTallies: store,
		}
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_URL not set; running with in-memory store")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; leaderboard cache disabled")
			redisClient = nil
		}
		cancel()
	}

	application, err := app.New(stores, app.Options{
		Redis:              redisClient,
		SweepSchedule:      cfg.SweepSchedule,
		LeaderboardRefresh: cfg.LeaderboardRefresh,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewHandler(application, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
}
