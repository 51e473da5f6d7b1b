package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bdi-platform/wip-backend/internal/config"
	"github.com/bdi-platform/wip-backend/internal/db"
	httpapi "github.com/bdi-platform/wip-backend/internal/http"
	"github.com/bdi-platform/wip-backend/internal/lock"
	"github.com/bdi-platform/wip-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "wip-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var locker lock.Locker
	if cfg.RedisURL == "" {
		locker = lock.NewLocalLocker()
		logger.Info().Msg("using in-process import lock")
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		locker = lock.NewRedisLocker(redis.NewClient(opts))
		logger.Info().Msg("using redis import lock")
	}

	importer := &service.ImportService{
		Store:     store,
		Locker:    locker,
		Logger:    logger,
		ChunkSize: cfg.ImportChunkSize,
		LockTTL:   cfg.ImportLockTTL,
	}
	query := &service.QueryService{
		Store:    store,
		PageSize: cfg.ExportPageSize,
	}

	router := httpapi.Router(cfg, store, importer, query, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
