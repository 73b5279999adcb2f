package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"taskmanager/api/internal/audit"
	"taskmanager/api/internal/cache"
	"taskmanager/api/internal/config"
	"taskmanager/api/internal/database"
	"taskmanager/api/internal/log"
	"taskmanager/api/internal/queue"
	"taskmanager/api/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	processor := audit.NewProcessor(repository.NewAuditRepository(dbPool), cfg.Postgres.QueryTimeout, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	logger.Info().
		Str("stream", cfg.Worker.Stream).
		Str("group", cfg.Worker.Group).
		Msg("audit worker started")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		return
	}
	logger.Info().Msg("shutdown signal received")
}
