package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskmanager/api/internal/cache"
	"taskmanager/api/internal/config"
	"taskmanager/api/internal/database"
	"taskmanager/api/internal/handlers"
	"taskmanager/api/internal/jobs"
	"taskmanager/api/internal/llm"
	"taskmanager/api/internal/log"
	"taskmanager/api/internal/repository"
	"taskmanager/api/internal/security"
	"taskmanager/api/internal/server"
	"taskmanager/api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.Error().Err(err).Msg("sentry init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	// redis backs rate limiting, the stats snapshot and audit events; all of
	// them degrade to no-ops without it
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, continuing without it")
		redisClient = nil
	}

	users := repository.NewUserRepository(dbPool)
	tasks := repository.NewTaskRepository(dbPool)
	auditEvents := repository.NewAuditRepository(dbPool)

	hasher := security.NewPasswordHasher(security.ParamsFromConfig(cfg.Security.Argon2))
	tokens := security.NewTokenIssuer(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	events := service.NewEventPublisher(redisClient, cfg.Worker.Stream, logger)
	timeout := cfg.Postgres.QueryTimeout

	admin := service.NewAdminService(users, tasks, auditEvents, service.NewStatsCache(redisClient, cfg.Jobs.StatsTTL), events, timeout, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Services{
		Auth:      service.NewAuthService(users, hasher, tokens, events, cfg, logger),
		Gate:      service.NewGate(users, tokens, timeout, logger),
		Admin:     admin,
		Tasks:     service.NewTaskService(tasks, timeout),
		Assistant: service.NewAssistantService(tasks, llm.New(cfg.LLM), timeout, logger),
		Database:  dbPool,
		Cache:     redisClient,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(admin, cfg.Jobs, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduled jobs still running at shutdown")
	}

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
