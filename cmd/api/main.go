package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phFolio/internal/api"
	"phFolio/internal/auth"
	"phFolio/internal/config"
	"phFolio/internal/database"
	"phFolio/internal/editor"
	"phFolio/internal/render"
	"phFolio/internal/repository"
	"phFolio/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready",
		slog.String("host", cfg.Database.Host),
		slog.String("name", cfg.Database.Name),
	)

	if err := db.AutoMigrate(&database.User{}, &database.Portfolio{}, &database.Asset{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	authService, err := auth.NewAuthServiceFromFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	repo := repository.NewPortfolioRepository(db)
	sessions := editor.NewSessions(repo, editor.SyncerOptions{
		Debounce:    cfg.Editor.Debounce(),
		SavedWindow: cfg.Editor.SavedWindow(),
		ErrorWindow: cfg.Editor.ErrorWindow(),
		SaveTimeout: cfg.Editor.SaveTimeout(),
		Logger:      logger,
	})
	registry := render.NewRegistry()

	router := api.NewRouter(logger)
	api.RegisterRoutes(
		router,
		cfg,
		db,
		repo,
		sessions,
		registry,
		asynqClient,
		authService,
		redisClient,
		logger,
		storageClient,
		cfg.API.ClamdAddr,
	)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
