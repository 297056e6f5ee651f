package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chessarena/tournament-service/brackets"
	"github.com/chessarena/tournament-service/config"
	"github.com/chessarena/tournament-service/db"
	"github.com/chessarena/tournament-service/handlers"
	"github.com/chessarena/tournament-service/metrics"
	"github.com/chessarena/tournament-service/queue"
	"github.com/chessarena/tournament-service/repositories"
	"github.com/chessarena/tournament-service/routes"
	"github.com/chessarena/tournament-service/services"
	"github.com/chessarena/tournament-service/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Connect(cfg.DatabaseURL, 10*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := brackets.NewHub()
	go hub.RunHeartbeat(ctx, cfg.HeartbeatInterval)

	tournamentRepo := repositories.NewPostgresTournamentRepository(database)
	participantRepo := repositories.NewPostgresParticipantRepository(database)
	matchRepo := repositories.NewPostgresMatchRepository(database)
	gameRepo := repositories.NewPostgresGameRepository(database)
	userRepo := repositories.NewPostgresUserRepository(database)
	jobRepo := repositories.NewPostgresJobRepository(database)

	var uploader storage.FileUploader
	if cfg.ArchivalEnabled() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Info("tournament archival disabled, R2 configuration incomplete")
	}

	orchestrator := services.NewBracketService(
		services.NewTxRunner(database),
		tournamentRepo,
		participantRepo,
		matchRepo,
		gameRepo,
		userRepo,
		hub,
		uploader,
		logger,
	)

	dispatcher := queue.NewDispatcher(jobRepo, orchestrator, logger, cfg.QueuePollInterval, cfg.QueueMaxAttempts)
	go dispatcher.Run(ctx)

	scheduler := services.NewSchedulerService(tournamentRepo, orchestrator, hub, logger, cfg.SchedulerInterval)
	go scheduler.Run(ctx)

	gameService := services.NewGameService(gameRepo, dispatcher, logger)

	router := routes.NewRouter(routes.Handlers{
		Tournament: handlers.NewTournamentHandler(orchestrator),
		Match:      handlers.NewMatchHandler(orchestrator),
		Game:       handlers.NewGameHandler(gameService),
		WebSocket:  handlers.NewWebSocketHandler(hub),
	}, []byte(cfg.JWTSecretKey))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.Int("port", cfg.ServerPort))
		serverErrors <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
		}
	case sig := <-stop:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	// Stop background workers first so no new broadcasts race the drain.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}

	logger.Info("server stopped")
}
