package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medichat/records-api/internal/config"
	chatHandler "github.com/medichat/records-api/internal/handler/chat"
	documentHandler "github.com/medichat/records-api/internal/handler/document"
	healthHandler "github.com/medichat/records-api/internal/handler/health"
	inviteHandler "github.com/medichat/records-api/internal/handler/invite"
	memoryHandler "github.com/medichat/records-api/internal/handler/memory"
	suggestionHandler "github.com/medichat/records-api/internal/handler/suggestion"
	"github.com/medichat/records-api/internal/middleware"
	"github.com/medichat/records-api/internal/repository/postgres"
	"github.com/medichat/records-api/internal/router"
	accessService "github.com/medichat/records-api/internal/service/access"
	chatService "github.com/medichat/records-api/internal/service/chat"
	confirmationService "github.com/medichat/records-api/internal/service/confirmation"
	documentService "github.com/medichat/records-api/internal/service/document"
	inviteService "github.com/medichat/records-api/internal/service/invite"
	"github.com/medichat/records-api/pkg/ai"
	"github.com/medichat/records-api/pkg/logger"
	"github.com/medichat/records-api/pkg/metrics"
	"github.com/medichat/records-api/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store := postgres.NewStore(db)
	accessRepo := postgres.NewAccessRepository(db)
	inviteRepo := postgres.NewInviteRepository(db)
	documentRepo := postgres.NewDocumentRepository(db)
	recordRepo := postgres.NewRecordRepository(db)
	chatRepo := postgres.NewChatRepository(db)
	memoryRepo := postgres.NewMemoryRepository(db)
	suggestionRepo := postgres.NewSuggestionRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	blobStore, err := storage.NewS3Store(context.Background(), storage.S3Config{
		Bucket:       cfg.Storage.Bucket,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	aiClient := ai.NewClient(ai.ClientConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Timeout: cfg.AI.RequestTimeout,
	})

	m := metrics.NewMetrics("medichat", "api")

	accessSvc := accessService.NewService(accessRepo)
	inviteSvc := inviteService.NewService(inviteRepo, accessRepo, outboxRepo, store, cfg.AI.AppBaseURL, appLogger)
	documentSvc := documentService.NewService(documentRepo, recordRepo, outboxRepo, store,
		accessSvc, blobStore, aiClient, cfg.AI.ExtractModel, m, appLogger)
	confirmationSvc := confirmationService.NewService(memoryRepo, suggestionRepo, recordRepo,
		outboxRepo, store, appLogger)
	chatSvc := chatService.NewService(chatRepo, recordRepo, documentRepo, memoryRepo,
		suggestionRepo, accessSvc, documentSvc, aiClient, cfg.AI.ChatModel, m, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)

	r := router.NewRouter(
		authMiddleware,
		healthHandler.NewHandler(db),
		inviteHandler.NewHandler(inviteSvc),
		documentHandler.NewHandler(documentSvc),
		chatHandler.NewHandler(chatSvc),
		memoryHandler.NewHandler(confirmationSvc),
		suggestionHandler.NewHandler(confirmationSvc),
		router.Config{
			RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
			RateLimitBurst: cfg.RateLimit.Burst,
			CORSConfig:     middleware.DefaultCORSConfig(),
			MetricsPrefix:  "medichat_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: 2 * time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		appLogger.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	appLogger.Info("server stopped")
}
