package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mweber/stocklens/internal/api"
	"github.com/mweber/stocklens/internal/api/middleware"
	"github.com/mweber/stocklens/internal/config"
	"github.com/mweber/stocklens/internal/dataset"
	"github.com/mweber/stocklens/internal/logger"
	"github.com/mweber/stocklens/internal/reddit"
	"github.com/mweber/stocklens/internal/repository"
	"github.com/mweber/stocklens/internal/service"
	"github.com/mweber/stocklens/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	catalog := repository.NewCatalogRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	store, err := dataset.NewStore(cfg.Data.CSVDir, cfg.Data.NPYDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize dataset store")
	}

	redditClient := reddit.NewClient(&reddit.Config{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
		Subreddits:   cfg.Reddit.Subreddits,
	})

	embeddingService, err := service.NewEmbeddingService(&service.EmbeddingServiceConfig{
		Model:        cfg.Embedding.Model,
		OpenAIAPIKey: cfg.Embedding.OpenAIAPIKey,
		JinaAPIKey:   cfg.Embedding.JinaAPIKey,
		LocalURL:     cfg.Embedding.LocalURL,
		BatchSize:    cfg.Embedding.BatchSize,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize embedding service")
	}

	answerService := service.NewAnswerService(&service.AnswerConfig{
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})

	ctx := context.Background()

	var archive storage.ObjectStorage
	if cfg.Archive.Enabled {
		s3, err := storage.NewS3Storage(&storage.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize archive storage")
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archive = s3
	}

	runs := service.NewRunRegistry()
	pipeline := service.NewPipelineService(
		redditClient, store, embeddingService, qdrantRepo, catalog, archive, runs, appLogger)
	queue := service.NewPipelineQueue(pipeline, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	defer queue.Close()

	queryService := service.NewQueryService(catalog, embeddingService, qdrantRepo, answerService)

	router := api.SetupRouter(api.RouterConfig{
		Queue:          queue,
		Runs:           runs,
		Query:          queryService,
		Catalog:        catalog,
		Remover:        pipeline,
		EmbeddingModel: embeddingService.Model().Name,
		DefaultLimit:   cfg.Pipeline.DefaultLimit,
		DefaultTopK:    cfg.Pipeline.DefaultTopK,
		Mode:           cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
