package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mweber/stocklens/internal/config"
	"github.com/mweber/stocklens/internal/dataset"
	"github.com/mweber/stocklens/internal/logger"
	"github.com/mweber/stocklens/internal/reddit"
	"github.com/mweber/stocklens/internal/repository"
	"github.com/mweber/stocklens/internal/service"
	"github.com/mweber/stocklens/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "stocklens-collect",
	})
	logger.SetDefaultLogger(appLogger)

	symbol := flag.String("symbol", "", "Stock ticker symbol to collect posts for (required)")
	query := flag.String("query", "", "Search query (defaults to \"<symbol> stock\")")
	limit := flag.Int("limit", 0, "Maximum number of posts to collect")
	reembed := flag.String("reembed", "", "Re-embed an existing dataset by name instead of collecting")
	list := flag.Bool("list", false, "List datasets present on disk and exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *symbol == "" && *reembed == "" && !*list {
		fmt.Fprintln(os.Stderr, "one of -symbol, -reembed or -list is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if *list {
		store, err := dataset.NewStore(cfg.Data.CSVDir, cfg.Data.NPYDir)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize dataset store")
		}
		names, err := store.List()
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to list datasets")
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	pipeline := service.NewPipelineService(
		reddit.NewClient(&reddit.Config{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			UserAgent:    cfg.Reddit.UserAgent,
			Subreddits:   cfg.Reddit.Subreddits,
		}),
		store, embeddingService, qdrantRepo, catalog, archive,
		service.NewRunRegistry(), appLogger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *reembed != "" {
		vectors, err := pipeline.EmbedDataset(ctx, *reembed)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to re-embed dataset")
		}
		appLogger.WithFields(logger.Fields{
			logger.FieldDataset: *reembed,
			logger.FieldCount:   len(vectors),
		}).Info("Re-embedding completed")
		return
	}

	sym := strings.ToUpper(strings.TrimSpace(*symbol))
	q := strings.TrimSpace(*query)
	if q == "" {
		q = fmt.Sprintf("%s stock", sym)
	}
	n := *limit
	if n <= 0 {
		n = cfg.Pipeline.DefaultLimit
	}

	job := service.Job{
		Name:   dataset.GenerateName(sym, time.Now().UTC()),
		Symbol: sym,
		Query:  q,
		Limit:  n,
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldDataset: job.Name,
		logger.FieldSymbol:  job.Symbol,
		"query":             job.Query,
		"limit":             job.Limit,
	}).Info("Starting collection")

	if err := pipeline.Run(ctx, job); err != nil {
		appLogger.WithError(err).Fatal("Collection failed")
	}

	appLogger.WithField(logger.FieldDataset, job.Name).Info("Collection completed")
}
