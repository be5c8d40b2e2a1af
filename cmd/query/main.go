package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mweber/stocklens/internal/config"
	"github.com/mweber/stocklens/internal/logger"
	"github.com/mweber/stocklens/internal/repository"
	"github.com/mweber/stocklens/internal/service"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "warn",
		Format:      "text",
		ServiceName: "stocklens-query",
	})
	logger.SetDefaultLogger(appLogger)

	symbol := flag.String("symbol", "", "Stock ticker symbol to query (required)")
	question := flag.String("question", "", "Question to answer (required)")
	topK := flag.Int("top-k", 0, "Number of context posts to retrieve")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *symbol == "" || *question == "" {
		fmt.Fprintln(os.Stderr, "-symbol and -question are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
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

	queryService := service.NewQueryService(catalog, embeddingService, qdrantRepo, answerService)

	k := *topK
	if k <= 0 {
		k = cfg.Pipeline.DefaultTopK
	}

	result, err := queryService.Ask(context.Background(), *symbol, *question, k)
	if err != nil {
		appLogger.WithError(err).Fatal("Query failed")
	}

	fmt.Printf("Collection: %s\n", result.Collection)
	fmt.Printf("Question:   %s\n\n", result.Question)
	fmt.Println(result.Answer)
	fmt.Printf("\n--- %d context posts ---\n", len(result.ContextPosts))
	for i, p := range result.ContextPosts {
		fmt.Printf("%d. [%d] %s\n", i+1, p.Score, p.Title)
	}
}
