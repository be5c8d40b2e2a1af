package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/logger"
)

// AnswerProvider generates an answer grounded in the given context posts.
type AnswerProvider interface {
	GenerateAnswer(ctx context.Context, question string, contextPosts []domain.PostPayload) (string, error)
	Model() string
}

// QueryResult is the outcome of one retrieval-augmented query.
type QueryResult struct {
	Question     string               `json:"question"`
	Answer       string               `json:"answer"`
	ContextPosts []domain.PostPayload `json:"context_posts"`
	Collection   string               `json:"collection_name"`
	Model        string               `json:"model"`
}

// QueryService answers questions about a stock from its most recent
// ingested dataset.
type QueryService struct {
	catalog Catalog
	embed   Embedder
	index   VectorIndex
	answer  AnswerProvider
}

func NewQueryService(catalog Catalog, embed Embedder, index VectorIndex, answer AnswerProvider) *QueryService {
	return &QueryService{
		catalog: catalog,
		embed:   embed,
		index:   index,
		answer:  answer,
	}
}

// Ask resolves the symbol to its latest completed dataset, retrieves the
// topK most similar posts, and generates an answer from them. Returns
// domain.ErrNotFound when the symbol has never been ingested.
func (s *QueryService) Ask(ctx context.Context, symbol, question string, topK int) (*QueryResult, error) {
	start := time.Now()

	ds, err := s.catalog.LatestForSymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("resolve symbol %q: %w", symbol, err)
	}

	vector, err := s.embed.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	posts, err := s.index.SearchPayloads(ctx, ds.Name, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ds.Name, err)
	}
	// Zero retrieved posts is a hard error: answering from an empty
	// context block would just invite the model to make something up.
	if len(posts) == 0 {
		return nil, fmt.Errorf("collection %s: %w", ds.Name, domain.ErrEmptyResult)
	}

	text, err := s.answer.GenerateAnswer(ctx, question, posts)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldDataset:    ds.Name,
		logger.FieldSymbol:     strings.ToUpper(symbol),
		logger.FieldCount:      len(posts),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Answered query")

	return &QueryResult{
		Question:     question,
		Answer:       text,
		ContextPosts: posts,
		Collection:   ds.Name,
		Model:        s.answer.Model(),
	}, nil
}
