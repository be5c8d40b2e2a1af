package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mweber/stocklens/internal/domain"
)

const (
	openAIEmbeddingEndpoint = "https://api.openai.com/v1/embeddings"
	jinaEmbeddingEndpoint   = "https://api.jina.ai/v1/embeddings"

	defaultEmbedBatchSize = 32
)

// EmbeddingService generates text embeddings with the one model that is
// active for this process.
type EmbeddingService struct {
	client    *resty.Client
	model     ModelInfo
	endpoint  string
	batchSize int
}

// EmbeddingServiceConfig holds configuration for the embedding service.
type EmbeddingServiceConfig struct {
	Model        string // registry name; empty selects the default
	OpenAIAPIKey string
	JinaAPIKey   string
	LocalURL     string // base URL of the local OpenAI-compatible server
	BatchSize    int
}

// NewEmbeddingService creates an embedding service for the configured
// registry model. An unknown model name is a startup error.
func NewEmbeddingService(cfg *EmbeddingServiceConfig) (*EmbeddingService, error) {
	model, err := LookupModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetTimeout(60 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	var endpoint string
	switch model.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("embedding model %s requires OPENAI_API_KEY", model.Name)
		}
		client.SetHeader("Authorization", "Bearer "+cfg.OpenAIAPIKey)
		endpoint = openAIEmbeddingEndpoint
	case ProviderJina:
		if cfg.JinaAPIKey == "" {
			return nil, fmt.Errorf("embedding model %s requires JINA_API_KEY", model.Name)
		}
		client.SetHeader("Authorization", "Bearer "+cfg.JinaAPIKey)
		endpoint = jinaEmbeddingEndpoint
	case ProviderLocal:
		if cfg.LocalURL == "" {
			return nil, fmt.Errorf("embedding model %s requires a local inference URL", model.Name)
		}
		endpoint = strings.TrimSuffix(cfg.LocalURL, "/") + "/embeddings"
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", model.Provider)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}

	return &EmbeddingService{
		client:    client,
		model:     model,
		endpoint:  endpoint,
		batchSize: batchSize,
	}, nil
}

// Model returns the active registry model.
func (s *EmbeddingService) Model() ModelInfo {
	return s.model
}

// embeddingRequest covers both the OpenAI embeddings API and Jina's
// superset of it; the Jina-only fields are omitted for other providers.
type embeddingRequest struct {
	Model         string   `json:"model"`
	Input         []string `json:"input"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// embed performs one batched embedding request. task is only honored by the
// Jina provider.
func (s *EmbeddingService) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	req := embeddingRequest{
		Model: s.model.Name,
		Input: texts,
	}
	if s.model.Provider == ProviderJina {
		req.Task = task
		req.Dimensions = s.model.Dimensions
		req.EmbeddingType = "float"
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != nil && resp.Error.Message != "" {
			return nil, fmt.Errorf("embedding API error: %s", resp.Error.Message)
		}
		if resp.Detail != "" {
			return nil, fmt.Errorf("embedding API error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts))
	}

	// Sort by index to ensure correct order
	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}

	for i, v := range embeddings {
		if len(v) != s.model.Dimensions {
			return nil, fmt.Errorf("embedding %d has dimension %d, model %s declares %d",
				i, len(v), s.model.Name, s.model.Dimensions)
		}
	}

	return embeddings, nil
}

// EmbedBatch generates embeddings for multiple texts, batching requests to
// the provider's comfort size.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embed(ctx, texts[start:end], "retrieval.passage")
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}

	return embeddings, nil
}

// EmbedPosts generates one embedding per post, row-aligned with the input.
func (s *EmbeddingService) EmbedPosts(ctx context.Context, posts []domain.Post) ([][]float32, error) {
	texts := make([]string, len(posts))
	for i := range posts {
		texts[i] = buildPostText(&posts[i])
	}
	return s.EmbedBatch(ctx, texts)
}

// EmbedQuery generates an embedding for a search query.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := s.embed(ctx, []string{query}, "retrieval.query")
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// buildPostText joins title and body into the embedding input, matching the
// layout the datasets were originally embedded with. Missing fields
// degrade to the other one.
func buildPostText(p *domain.Post) string {
	return strings.TrimSpace(p.Title + " " + p.Body)
}
