package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/prompts"
)

// AnswerService generates answers from retrieved context using an
// OpenAI-compatible chat completion API.
type AnswerService struct {
	client   *resty.Client
	model    string
	endpoint string
}

// AnswerConfig holds configuration for the answer service.
type AnswerConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// NewAnswerService creates a new answer service.
func NewAnswerService(cfg *AnswerConfig) *AnswerService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Prevent hanging requests
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}

	return &AnswerService{
		client:   client,
		model:    model,
		endpoint: strings.TrimSuffix(baseURL, "/") + "/chat/completions",
	}
}

// Model returns the chat model being used.
func (s *AnswerService) Model() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateAnswer formats the question and retrieved posts into the analyst
// prompt and returns the model's text response verbatim. An empty response
// is an error, not a success.
func (s *AnswerService) GenerateAnswer(ctx context.Context, question string, contextPosts []domain.PostPayload) (string, error) {
	prompt := prompts.AnswerPrompt(question, contextPosts)

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call chat API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != nil && resp.Error.Message != "" {
			return "", fmt.Errorf("chat API error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("chat API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", domain.ErrEmptyAnswer
	}

	return resp.Choices[0].Message.Content, nil
}
