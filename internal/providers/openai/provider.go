package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/bookline/bookline-backend/internal/config"
	"github.com/bookline/bookline-backend/internal/providers"
)

// Provider implements both completion and embedding access over the OpenAI
// API (or any compatible endpoint via a custom base URL).
type Provider struct {
	cfg    config.InferenceConfig
	client *openai.Client
}

// NewProvider creates a new OpenAI provider
func NewProvider(cfg config.InferenceConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("inference API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Complete performs a non-streaming completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.CompletionModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed converts text to a fixed-length vector
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(p.cfg.EmbeddingModel),
		Dimensions: p.cfg.EmbeddingDims,
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("embedding returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// classify wraps overload-class API failures so the retry layer can
// distinguish them from permanent errors.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 529:
			return &providers.TransientError{Err: err}
		}
	}
	return fmt.Errorf("inference request failed: %w", err)
}
