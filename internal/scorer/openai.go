package scorer

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"github.com/user/curator/internal/config"
)

type openAIScorer struct {
	client          *openai.Client
	triageModel     string
	enrichmentModel string
}

func newOpenAIScorer(cfg *config.Config) (*openAIScorer, error) {
	var apiKey, baseURL string
	if cfg.LLM.Provider == "openrouter" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
		baseURL = cfg.LLM.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
	} else {
		apiKey = os.Getenv("OPENAI_API_KEY")
		baseURL = cfg.LLM.BaseURL
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key not set for provider %s", cfg.LLM.Provider)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &openAIScorer{
		client:          openai.NewClientWithConfig(clientCfg),
		triageModel:     cfg.LLM.TriageModel,
		enrichmentModel: cfg.LLM.EnrichmentModel,
	}, nil
}

func (s *openAIScorer) complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *openAIScorer) TriageBatch(ctx context.Context, items []Item) ([]TriageResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	prompt := fmt.Sprintf(batchTriagePrompt, formatItems(items))
	text, err := s.complete(ctx, s.triageModel, prompt, 8192)
	if err != nil {
		return nil, err
	}
	return parseTriageResponse(text)
}

func (s *openAIScorer) Enrich(ctx context.Context, in EnrichInput) (EnrichmentResult, error) {
	text, err := s.complete(ctx, s.enrichmentModel, formatEnrichPrompt(in), 2048)
	if err != nil {
		return EnrichmentResult{}, err
	}
	return parseEnrichmentResponse(text)
}
