package scorer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/user/curator/internal/config"
)

type anthropicScorer struct {
	client          *anthropic.Client
	triageModel     string
	enrichmentModel string
}

func newAnthropicScorer(cfg *config.Config) (*anthropicScorer, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	return &anthropicScorer{
		client:          anthropic.NewClient(apiKey),
		triageModel:     cfg.LLM.TriageModel,
		enrichmentModel: cfg.LLM.EnrichmentModel,
	}, nil
}

func (s *anthropicScorer) complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	resp, err := s.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}
	return resp.Content[0].GetText(), nil
}

func (s *anthropicScorer) TriageBatch(ctx context.Context, items []Item) ([]TriageResult, error) {
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

func (s *anthropicScorer) Enrich(ctx context.Context, in EnrichInput) (EnrichmentResult, error) {
	prompt := formatEnrichPrompt(in)
	text, err := s.complete(ctx, s.enrichmentModel, prompt, 2048)
	if err != nil {
		return EnrichmentResult{}, err
	}
	return parseEnrichmentResponse(text)
}

func formatItems(items []Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("[%s] @%s: %s", item.ID, item.Handle, item.Text))
	}
	return strings.Join(lines, "\n\n")
}

func formatEnrichPrompt(in EnrichInput) string {
	orNone := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "[none]"
		}
		return s
	}
	category := in.AuthorCategory
	if category == "" {
		category = "unknown"
	}
	return fmt.Sprintf(enrichmentPrompt,
		in.Handle, category, in.Text,
		orNone(in.QuotedText), orNone(in.ArticleSummary), orNone(in.MediaContext))
}
