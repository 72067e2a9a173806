// Package scorer wraps the external LLM scoring calls behind a capability
// interface so the pipeline can swap in deterministic fakes in tests.
package scorer

import (
	"context"
	"fmt"

	"github.com/user/curator/internal/config"
)

// Tier buckets a post by triage score.
type Tier string

const (
	TierHighSignal     Tier = "high_signal"
	TierMarketRelevant Tier = "market_relevant"
	TierNews           Tier = "news"
	TierNoise          Tier = "noise"
)

// TierForScore maps a score onto its tier. The boundaries are a fixed step
// function: [8,10] high_signal, [6,8) market_relevant, [4,6) news, [0,4) noise.
func TierForScore(score float64) Tier {
	switch {
	case score >= 8:
		return TierHighSignal
	case score >= 6:
		return TierMarketRelevant
	case score >= 4:
		return TierNews
	default:
		return TierNoise
	}
}

// Item is one post submitted for triage.
type Item struct {
	ID     string
	Handle string
	Text   string
}

// TriageResult is the scoring outcome for one post.
type TriageResult struct {
	PostID     string
	Score      float64
	Categories []string
	Summary    string
	Tickers    []string
}

// Tier derives the post tier from the triage score.
func (r TriageResult) Tier() Tier {
	return TierForScore(r.Score)
}

// EnrichInput carries the context for a deep analysis pass.
type EnrichInput struct {
	Text           string
	Handle         string
	AuthorCategory string
	QuotedText     string
	ArticleSummary string
	MediaContext   string
}

// EnrichmentResult is the deeper analysis of a high-signal post.
type EnrichmentResult struct {
	Insight      string
	Implications string
	Narratives   []string
	Tickers      []string
}

// Scorer is the external scoring capability. Both calls may block on network
// latency and may fail; retry policy lives in the Adapter, not here.
type Scorer interface {
	TriageBatch(ctx context.Context, items []Item) ([]TriageResult, error)
	Enrich(ctx context.Context, in EnrichInput) (EnrichmentResult, error)
}

// New returns the configured provider implementation.
func New(cfg *config.Config) (Scorer, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return newAnthropicScorer(cfg)
	case "openai", "openrouter":
		return newOpenAIScorer(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
