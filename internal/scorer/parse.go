package scorer

import (
	"encoding/json"
	"fmt"
	"strings"
)

type triagePayload struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Categories []string `json:"categories"`
	Category   string   `json:"category"`
	Summary    string   `json:"summary"`
	Tickers    []string `json:"tickers"`
}

type enrichmentPayload struct {
	Insight      string   `json:"insight"`
	Implications string   `json:"implications"`
	Narratives   []string `json:"narratives"`
	Tickers      []string `json:"tickers"`
}

// stripFences removes markdown code fences models sometimes wrap around JSON.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

func parseTriageResponse(text string) ([]TriageResult, error) {
	raw := stripFences(text)

	var payloads []triagePayload
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		// Some models return a single object for a one-item batch.
		var single triagePayload
		if err2 := json.Unmarshal([]byte(raw), &single); err2 != nil {
			return nil, fmt.Errorf("unparseable triage response: %w", err)
		}
		payloads = []triagePayload{single}
	}

	results := make([]TriageResult, 0, len(payloads))
	for _, p := range payloads {
		categories := p.Categories
		if len(categories) == 0 && p.Category != "" {
			categories = []string{p.Category}
		}
		results = append(results, TriageResult{
			PostID:     p.ID,
			Score:      clampScore(p.Score),
			Categories: categories,
			Summary:    p.Summary,
			Tickers:    p.Tickers,
		})
	}
	return results, nil
}

func parseEnrichmentResponse(text string) (EnrichmentResult, error) {
	var p enrichmentPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
		return EnrichmentResult{}, fmt.Errorf("unparseable enrichment response: %w", err)
	}
	return EnrichmentResult{
		Insight:      p.Insight,
		Implications: p.Implications,
		Narratives:   p.Narratives,
		Tickers:      p.Tickers,
	}, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
