// Package visuals ranks and filters the media attached to a post, surfacing
// data-oriented items (charts, tables, documents) for article summaries.
// Selection is fully deterministic so digests are reproducible.
package visuals

import (
	"regexp"
	"sort"
	"strings"
)

// Kind classifies a media item. Upstream vision output is free text, so
// anything unrecognized collapses to KindOther.
type Kind string

const (
	KindChart      Kind = "chart"
	KindTable      Kind = "table"
	KindDocument   Kind = "document"
	KindScreenshot Kind = "screenshot"
	KindOther      Kind = "other"
)

// ParseKind maps a loosely-typed kind string onto the enum.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindChart:
		return KindChart
	case KindTable:
		return KindTable
	case KindDocument:
		return KindDocument
	case KindScreenshot:
		return KindScreenshot
	default:
		return KindOther
	}
}

var dataKinds = map[Kind]bool{
	KindChart:      true,
	KindTable:      true,
	KindDocument:   true,
	KindScreenshot: true,
}

// kindPriority orders selected visuals; lower sorts first.
var kindPriority = map[Kind]int{
	KindChart:      0,
	KindTable:      1,
	KindScreenshot: 2,
	KindDocument:   3,
}

// Chart holds vision-extracted chart annotations.
type Chart struct {
	Description string `json:"description,omitempty"`
	Insight     string `json:"insight,omitempty"`
	Implication string `json:"implication,omitempty"`
}

// Table holds vision-extracted table annotations.
type Table struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// Candidate is one media item considered for selection.
type Candidate struct {
	URL              string `json:"url"`
	Kind             Kind   `json:"kind"`
	ShortDescription string `json:"short_description,omitempty"`
	ProseText        string `json:"prose_text,omitempty"`
	ProseSummary     string `json:"prose_summary,omitempty"`
	AltText          string `json:"alt_text,omitempty"`
	Chart            *Chart `json:"chart,omitempty"`
	Table            *Table `json:"table,omitempty"`
}

// Hint is an upstream-suggested top visual for a post.
type Hint struct {
	URL          string `json:"url"`
	Kind         Kind   `json:"kind"`
	WhyImportant string `json:"why_important,omitempty"`
	KeyTakeaway  string `json:"key_takeaway,omitempty"`
}

// Visual is a selected, display-ready item.
type Visual struct {
	URL          string `json:"url"`
	Kind         Kind   `json:"kind"`
	Top          bool   `json:"is_top"`
	WhyImportant string `json:"why_important,omitempty"`
	Takeaway     string `json:"key_takeaway,omitempty"`
}

// Vocabulary holds the term lists driving the text-based relevance check.
// The lists are data, not logic: callers may override them from config.
type Vocabulary struct {
	DataTerms  []string
	NoiseTerms []string
}

// DefaultVocabulary returns the built-in term lists.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		DataTerms: []string{
			"chart", "graph", "table", "data", "yield", "rate", "index",
			"earnings", "revenue", "inflation", "gdp", "forecast", "estimate",
			"quarter", "yoy", "basis points", "bps", "billion", "trillion",
		},
		NoiseTerms: []string{
			"meme", "joke", "selfie", "lol", "funny", "cartoon", "reaction",
		},
	}
}

var (
	percentRe  = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
	currencyRe = regexp.MustCompile(`[$€£¥]\s?\d`)
	digitRe    = regexp.MustCompile(`\d`)
	tokenRe    = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

// Selector applies the relevance heuristic with a fixed vocabulary.
type Selector struct {
	vocab Vocabulary
}

func NewSelector(vocab Vocabulary) *Selector {
	if len(vocab.DataTerms) == 0 && len(vocab.NoiseTerms) == 0 {
		vocab = DefaultVocabulary()
	}
	return &Selector{vocab: vocab}
}

func (s *Selector) matchesAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func candidateText(c Candidate) string {
	parts := []string{c.ShortDescription, c.ProseSummary, c.ProseText, c.AltText}
	if c.Chart != nil {
		parts = append(parts, c.Chart.Description, c.Chart.Insight, c.Chart.Implication)
	}
	if c.Table != nil {
		parts = append(parts, c.Table.Title, c.Table.Description, c.Table.Summary)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// dataRelevant reports whether a candidate should be surfaced: its kind is a
// data kind, or its text matches the data vocabulary. A noise-vocabulary
// match always overrides a text match, but never a data kind.
func (s *Selector) dataRelevant(kind Kind, text string) bool {
	if dataKinds[kind] {
		return true
	}
	if s.matchesAny(text, s.vocab.NoiseTerms) {
		return false
	}
	if s.matchesAny(text, s.vocab.DataTerms) {
		return true
	}
	return percentRe.MatchString(text) || currencyRe.MatchString(text)
}

func takeaway(c Candidate) string {
	first := func(vals ...string) string {
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	switch c.Kind {
	case KindChart:
		if c.Chart != nil {
			if t := first(c.Chart.Insight, c.Chart.Implication, c.Chart.Description); t != "" {
				return t
			}
		}
		return first(c.ProseSummary, c.ShortDescription)
	case KindTable:
		if c.Table != nil {
			if t := first(c.Table.Summary, c.Table.Description); t != "" {
				return t
			}
		}
		return first(c.ProseSummary, c.ShortDescription)
	case KindDocument, KindScreenshot:
		return first(c.ProseSummary, c.ShortDescription)
	default:
		return first(c.ShortDescription)
	}
}

func priority(kind Kind) int {
	if p, ok := kindPriority[kind]; ok {
		return p
	}
	return 9
}

// Select returns at most maxItems visuals: the hint first when it is itself
// data-relevant, then remaining relevant candidates in kind-priority order.
// Ties preserve candidate order. maxItems <= 0 yields an empty list.
func (s *Selector) Select(top *Hint, candidates []Candidate, maxItems int) []Visual {
	if maxItems <= 0 {
		return []Visual{}
	}

	var selected []Visual
	seen := make(map[string]bool)

	if top != nil {
		topURL := strings.TrimSpace(top.URL)
		hintText := strings.ToLower(top.WhyImportant + " " + top.KeyTakeaway)
		if topURL != "" && s.dataRelevant(top.Kind, hintText) {
			selected = append(selected, Visual{
				URL:          topURL,
				Kind:         top.Kind,
				Top:          true,
				WhyImportant: strings.TrimSpace(top.WhyImportant),
				Takeaway:     strings.TrimSpace(top.KeyTakeaway),
			})
			seen[topURL] = true
		}
	}

	var extras []Visual
	for _, c := range candidates {
		url := strings.TrimSpace(c.URL)
		if url == "" || seen[url] {
			continue
		}
		if !s.dataRelevant(c.Kind, candidateText(c)) {
			continue
		}
		seen[url] = true
		extras = append(extras, Visual{
			URL:      url,
			Kind:     c.Kind,
			Takeaway: takeaway(c),
		})
	}

	sort.SliceStable(extras, func(i, j int) bool {
		return priority(extras[i].Kind) < priority(extras[j].Kind)
	})

	for _, v := range extras {
		if len(selected) >= maxItems {
			break
		}
		selected = append(selected, v)
	}
	if selected == nil {
		return []Visual{}
	}
	return selected
}

// PickTop chooses a primary visual from analyzed media when the upstream
// summarizer supplied none, scoring candidates against the article context.
// Non-chart kinds are gated hard to avoid irrelevant picks.
func (s *Selector) PickTop(candidates []Candidate, context string) *Hint {
	contextTokens := tokenize(context)

	var best *Hint
	bestScore := 0.0
	for _, c := range candidates {
		url := strings.TrimSpace(c.URL)
		if url == "" {
			continue
		}
		if !dataKinds[c.Kind] {
			continue
		}
		text := candidateText(c)
		if strings.TrimSpace(text) == "" {
			continue
		}

		hasNumbers := digitRe.MatchString(text)
		overlap := 0
		if len(contextTokens) > 0 {
			for tok := range tokenize(text) {
				if contextTokens[tok] {
					overlap++
				}
			}
		}

		switch c.Kind {
		case KindDocument, KindScreenshot:
			if overlap < 2 || !hasNumbers {
				continue
			}
		case KindChart, KindTable:
			if overlap == 0 && !hasNumbers {
				continue
			}
		}

		base := 70.0
		if c.Kind == KindChart || c.Kind == KindTable {
			base = 100.0
		}
		score := base + float64(overlap*5)
		if hasNumbers {
			score += 10.0
		}

		take := takeaway(c)
		if take == "" {
			continue
		}
		if best == nil || score > bestScore {
			bestScore = score
			best = &Hint{
				URL:          url,
				Kind:         c.Kind,
				WhyImportant: "Most relevant quantitative visual supporting the article thesis.",
				KeyTakeaway:  take,
			}
		}
	}
	return best
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = true
	}
	return tokens
}
