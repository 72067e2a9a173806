package db

import "time"

// Post processing status values.
const (
	StatusPending          = "pending"
	StatusProcessed        = "processed"
	StatusProcessingFailed = "processing_failed"
	StatusInvalid          = "invalid"
	StatusSkipped          = "skipped"
)

// Post is one ingested item plus its curation state. Content fields come from
// the fetch collaborator; curation fields are pipeline outputs and stay empty
// until a run processes the post.
type Post struct {
	ID           string    `json:"id"`
	AuthorHandle string    `json:"author_handle"`
	AuthorName   string    `json:"author_name,omitempty"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
	FirstSeenAt  time.Time `json:"first_seen_at"`

	IsRetweet            bool   `json:"is_retweet,omitempty"`
	OriginalAuthorHandle string `json:"original_author_handle,omitempty"`
	OriginalAuthorName   string `json:"original_author_name,omitempty"`

	QuoteID    string   `json:"quote_id,omitempty"`
	QuoteChain []string `json:"quote_chain,omitempty"`

	HasMedia  bool   `json:"has_media,omitempty"`
	MediaJSON string `json:"media_json,omitempty"`
	LinksJSON string `json:"links_json,omitempty"`

	// Curation state.
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
	Score       float64   `json:"score,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Tier        string    `json:"tier,omitempty"`

	// Derived display fields, computed by the pipeline.
	DisplayText       string `json:"display_text,omitempty"`
	ExternalLinksJSON string `json:"external_links_json,omitempty"`
	QuoteRefsJSON     string `json:"quote_refs_json,omitempty"`
	VisualsJSON       string `json:"visuals_json,omitempty"`
	EnrichmentJSON    string `json:"enrichment_json,omitempty"`
}

// Scored reports whether the post carries terminal curation state.
func (p *Post) Scored() bool {
	return p.Status == StatusProcessed
}

// Account is a tracked source with its weight/tier lifecycle state.
type Account struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
	Tier        int    `json:"tier"`
	Weight      float64
	Category    string `json:"category,omitempty"`
	Muted       bool   `json:"muted"`

	PostsSeen        int       `json:"posts_seen"`
	PostsKept        int       `json:"posts_kept"`
	AvgScore         float64   `json:"avg_score"`
	LastHighSignalAt time.Time `json:"last_high_signal_at,omitempty"`
	LastBoostedAt    time.Time `json:"last_boosted_at,omitempty"`

	AddedAt      time.Time `json:"added_at"`
	AutoPromoted bool      `json:"auto_promoted"`
}

// CurationUpdate is the full curated record written for a post in one
// statement, so no partial overwrite is ever visible.
type CurationUpdate struct {
	Score             float64
	Categories        []string
	Tier              string
	DisplayText       string
	ExternalLinksJSON string
	QuoteRefsJSON     string
	VisualsJSON       string
	EnrichmentJSON    string
	QuoteChain        []string
	ProcessedAt       time.Time
}
