// Package pipeline runs the curation pass: it drains the unprocessed post
// queue, normalizes each post, scores it in batches, updates the account
// ledger, and writes the curated record back in a single statement per post.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/curator/internal/config"
	"github.com/user/curator/internal/db"
	"github.com/user/curator/internal/ledger"
	"github.com/user/curator/internal/normalize"
	"github.com/user/curator/internal/scorer"
	"github.com/user/curator/internal/visuals"
)

// Options control a single pipeline run.
type Options struct {
	// Limit caps the number of posts pulled from the queue. Zero means the
	// configured default.
	Limit int
	// DryRun scores without writing anything back: no curation updates, no
	// status changes, no ledger mutations.
	DryRun bool
	// Reprocess resets the most recently processed posts back to pending
	// before the run, so already-scored posts are scored again. Without it a
	// run never touches posts with terminal curation state.
	Reprocess bool
}

// Alert is a post that cleared the alert threshold during a run.
type Alert struct {
	PostID  string  `json:"post_id"`
	Handle  string  `json:"handle"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary,omitempty"`
}

// Summary reports what a run did.
type Summary struct {
	RunID      string        `json:"run_id"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Invalid    int           `json:"invalid"`
	Skipped    int           `json:"skipped"`
	Alerts     []Alert       `json:"alerts,omitempty"`
	Promotions []string      `json:"promotions,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Pipeline wires the store, scorer adapter, ledger, and visual selector into
// one curation pass.
type Pipeline struct {
	store    *db.Store
	adapter  *scorer.Adapter
	ledger   *ledger.Ledger
	selector *visuals.Selector
	cfg      *config.Config
	log      *logrus.Logger
}

func New(store *db.Store, adapter *scorer.Adapter, lgr *ledger.Ledger, selector *visuals.Selector, cfg *config.Config, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	return &Pipeline{
		store:    store,
		adapter:  adapter,
		ledger:   lgr,
		selector: selector,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes one curation pass over the unprocessed queue. Each post is
// isolated: a failure scoring or writing one post never blocks the others.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}

	limit := opts.Limit
	if limit <= 0 {
		limit = p.cfg.Process.Limit
	}

	if opts.Reprocess && !opts.DryRun {
		ids, err := p.store.GetProcessedIDs(limit)
		if err != nil {
			return nil, fmt.Errorf("loading processed posts: %w", err)
		}
		if err := p.store.MarkForReprocess(ids); err != nil {
			return nil, fmt.Errorf("resetting processed posts: %w", err)
		}
	}

	posts, err := p.store.GetUnprocessed(limit)
	if err != nil {
		return nil, fmt.Errorf("loading unprocessed posts: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"posts":  len(posts),
		"limit":  limit,
	}).Info("Starting curation run")

	if len(posts) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	valid, invalid, skipped := p.partition(posts)
	summary.Invalid = len(invalid)
	summary.Skipped = len(skipped)
	if !opts.DryRun {
		if err := p.store.MarkStatus(invalid, db.StatusInvalid); err != nil {
			return nil, fmt.Errorf("marking invalid posts: %w", err)
		}
		if err := p.store.MarkStatus(skipped, db.StatusSkipped); err != nil {
			return nil, fmt.Errorf("marking skipped posts: %w", err)
		}
	}

	normalized := make(map[string]normalize.Result, len(valid))
	items := make([]scorer.Item, 0, len(valid))
	byID := make(map[string]*db.Post, len(valid))
	for _, post := range valid {
		res := p.normalizePost(post)
		normalized[post.ID] = res
		byID[post.ID] = post
		items = append(items, scorer.Item{
			ID:     post.ID,
			Handle: attributionHandle(post),
			Text:   scoringText(post, res),
		})
	}

	results, failed, err := p.adapter.Triage(ctx, items)
	if err != nil {
		return summary, err
	}
	if len(failed) > 0 {
		summary.Failed += len(failed)
		ids := make([]string, len(failed))
		for i, it := range failed {
			ids[i] = it.ID
		}
		if !opts.DryRun {
			if err := p.store.MarkStatus(ids, db.StatusProcessingFailed); err != nil {
				return summary, fmt.Errorf("marking failed posts: %w", err)
			}
		}
	}

	for _, res := range results {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		post, ok := byID[res.PostID]
		if !ok {
			p.log.WithField("post_id", res.PostID).Warn("Triage returned unknown post id")
			continue
		}
		if err := p.finishPost(ctx, post, res, normalized[post.ID], opts, summary); err != nil {
			summary.Failed++
			p.log.WithError(err).WithField("post_id", post.ID).Error("Failed to finalize post")
			if !opts.DryRun {
				if merr := p.store.MarkStatus([]string{post.ID}, db.StatusProcessingFailed); merr != nil {
					p.log.WithError(merr).WithField("post_id", post.ID).Error("Failed to mark post failed")
				}
			}
			continue
		}
		summary.Processed++
	}

	summary.Duration = time.Since(start)
	p.log.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"invalid":   summary.Invalid,
		"skipped":   summary.Skipped,
		"alerts":    len(summary.Alerts),
		"duration":  summary.Duration.Round(time.Millisecond).String(),
	}).Info("Curation run complete")
	return summary, nil
}

// finishPost applies the score to the ledger, runs optional enrichment and
// visual selection, and writes the full curated record in one statement.
func (p *Pipeline) finishPost(ctx context.Context, post *db.Post, res scorer.TriageResult, norm normalize.Result, opts Options, summary *Summary) error {
	handle := attributionHandle(post)

	if !opts.DryRun {
		_, promoted, err := p.ledger.RecordScore(handle, res.Score)
		if err != nil {
			return fmt.Errorf("recording score for @%s: %w", handle, err)
		}
		if promoted {
			summary.Promotions = append(summary.Promotions, handle)
		}
	}

	update := db.CurationUpdate{
		Score:       res.Score,
		Categories:  res.Categories,
		Tier:        string(res.Tier()),
		DisplayText: norm.DisplayText,
		ProcessedAt: time.Now().UTC(),
	}

	if len(norm.ExternalLinks) > 0 {
		raw, err := json.Marshal(norm.ExternalLinks)
		if err != nil {
			return fmt.Errorf("encoding external links: %w", err)
		}
		update.ExternalLinksJSON = string(raw)
	}
	if len(norm.QuoteRefs) > 0 {
		raw, err := json.Marshal(norm.QuoteRefs)
		if err != nil {
			return fmt.Errorf("encoding quote refs: %w", err)
		}
		update.QuoteRefsJSON = string(raw)
	}

	update.QuoteChain = p.resolveQuoteChain(post)

	if p.adapter.ShouldEnrich(res.Score) {
		enriched, err := p.adapter.Enrich(ctx, p.enrichInput(post, res, norm))
		if err != nil {
			// Enrichment is best effort: the triage score still stands.
			p.log.WithError(err).WithField("post_id", post.ID).Warn("Enrichment failed, keeping triage result")
		} else {
			raw, merr := json.Marshal(enriched)
			if merr != nil {
				return fmt.Errorf("encoding enrichment: %w", merr)
			}
			update.EnrichmentJSON = string(raw)
		}
	}

	if post.HasMedia && res.Score >= p.cfg.Scoring.ArticleMinScore {
		selected, err := p.selectVisuals(post, res, norm)
		if err != nil {
			p.log.WithError(err).WithField("post_id", post.ID).Warn("Skipping visuals for post with bad media payload")
		} else if len(selected) > 0 {
			raw, merr := json.Marshal(selected)
			if merr != nil {
				return fmt.Errorf("encoding visuals: %w", merr)
			}
			update.VisualsJSON = string(raw)
		}
	}

	if res.Score >= p.cfg.Scoring.AlertThreshold {
		summary.Alerts = append(summary.Alerts, Alert{
			PostID:  post.ID,
			Handle:  handle,
			Score:   res.Score,
			Summary: res.Summary,
		})
	}

	if opts.DryRun {
		p.log.WithFields(logrus.Fields{
			"post_id": post.ID,
			"handle":  handle,
			"score":   res.Score,
			"tier":    update.Tier,
		}).Info("Dry run, not persisting")
		return nil
	}
	return p.store.UpdateCuration(post.ID, update)
}

// partition splits the queue window into scoreable posts, malformed posts,
// and posts from muted accounts.
func (p *Pipeline) partition(posts []*db.Post) (valid []*db.Post, invalid, skipped []string) {
	for _, post := range posts {
		if post.ID == "" || post.AuthorHandle == "" || strings.TrimSpace(post.Text) == "" {
			p.log.WithField("post_id", post.ID).Warn("Dropping malformed post")
			invalid = append(invalid, post.ID)
			continue
		}
		if p.isMuted(attributionHandle(post)) || p.isMuted(post.AuthorHandle) {
			skipped = append(skipped, post.ID)
			continue
		}
		valid = append(valid, post)
	}
	return valid, invalid, skipped
}

func (p *Pipeline) isMuted(handle string) bool {
	if handle == "" {
		return false
	}
	a, err := p.store.GetAccount(handle)
	if err != nil {
		return false
	}
	return a.Muted
}

// normalizePost rewrites the post text and link set: self links removed,
// quote status URLs turned into refs, short links resolved or pruned.
func (p *Pipeline) normalizePost(post *db.Post) normalize.Result {
	in := normalize.Input{
		PostID:   post.ID,
		Text:     post.Text,
		HasMedia: post.HasMedia,
	}
	if post.LinksJSON != "" {
		if err := json.Unmarshal([]byte(post.LinksJSON), &in.Links); err != nil {
			p.log.WithError(err).WithField("post_id", post.ID).Warn("Ignoring unparsable links payload")
		}
	}
	return normalize.Normalize(in)
}

// resolveQuoteChain walks quote references through the store, bounded by the
// configured depth and guarded against cycles.
func (p *Pipeline) resolveQuoteChain(post *db.Post) []string {
	depth := p.cfg.Process.QuoteDepth
	if depth <= 0 || post.QuoteID == "" {
		return nil
	}
	seen := map[string]bool{post.ID: true}
	var chain []string
	next := post.QuoteID
	for i := 0; i < depth && next != "" && !seen[next]; i++ {
		seen[next] = true
		chain = append(chain, next)
		quoted, err := p.store.GetPost(next)
		if err != nil {
			break
		}
		next = quoted.QuoteID
	}
	return chain
}

func (p *Pipeline) enrichInput(post *db.Post, res scorer.TriageResult, norm normalize.Result) scorer.EnrichInput {
	in := scorer.EnrichInput{
		Text:           norm.DisplayText,
		Handle:         attributionHandle(post),
		ArticleSummary: res.Summary,
	}
	if a, err := p.store.GetAccount(in.Handle); err == nil {
		in.AuthorCategory = a.Category
	}
	if post.QuoteID != "" {
		if quoted, err := p.store.GetPost(post.QuoteID); err == nil {
			in.QuotedText = quoted.Text
		}
	}
	if post.HasMedia && post.MediaJSON != "" {
		if candidates, err := parseCandidates(post.MediaJSON); err == nil {
			var descs []string
			for _, c := range candidates {
				switch {
				case c.ShortDescription != "":
					descs = append(descs, c.ShortDescription)
				case c.AltText != "":
					descs = append(descs, c.AltText)
				}
			}
			in.MediaContext = strings.Join(descs, "; ")
		}
	}
	return in
}

// selectVisuals picks and orders attachments worth showing for a scored post.
func (p *Pipeline) selectVisuals(post *db.Post, res scorer.TriageResult, norm normalize.Result) ([]visuals.Visual, error) {
	candidates, err := parseCandidates(post.MediaJSON)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	context := norm.DisplayText
	if res.Summary != "" {
		context += " " + res.Summary
	}
	top := p.selector.PickTop(candidates, context)
	return p.selector.Select(top, candidates, p.cfg.Visuals.MaxPerPost), nil
}

func parseCandidates(mediaJSON string) ([]visuals.Candidate, error) {
	if mediaJSON == "" {
		return nil, nil
	}
	var candidates []visuals.Candidate
	if err := json.Unmarshal([]byte(mediaJSON), &candidates); err != nil {
		return nil, fmt.Errorf("decoding media payload: %w", err)
	}
	for i := range candidates {
		candidates[i].Kind = visuals.ParseKind(string(candidates[i].Kind))
	}
	return candidates, nil
}

// attributionHandle is the account credited for a post's score. Retweets
// credit the original author, not the amplifier.
func attributionHandle(post *db.Post) string {
	if post.IsRetweet && post.OriginalAuthorHandle != "" {
		return post.OriginalAuthorHandle
	}
	return post.AuthorHandle
}

// scoringText is what the model sees: the normalized display text plus
// retweet provenance when present.
func scoringText(post *db.Post, norm normalize.Result) string {
	text := norm.DisplayText
	if text == "" {
		text = post.Text
	}
	if post.IsRetweet && post.OriginalAuthorHandle != "" {
		return fmt.Sprintf("RT @%s: %s", post.OriginalAuthorHandle, text)
	}
	return text
}
