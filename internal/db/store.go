package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dataDir, "curator.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_handle TEXT NOT NULL,
		author_name TEXT,
		text TEXT NOT NULL,
		created_at TIMESTAMP,
		first_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

		is_retweet INTEGER DEFAULT 0,
		original_author_handle TEXT,
		original_author_name TEXT,

		quote_id TEXT,
		quote_chain TEXT,

		has_media INTEGER DEFAULT 0,
		media_json TEXT,
		links_json TEXT,

		status TEXT DEFAULT 'pending',
		processed_at TIMESTAMP,
		score REAL,
		categories TEXT,
		tier TEXT,

		display_text TEXT,
		external_links_json TEXT,
		quote_refs_json TEXT,
		visuals_json TEXT,
		enrichment_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);
	CREATE INDEX IF NOT EXISTS idx_posts_unprocessed ON posts(first_seen_at) WHERE status IN ('pending', 'processing_failed');
	CREATE INDEX IF NOT EXISTS idx_posts_score ON posts(score DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_handle);
	CREATE INDEX IF NOT EXISTS idx_posts_tier ON posts(tier);

	CREATE TABLE IF NOT EXISTS accounts (
		handle TEXT PRIMARY KEY,
		display_name TEXT,
		tier INTEGER DEFAULT 3,
		weight REAL DEFAULT 50.0,
		category TEXT,
		muted INTEGER DEFAULT 0,

		posts_seen INTEGER DEFAULT 0,
		posts_kept INTEGER DEFAULT 0,
		avg_score REAL DEFAULT 0,
		last_high_signal_at TIMESTAMP,
		last_boosted_at TIMESTAMP,

		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		auto_promoted INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_tier ON accounts(tier, weight DESC);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertPost inserts a post or refreshes its content fields. Curation fields
// are never touched here: a later batch can not implicitly overwrite scoring.
func (s *Store) UpsertPost(p *Post) (bool, error) {
	if p.ID == "" {
		return false, fmt.Errorf("post id is required")
	}
	if p.FirstSeenAt.IsZero() {
		p.FirstSeenAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}

	var existingID string
	err := s.db.QueryRow(`SELECT id FROM posts WHERE id = ?`, p.ID).Scan(&existingID)
	isNew := err == sql.ErrNoRows
	if err != nil && !isNew {
		return false, err
	}

	quoteChain, err := marshalStrings(p.QuoteChain)
	if err != nil {
		return false, err
	}

	query := `
	INSERT INTO posts (id, author_handle, author_name, text, created_at, first_seen_at,
		is_retweet, original_author_handle, original_author_name,
		quote_id, quote_chain, has_media, media_json, links_json, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		author_name = COALESCE(NULLIF(excluded.author_name, ''), posts.author_name),
		text = excluded.text,
		has_media = excluded.has_media,
		media_json = COALESCE(NULLIF(excluded.media_json, ''), posts.media_json),
		links_json = COALESCE(NULLIF(excluded.links_json, ''), posts.links_json)
	`

	_, err = s.db.Exec(query,
		p.ID, p.AuthorHandle, p.AuthorName, p.Text, nullTime(p.CreatedAt), p.FirstSeenAt,
		p.IsRetweet, p.OriginalAuthorHandle, p.OriginalAuthorName,
		p.QuoteID, quoteChain, p.HasMedia, p.MediaJSON, p.LinksJSON, p.Status,
	)
	return isNew, err
}

const postColumns = `id, author_handle, author_name, text, created_at, first_seen_at,
	is_retweet, original_author_handle, original_author_name,
	quote_id, quote_chain, has_media, media_json, links_json,
	status, processed_at, score, categories, tier,
	display_text, external_links_json, quote_refs_json, visuals_json, enrichment_json`

func (s *Store) scanPost(row interface{ Scan(...interface{}) error }) (*Post, error) {
	var p Post
	var createdAt, processedAt sql.NullTime
	var authorName, origHandle, origName, quoteID, quoteChain sql.NullString
	var mediaJSON, linksJSON, categories, tier sql.NullString
	var displayText, extLinks, quoteRefs, visualsJSON, enrichJSON sql.NullString
	var score sql.NullFloat64

	err := row.Scan(
		&p.ID, &p.AuthorHandle, &authorName, &p.Text, &createdAt, &p.FirstSeenAt,
		&p.IsRetweet, &origHandle, &origName,
		&quoteID, &quoteChain, &p.HasMedia, &mediaJSON, &linksJSON,
		&p.Status, &processedAt, &score, &categories, &tier,
		&displayText, &extLinks, &quoteRefs, &visualsJSON, &enrichJSON,
	)
	if err != nil {
		return nil, err
	}

	p.AuthorName = authorName.String
	p.OriginalAuthorHandle = origHandle.String
	p.OriginalAuthorName = origName.String
	p.QuoteID = quoteID.String
	p.MediaJSON = mediaJSON.String
	p.LinksJSON = linksJSON.String
	p.Tier = tier.String
	p.DisplayText = displayText.String
	p.ExternalLinksJSON = extLinks.String
	p.QuoteRefsJSON = quoteRefs.String
	p.VisualsJSON = visualsJSON.String
	p.EnrichmentJSON = enrichJSON.String
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	if processedAt.Valid {
		p.ProcessedAt = processedAt.Time
	}
	if score.Valid {
		p.Score = score.Float64
	}
	if quoteChain.Valid && quoteChain.String != "" {
		if err := json.Unmarshal([]byte(quoteChain.String), &p.QuoteChain); err != nil {
			return nil, fmt.Errorf("corrupt quote chain for post %s: %w", p.ID, err)
		}
	}
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &p.Categories); err != nil {
			return nil, fmt.Errorf("corrupt categories for post %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (s *Store) GetPost(id string) (*Post, error) {
	row := s.db.QueryRow(`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return s.scanPost(row)
}

// GetUnprocessed returns posts awaiting curation, oldest first. Posts whose
// batch failed on an earlier run are included so they are never dropped.
func (s *Store) GetUnprocessed(limit int) ([]*Post, error) {
	rows, err := s.db.Query(`
		SELECT `+postColumns+` FROM posts
		WHERE status IN (?, ?)
		ORDER BY first_seen_at ASC
		LIMIT ?`, StatusPending, StatusProcessingFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := s.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetProcessedIDs returns ids of posts with terminal curation state, most
// recently processed first.
func (s *Store) GetProcessedIDs(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM posts
		WHERE status = ?
		ORDER BY processed_at DESC
		LIMIT ?`, StatusProcessed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateCuration writes the full curated record in one statement.
func (s *Store) UpdateCuration(id string, u CurationUpdate) error {
	categories, err := marshalStrings(u.Categories)
	if err != nil {
		return err
	}
	quoteChain, err := marshalStrings(u.QuoteChain)
	if err != nil {
		return err
	}
	processedAt := u.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		UPDATE posts SET
			status = ?,
			processed_at = ?,
			score = ?,
			categories = ?,
			tier = ?,
			display_text = ?,
			external_links_json = ?,
			quote_refs_json = ?,
			visuals_json = ?,
			enrichment_json = ?,
			quote_chain = CASE WHEN ? != '' THEN ? ELSE quote_chain END
		WHERE id = ?`,
		StatusProcessed, processedAt, u.Score, categories, u.Tier,
		u.DisplayText, u.ExternalLinksJSON, u.QuoteRefsJSON, u.VisualsJSON, u.EnrichmentJSON,
		quoteChain, quoteChain, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %s not found", id)
	}
	return nil
}

// MarkStatus sets the processing status for the given posts.
func (s *Store) MarkStatus(ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE posts SET status = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// MarkForReprocess resets posts to pending and clears curation state so the
// next run scores them from scratch.
func (s *Store) MarkForReprocess(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE posts SET
		status = ?, processed_at = NULL, score = NULL, categories = NULL, tier = NULL,
		display_text = NULL, external_links_json = NULL, quote_refs_json = NULL,
		visuals_json = NULL, enrichment_json = NULL
	WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, StatusPending)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// CountByStatus returns post counts keyed by processing status.
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountByTier returns processed-post counts keyed by signal tier.
func (s *Store) CountByTier() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT tier, COUNT(*) FROM posts WHERE tier IS NOT NULL AND tier != '' GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

// --- accounts ---

const accountColumns = `handle, display_name, tier, weight, category, muted,
	posts_seen, posts_kept, avg_score, last_high_signal_at, last_boosted_at,
	added_at, auto_promoted`

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	var a Account
	var displayName, category sql.NullString
	var lastHigh, lastBoosted sql.NullTime

	err := row.Scan(
		&a.Handle, &displayName, &a.Tier, &a.Weight, &category, &a.Muted,
		&a.PostsSeen, &a.PostsKept, &a.AvgScore, &lastHigh, &lastBoosted,
		&a.AddedAt, &a.AutoPromoted,
	)
	if err != nil {
		return nil, err
	}
	a.DisplayName = displayName.String
	a.Category = category.String
	if lastHigh.Valid {
		a.LastHighSignalAt = lastHigh.Time
	}
	if lastBoosted.Valid {
		a.LastBoostedAt = lastBoosted.Time
	}
	return &a, nil
}

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = sql.ErrNoRows

func (s *Store) GetAccount(handle string) (*Account, error) {
	handle = NormalizeHandle(handle)
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE handle = ?`, handle)
	return scanAccount(row)
}

// UpsertAccount writes the full account row, keyed by handle.
func (s *Store) UpsertAccount(a *Account) error {
	a.Handle = NormalizeHandle(a.Handle)
	if a.Handle == "" {
		return fmt.Errorf("account handle is required")
	}
	if a.AddedAt.IsZero() {
		a.AddedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO accounts (handle, display_name, tier, weight, category, muted,
			posts_seen, posts_kept, avg_score, last_high_signal_at, last_boosted_at,
			added_at, auto_promoted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			display_name = COALESCE(NULLIF(excluded.display_name, ''), accounts.display_name),
			tier = excluded.tier,
			weight = excluded.weight,
			category = COALESCE(NULLIF(excluded.category, ''), accounts.category),
			muted = excluded.muted,
			posts_seen = excluded.posts_seen,
			posts_kept = excluded.posts_kept,
			avg_score = excluded.avg_score,
			last_high_signal_at = excluded.last_high_signal_at,
			last_boosted_at = excluded.last_boosted_at,
			auto_promoted = excluded.auto_promoted`,
		a.Handle, a.DisplayName, a.Tier, a.Weight, a.Category, a.Muted,
		a.PostsSeen, a.PostsKept, a.AvgScore, nullTime(a.LastHighSignalAt), nullTime(a.LastBoostedAt),
		a.AddedAt, a.AutoPromoted,
	)
	return err
}

// ListAccounts returns accounts ordered by tier then weight. Muted accounts
// are excluded unless requested.
func (s *Store) ListAccounts(includeMuted bool) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeMuted {
		query += ` WHERE muted = 0`
	}
	query += ` ORDER BY tier ASC, weight DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// --- metadata ---

func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

// --- helpers ---

// NormalizeHandle strips a leading @ and lowercases the handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func marshalStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
