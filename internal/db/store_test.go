package db

import (
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "curator-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertPostReturningNew(t *testing.T) {
	store := newTestStore(t)

	p := &Post{ID: "1", AuthorHandle: "alice", Text: "hello"}
	isNew, err := store.UpsertPost(p)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !isNew {
		t.Error("Expected first upsert to be new")
	}

	isNew, err = store.UpsertPost(p)
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if isNew {
		t.Error("Expected second upsert to not be new")
	}
}

func TestUpsertPostPreservesCurationState(t *testing.T) {
	store := newTestStore(t)

	p := &Post{ID: "1", AuthorHandle: "alice", Text: "hello"}
	if _, err := store.UpsertPost(p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	err := store.UpdateCuration("1", CurationUpdate{
		Score:      8.5,
		Categories: []string{"macro"},
		Tier:       "high_signal",
	})
	if err != nil {
		t.Fatalf("UpdateCuration failed: %v", err)
	}

	// A later ingest of the same post must not clobber scoring.
	if _, err := store.UpsertPost(&Post{ID: "1", AuthorHandle: "alice", Text: "hello edited"}); err != nil {
		t.Fatalf("Re-upsert failed: %v", err)
	}

	got, err := store.GetPost("1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusProcessed {
		t.Errorf("Expected processed, got %s", got.Status)
	}
	if got.Score != 8.5 {
		t.Errorf("Expected score 8.5, got %v", got.Score)
	}
	if got.Tier != "high_signal" {
		t.Errorf("Expected high_signal, got %s", got.Tier)
	}
	if got.Text != "hello edited" {
		t.Errorf("Expected content refresh, got %q", got.Text)
	}
}

func TestGetUnprocessedIncludesFailed(t *testing.T) {
	store := newTestStore(t)

	for _, p := range []*Post{
		{ID: "1", AuthorHandle: "a", Text: "x", FirstSeenAt: time.Now().Add(-3 * time.Hour)},
		{ID: "2", AuthorHandle: "a", Text: "y", FirstSeenAt: time.Now().Add(-2 * time.Hour)},
		{ID: "3", AuthorHandle: "a", Text: "z", FirstSeenAt: time.Now().Add(-1 * time.Hour)},
	} {
		if _, err := store.UpsertPost(p); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if err := store.UpdateCuration("2", CurationUpdate{Score: 5, Tier: "news"}); err != nil {
		t.Fatalf("UpdateCuration failed: %v", err)
	}
	if err := store.MarkStatus([]string{"3"}, StatusProcessingFailed); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}

	pending, err := store.GetUnprocessed(10)
	if err != nil {
		t.Fatalf("GetUnprocessed failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending posts, got %d", len(pending))
	}
	if pending[0].ID != "1" || pending[1].ID != "3" {
		t.Errorf("Unexpected pending order: %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestGetProcessedIDsMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	for _, p := range []*Post{
		{ID: "1", AuthorHandle: "a", Text: "x"},
		{ID: "2", AuthorHandle: "a", Text: "y"},
		{ID: "3", AuthorHandle: "a", Text: "z"},
	} {
		if _, err := store.UpsertPost(p); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	base := time.Now().UTC()
	for i, id := range []string{"1", "2"} {
		err := store.UpdateCuration(id, CurationUpdate{
			Score:       5,
			Tier:        "news",
			ProcessedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("UpdateCuration failed: %v", err)
		}
	}

	ids, err := store.GetProcessedIDs(10)
	if err != nil {
		t.Fatalf("GetProcessedIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %d", len(ids))
	}
	if ids[0] != "2" || ids[1] != "1" {
		t.Errorf("Unexpected order: %v", ids)
	}
}

func TestMarkForReprocessClearsCuration(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.UpsertPost(&Post{ID: "1", AuthorHandle: "a", Text: "x"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.UpdateCuration("1", CurationUpdate{Score: 9, Tier: "high_signal", DisplayText: "x"}); err != nil {
		t.Fatalf("UpdateCuration failed: %v", err)
	}

	if err := store.MarkForReprocess([]string{"1"}); err != nil {
		t.Fatalf("MarkForReprocess failed: %v", err)
	}

	got, err := store.GetPost("1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Expected pending, got %s", got.Status)
	}
	if got.Score != 0 || got.Tier != "" || got.DisplayText != "" {
		t.Error("Expected curation state to be cleared")
	}

	pending, _ := store.GetUnprocessed(10)
	if len(pending) != 1 {
		t.Errorf("Expected reprocessed post to be pending again, got %d", len(pending))
	}
}

func TestUpdateCurationMissingPost(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpdateCuration("nope", CurationUpdate{Score: 5}); err == nil {
		t.Error("Expected error for missing post")
	}
}

func TestPostRoundTripDerivedFields(t *testing.T) {
	store := newTestStore(t)

	p := &Post{
		ID:                   "42",
		AuthorHandle:         "bob",
		Text:                 "rt content",
		IsRetweet:            true,
		OriginalAuthorHandle: "carol",
		QuoteID:              "41",
		QuoteChain:           []string{"41", "40"},
		HasMedia:             true,
		MediaJSON:            `[{"url":"https://img/1"}]`,
	}
	if _, err := store.UpsertPost(p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	err := store.UpdateCuration("42", CurationUpdate{
		Score:             6.5,
		Categories:        []string{"rates", "macro"},
		Tier:              "market_relevant",
		DisplayText:       "rt content",
		ExternalLinksJSON: `[{"url":"https://example.com"}]`,
		VisualsJSON:       `[{"url":"https://img/1","kind":"chart"}]`,
	})
	if err != nil {
		t.Fatalf("UpdateCuration failed: %v", err)
	}

	got, err := store.GetPost("42")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsRetweet || got.OriginalAuthorHandle != "carol" {
		t.Error("Retweet provenance lost")
	}
	if len(got.QuoteChain) != 2 || got.QuoteChain[0] != "41" {
		t.Errorf("Quote chain lost: %v", got.QuoteChain)
	}
	if len(got.Categories) != 2 {
		t.Errorf("Categories lost: %v", got.Categories)
	}
	if got.VisualsJSON == "" || got.ExternalLinksJSON == "" {
		t.Error("Derived JSON fields lost")
	}
	if got.ProcessedAt.IsZero() {
		t.Error("Expected processed_at to be set")
	}
}

func TestAccountUpsertAndNormalizedHandle(t *testing.T) {
	store := newTestStore(t)

	a := &Account{Handle: "@Alice", Tier: 2, Weight: 50}
	if err := store.UpsertAccount(a); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetAccount("alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Handle != "alice" {
		t.Errorf("Expected normalized handle, got %s", got.Handle)
	}
	if got.Tier != 2 || got.Weight != 50 {
		t.Errorf("Unexpected account state: tier=%d weight=%v", got.Tier, got.Weight)
	}
}

func TestListAccountsExcludesMuted(t *testing.T) {
	store := newTestStore(t)

	for _, a := range []*Account{
		{Handle: "loud", Tier: 1, Weight: 80},
		{Handle: "quiet", Tier: 2, Weight: 60, Muted: true},
	} {
		if err := store.UpsertAccount(a); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	visible, err := store.ListAccounts(false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(visible) != 1 || visible[0].Handle != "loud" {
		t.Errorf("Expected only unmuted accounts, got %d", len(visible))
	}

	all, err := store.ListAccounts(true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 accounts including muted, got %d", len(all))
	}
}

func TestCountByStatusAndTier(t *testing.T) {
	store := newTestStore(t)

	for _, p := range []*Post{
		{ID: "1", AuthorHandle: "a", Text: "x"},
		{ID: "2", AuthorHandle: "a", Text: "y"},
		{ID: "3", AuthorHandle: "a", Text: "z"},
	} {
		if _, err := store.UpsertPost(p); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if err := store.UpdateCuration("1", CurationUpdate{Score: 9, Tier: "high_signal"}); err != nil {
		t.Fatalf("UpdateCuration failed: %v", err)
	}
	if err := store.MarkStatus([]string{"2"}, StatusInvalid); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}

	byStatus, err := store.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if byStatus[StatusProcessed] != 1 || byStatus[StatusInvalid] != 1 || byStatus[StatusPending] != 1 {
		t.Errorf("Unexpected status counts: %v", byStatus)
	}

	byTier, err := store.CountByTier()
	if err != nil {
		t.Fatalf("CountByTier failed: %v", err)
	}
	if byTier["high_signal"] != 1 {
		t.Errorf("Unexpected tier counts: %v", byTier)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetMetadata("last_run_at", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.GetMetadata("last_run_at")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "2026-01-01T00:00:00Z" {
		t.Errorf("Unexpected metadata value: %s", got)
	}

	missing, err := store.GetMetadata("nope")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if missing != "" {
		t.Errorf("Expected empty value for missing key, got %s", missing)
	}
}
