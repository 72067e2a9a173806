package scorer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Tier
	}{
		{0, TierNoise},
		{3.99, TierNoise},
		{4, TierNews},
		{5.99, TierNews},
		{6, TierMarketRelevant},
		{7.99, TierMarketRelevant},
		{8, TierHighSignal},
		{10, TierHighSignal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TierForScore(c.score), "score=%v", c.score)
	}
}

func TestParseTriageResponse(t *testing.T) {
	text := "```json\n[{\"id\": \"1\", \"score\": 8.5, \"categories\": [\"macro\"], \"summary\": \"CPI print\", \"tickers\": [\"SPY\"]}]\n```"
	results, err := parseTriageResponse(text)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].PostID)
	assert.Equal(t, 8.5, results[0].Score)
	assert.Equal(t, []string{"macro"}, results[0].Categories)
}

func TestParseTriageResponseSingleObject(t *testing.T) {
	results, err := parseTriageResponse(`{"id": "7", "score": 3, "category": "noise"}`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"noise"}, results[0].Categories)
}

func TestParseTriageResponseClampsScore(t *testing.T) {
	results, err := parseTriageResponse(`[{"id": "1", "score": 14}, {"id": "2", "score": -2}]`)
	require.NoError(t, err)
	assert.Equal(t, 10.0, results[0].Score)
	assert.Equal(t, 0.0, results[1].Score)
}

func TestParseTriageResponseGarbage(t *testing.T) {
	_, err := parseTriageResponse("sorry, I cannot help with that")
	assert.Error(t, err)
}

// fakeScorer scripts batch outcomes for adapter tests.
type fakeScorer struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many leading calls
}

func (f *fakeScorer) TriageBatch(_ context.Context, items []Item) ([]TriageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("scorer unavailable")
	}
	results := make([]TriageResult, 0, len(items))
	for _, item := range items {
		results = append(results, TriageResult{PostID: item.ID, Score: 5})
	}
	return results, nil
}

func (f *fakeScorer) Enrich(context.Context, EnrichInput) (EnrichmentResult, error) {
	return EnrichmentResult{Insight: "ok"}, nil
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{ID: string(rune('a' + i)), Handle: "h", Text: "t"}
	}
	return items
}

func adapterCfg() AdapterConfig {
	return AdapterConfig{
		BatchSize:      2,
		Concurrency:    1,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}
}

func TestAdapterSplitsBatches(t *testing.T) {
	fake := &fakeScorer{}
	a := NewAdapter(fake, adapterCfg(), nil)

	results, failed, err := a.Triage(context.Background(), makeItems(5))
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Len(t, results, 5)
	assert.Equal(t, 3, fake.calls) // ceil(5/2)
}

func TestAdapterRetriesOnceThenSucceeds(t *testing.T) {
	fake := &fakeScorer{failures: 1}
	a := NewAdapter(fake, adapterCfg(), nil)

	results, failed, err := a.Triage(context.Background(), makeItems(2))
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, fake.calls)
}

func TestAdapterMarksBatchFailedAfterTwoFailures(t *testing.T) {
	// First batch fails twice (initial + one retry); second batch succeeds.
	fake := &fakeScorer{failures: 2}
	a := NewAdapter(fake, adapterCfg(), nil)

	results, failed, err := a.Triage(context.Background(), makeItems(4))
	require.NoError(t, err)
	assert.Len(t, failed, 2)
	assert.Len(t, results, 2)
}

func TestAdapterRequeuesItemsMissingFromResponse(t *testing.T) {
	skipper := scorerFunc(func(_ context.Context, items []Item) ([]TriageResult, error) {
		// Score only the first item of each batch.
		return []TriageResult{{PostID: items[0].ID, Score: 6}}, nil
	})
	a := NewAdapter(skipper, adapterCfg(), nil)

	results, failed, err := a.Triage(context.Background(), makeItems(2))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ID)
}

func TestAdapterEmptyInput(t *testing.T) {
	a := NewAdapter(&fakeScorer{}, adapterCfg(), nil)
	results, failed, err := a.Triage(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, failed)
}

func TestShouldEnrichThreshold(t *testing.T) {
	a := NewAdapter(&fakeScorer{}, AdapterConfig{HighSignalThreshold: 7}, nil)
	assert.True(t, a.ShouldEnrich(7))
	assert.True(t, a.ShouldEnrich(9.5))
	assert.False(t, a.ShouldEnrich(6.99))
}

// scorerFunc adapts a function to the Scorer interface.
type scorerFunc func(ctx context.Context, items []Item) ([]TriageResult, error)

func (f scorerFunc) TriageBatch(ctx context.Context, items []Item) ([]TriageResult, error) {
	return f(ctx, items)
}

func (f scorerFunc) Enrich(context.Context, EnrichInput) (EnrichmentResult, error) {
	return EnrichmentResult{}, nil
}
