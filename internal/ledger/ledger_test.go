package ledger

import (
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/curator/internal/db"
)

func newTestLedger(t *testing.T, cfg Config) (*Ledger, *db.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "curator-ledger-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := db.NewStore(tmpDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return New(store, cfg, log), store
}

func seedAccount(t *testing.T, store *db.Store, a *db.Account) {
	t.Helper()
	require.NoError(t, store.UpsertAccount(a))
}

func TestEnsureCreatesDiscoveredAccount(t *testing.T) {
	l, _ := newTestLedger(t, Config{})

	a, err := l.Ensure("@NewVoice", "New Voice")
	require.NoError(t, err)
	assert.Equal(t, "newvoice", a.Handle)
	assert.Equal(t, TierDiscovered, a.Tier)
	assert.Equal(t, 50.0, a.Weight)
	assert.Equal(t, "New Voice", a.DisplayName)
}

func TestBoostDefaultIncrementAndCap(t *testing.T) {
	l, store := newTestLedger(t, Config{BoostIncrement: 5})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 2, Weight: 70})

	a, err := l.Boost("a", 0)
	require.NoError(t, err)
	assert.InDelta(t, 75, a.Weight, 1e-9)
	assert.False(t, a.LastBoostedAt.IsZero())

	seedAccount(t, store, &db.Account{Handle: "b", Tier: 2, Weight: 98})
	b, err := l.Boost("b", 10)
	require.NoError(t, err)
	assert.InDelta(t, 100, b.Weight, 1e-9)
}

func TestDecaySingleAndRepeated(t *testing.T) {
	l, store := newTestLedger(t, Config{DecayRate: 0.05})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 2, Weight: 100})

	a, err := l.Decay("a")
	require.NoError(t, err)
	assert.InDelta(t, 95, a.Weight, 1e-9)

	// Decay does not deduplicate per period: a second call compounds.
	a, err = l.Decay("a")
	require.NoError(t, err)
	assert.InDelta(t, 90.25, a.Weight, 1e-9)
}

func TestBoostThenDecayOrderSensitive(t *testing.T) {
	l, store := newTestLedger(t, Config{DecayRate: 0.05, BoostIncrement: 5})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 2, Weight: 70})

	_, err := l.Boost("a", 5)
	require.NoError(t, err)
	a, err := l.Decay("a")
	require.NoError(t, err)

	// (70 + 5) * (1 - 0.05)
	assert.InDelta(t, 71.25, a.Weight, 1e-9)
}

func TestAutoPromoteAtExactThreshold(t *testing.T) {
	l, store := newTestLedger(t, Config{
		AutoPromoteThreshold: 75,
		HighSignalThreshold:  7,
		HighSignalBonus:      1,
	})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 2, Weight: 74})

	a, promoted, err := l.RecordScore("a", 9)
	require.NoError(t, err)
	assert.InDelta(t, 75, a.Weight, 1e-9)
	assert.Equal(t, TierCore, a.Tier)
	assert.True(t, promoted)
	assert.True(t, a.AutoPromoted)

	// Re-running the update does not promote again: already tier 1.
	a, promoted, err = l.RecordScore("a", 9)
	require.NoError(t, err)
	assert.False(t, promoted)
	assert.Equal(t, TierCore, a.Tier)
}

func TestAutoPromoteOneTierAtATime(t *testing.T) {
	l, store := newTestLedger(t, Config{AutoPromoteThreshold: 75, HighSignalThreshold: 7, HighSignalBonus: 1})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 3, Weight: 80})

	a, promoted, err := l.RecordScore("a", 8)
	require.NoError(t, err)
	assert.True(t, promoted)
	assert.Equal(t, TierFollowed, a.Tier)

	a, promoted, err = l.RecordScore("a", 8)
	require.NoError(t, err)
	assert.True(t, promoted)
	assert.Equal(t, TierCore, a.Tier)
}

func TestRecordScoreStats(t *testing.T) {
	l, store := newTestLedger(t, Config{HighSignalThreshold: 7})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 2, Weight: 50})

	_, _, err := l.RecordScore("a", 8)
	require.NoError(t, err)
	_, _, err = l.RecordScore("a", 4)
	require.NoError(t, err)
	a, _, err := l.RecordScore("a", 6)
	require.NoError(t, err)

	assert.Equal(t, 3, a.PostsSeen)
	assert.Equal(t, 2, a.PostsKept) // scores >= 5
	assert.InDelta(t, 6.0, a.AvgScore, 1e-9)
	assert.False(t, a.LastHighSignalAt.IsZero())
}

func TestRecordScoreCreatesUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t, Config{})

	a, _, err := l.RecordScore("stranger", 6)
	require.NoError(t, err)
	assert.Equal(t, TierDiscovered, a.Tier)
	assert.Equal(t, 1, a.PostsSeen)
}

func TestMutePreservesTierAndWeight(t *testing.T) {
	l, store := newTestLedger(t, Config{})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 1, Weight: 88})

	a, err := l.Mute("a")
	require.NoError(t, err)
	assert.True(t, a.Muted)
	assert.Equal(t, 1, a.Tier)
	assert.InDelta(t, 88, a.Weight, 1e-9)

	a, err = l.Unmute("a")
	require.NoError(t, err)
	assert.False(t, a.Muted)
	assert.Equal(t, 1, a.Tier)
}

func TestMutedExcludedFromPrioritized(t *testing.T) {
	l, store := newTestLedger(t, Config{})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 1, Weight: 80})
	seedAccount(t, store, &db.Account{Handle: "b", Tier: 1, Weight: 90})

	_, err := l.Mute("b")
	require.NoError(t, err)

	accounts, err := l.Prioritized()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a", accounts[0].Handle)
}

func TestPromoteValidation(t *testing.T) {
	l, store := newTestLedger(t, Config{})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 3, Weight: 50})

	_, err := l.Promote("a", 0)
	assert.Error(t, err)
	_, err = l.Promote("a", 4)
	assert.Error(t, err)

	a, err := l.Promote("a", 1)
	require.NoError(t, err)
	assert.Equal(t, TierCore, a.Tier)
}

func TestDecayAllSkipsRecentHighSignal(t *testing.T) {
	l, store := newTestLedger(t, Config{DecayRate: 0.05, HighSignalThreshold: 7})
	seedAccount(t, store, &db.Account{Handle: "stale", Tier: 2, Weight: 100})
	seedAccount(t, store, &db.Account{Handle: "fresh", Tier: 2, Weight: 100})

	// fresh just produced a high-signal post
	_, _, err := l.RecordScore("fresh", 9)
	require.NoError(t, err)

	n, err := l.DecayAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, _ := l.Get("stale")
	assert.InDelta(t, 95, stale.Weight, 1e-9)
}

func TestConcurrentRecordScoreSameAccount(t *testing.T) {
	l, store := newTestLedger(t, Config{HighSignalThreshold: 7})
	seedAccount(t, store, &db.Account{Handle: "a", Tier: 2, Weight: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := l.RecordScore("a", 6)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := l.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 20, a.PostsSeen)
	assert.InDelta(t, 6.0, a.AvgScore, 1e-9)
}
