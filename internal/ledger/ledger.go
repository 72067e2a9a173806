// Package ledger maintains the per-source weight/tier feedback loop. The
// backing store is passed in explicitly; updates to one account are
// serialized through a per-handle lock while different accounts proceed
// independently.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/user/curator/internal/db"
)

// Account tiers: fetch/attention priority of a tracked source.
const (
	TierCore       = 1
	TierFollowed   = 2
	TierDiscovered = 3
)

// Transition reasons recorded in the audit log.
const (
	ReasonManual      = "manual"
	ReasonAutoPromote = "auto_promote"
	ReasonDecay       = "decay"
	ReasonBoost       = "boost"
)

// weightCap keeps boosts from growing weights without bound.
const weightCap = 100.0

// Store is the account table the ledger operates on.
type Store interface {
	GetAccount(handle string) (*db.Account, error)
	UpsertAccount(a *db.Account) error
	ListAccounts(includeMuted bool) ([]*db.Account, error)
}

// Config holds the lifecycle policy knobs.
type Config struct {
	DecayRate            float64
	BoostIncrement       float64
	AutoPromoteThreshold float64
	HighSignalThreshold  float64

	// HighSignalBonus is the weight contribution of one high-signal post.
	HighSignalBonus float64
}

func (c Config) withDefaults() Config {
	if c.DecayRate <= 0 {
		c.DecayRate = 0.05
	}
	if c.BoostIncrement <= 0 {
		c.BoostIncrement = 5
	}
	if c.AutoPromoteThreshold <= 0 {
		c.AutoPromoteThreshold = 75
	}
	if c.HighSignalThreshold <= 0 {
		c.HighSignalThreshold = 7
	}
	if c.HighSignalBonus <= 0 {
		c.HighSignalBonus = 1
	}
	return c
}

type Ledger struct {
	store Store
	cfg   Config
	log   *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store, cfg Config, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.New()
	}
	return &Ledger{
		store: store,
		cfg:   cfg.withDefaults(),
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// handleLock returns the mutex serializing updates for one handle.
func (l *Ledger) handleLock(handle string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[handle]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[handle] = lock
	}
	return lock
}

// withAccount runs fn against the current account state under the handle
// lock and persists the result.
func (l *Ledger) withAccount(handle string, fn func(a *db.Account) error) (*db.Account, error) {
	handle = db.NormalizeHandle(handle)
	if handle == "" {
		return nil, fmt.Errorf("handle is required")
	}

	lock := l.handleLock(handle)
	lock.Lock()
	defer lock.Unlock()

	a, err := l.store.GetAccount(handle)
	if err == db.ErrNotFound {
		a = &db.Account{Handle: handle, Tier: TierDiscovered, Weight: 50, AddedAt: time.Now().UTC()}
	} else if err != nil {
		return nil, fmt.Errorf("load account %s: %w", handle, err)
	}

	if err := fn(a); err != nil {
		return nil, err
	}
	if err := l.store.UpsertAccount(a); err != nil {
		return nil, fmt.Errorf("save account %s: %w", handle, err)
	}
	return a, nil
}

func (l *Ledger) audit(handle, reason, event string, fields logrus.Fields) {
	entry := l.log.WithFields(logrus.Fields{"handle": handle, "reason": reason})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info(event)
}

// Ensure creates the account on first sighting, tier 3 (discovered).
func (l *Ledger) Ensure(handle, displayName string) (*db.Account, error) {
	return l.withAccount(handle, func(a *db.Account) error {
		if displayName != "" && a.DisplayName == "" {
			a.DisplayName = displayName
		}
		return nil
	})
}

// Get returns current account state synchronously.
func (l *Ledger) Get(handle string) (*db.Account, error) {
	return l.store.GetAccount(db.NormalizeHandle(handle))
}

// Boost raises an account's weight by the configured increment (or amount,
// when positive), capped to avoid runaway growth.
func (l *Ledger) Boost(handle string, amount float64) (*db.Account, error) {
	if amount <= 0 {
		amount = l.cfg.BoostIncrement
	}
	return l.withAccount(handle, func(a *db.Account) error {
		before := a.Weight
		a.Weight = min(weightCap, a.Weight+amount)
		a.LastBoostedAt = time.Now().UTC()
		l.audit(a.Handle, ReasonBoost, "account boosted", logrus.Fields{
			"weight_before": before,
			"weight_after":  a.Weight,
		})
		l.maybeAutoPromote(a)
		return nil
	})
}

// Decay applies one decay period to a single account:
// weight = max(0, weight * (1 - rate)). The ledger does not deduplicate
// repeated calls within a period; that is the caller's schedule to keep.
func (l *Ledger) Decay(handle string) (*db.Account, error) {
	return l.withAccount(handle, func(a *db.Account) error {
		before := a.Weight
		a.Weight = max(0, a.Weight*(1-l.cfg.DecayRate))
		l.audit(a.Handle, ReasonDecay, "account decayed", logrus.Fields{
			"weight_before": before,
			"weight_after":  a.Weight,
		})
		return nil
	})
}

// DecayAll applies one decay period across all accounts, skipping those with
// a high-signal post in the last week. Returns the number decayed.
func (l *Ledger) DecayAll() (int, error) {
	accounts, err := l.store.ListAccounts(true)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	decayed := 0
	for _, a := range accounts {
		if !a.LastHighSignalAt.IsZero() && a.LastHighSignalAt.After(cutoff) {
			continue
		}
		if _, err := l.Decay(a.Handle); err != nil {
			return decayed, err
		}
		decayed++
	}
	return decayed, nil
}

// Promote moves an account to a higher-priority tier (manual).
func (l *Ledger) Promote(handle string, tier int) (*db.Account, error) {
	if tier < TierCore || tier > TierDiscovered {
		return nil, fmt.Errorf("invalid tier %d", tier)
	}
	return l.withAccount(handle, func(a *db.Account) error {
		before := a.Tier
		a.Tier = tier
		l.audit(a.Handle, ReasonManual, "account tier changed", logrus.Fields{
			"tier_before": before,
			"tier_after":  a.Tier,
		})
		return nil
	})
}

// Demote moves an account to a lower-priority tier (manual).
func (l *Ledger) Demote(handle string, tier int) (*db.Account, error) {
	return l.Promote(handle, tier)
}

// Mute flags an account out of fetch/triage prioritization. Tier and weight
// are untouched; the account resumes where it left off on unmute.
func (l *Ledger) Mute(handle string) (*db.Account, error) {
	return l.withAccount(handle, func(a *db.Account) error {
		a.Muted = true
		l.audit(a.Handle, ReasonManual, "account muted", nil)
		return nil
	})
}

func (l *Ledger) Unmute(handle string) (*db.Account, error) {
	return l.withAccount(handle, func(a *db.Account) error {
		a.Muted = false
		l.audit(a.Handle, ReasonManual, "account unmuted", nil)
		return nil
	})
}

// RecordScore folds one triage outcome into the account's stats: running
// average, kept count, high-signal weight contribution, and auto-promotion
// when the weight crosses the threshold. The second return reports whether
// this update promoted the account.
func (l *Ledger) RecordScore(handle string, score float64) (*db.Account, bool, error) {
	promoted := false
	a, err := l.withAccount(handle, func(a *db.Account) error {
		a.AvgScore = (a.AvgScore*float64(a.PostsSeen) + score) / float64(a.PostsSeen+1)
		a.PostsSeen++
		if score >= 5 {
			a.PostsKept++
		}
		if score >= l.cfg.HighSignalThreshold {
			a.LastHighSignalAt = time.Now().UTC()
			a.Weight = min(weightCap, a.Weight+l.cfg.HighSignalBonus)
		}
		promoted = l.maybeAutoPromote(a)
		return nil
	})
	return a, promoted, err
}

// maybeAutoPromote lifts the account one tier when its weight has crossed
// the threshold. Tier-1 accounts are left alone, so repeated calls with the
// same state promote at most once.
func (l *Ledger) maybeAutoPromote(a *db.Account) bool {
	if a.Weight < l.cfg.AutoPromoteThreshold || a.Tier <= TierCore {
		return false
	}
	before := a.Tier
	a.Tier--
	a.AutoPromoted = true
	l.audit(a.Handle, ReasonAutoPromote, "account auto-promoted", logrus.Fields{
		"tier_before": before,
		"tier_after":  a.Tier,
		"weight":      a.Weight,
	})
	return true
}

// Prioritized returns unmuted accounts in fetch-priority order.
func (l *Ledger) Prioritized() ([]*db.Account, error) {
	return l.store.ListAccounts(false)
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
