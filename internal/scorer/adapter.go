package scorer

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AdapterConfig bounds the cost of external scoring calls.
type AdapterConfig struct {
	BatchSize           int
	Concurrency         int
	HighSignalThreshold float64
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 15
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.HighSignalThreshold == 0 {
		c.HighSignalThreshold = 7
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 8 * time.Second
	}
	return c
}

// Adapter submits posts to a Scorer in bounded batches with a bounded worker
// pool. A batch that fails gets one retry with exponential backoff; a batch
// that fails twice is handed back so its posts can be requeued, never dropped.
type Adapter struct {
	scorer Scorer
	cfg    AdapterConfig
	retry  retrypolicy.RetryPolicy[[]TriageResult]
	log    *logrus.Logger
}

func NewAdapter(s Scorer, cfg AdapterConfig, log *logrus.Logger) *Adapter {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.New()
	}
	retry := retrypolicy.NewBuilder[[]TriageResult]().
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithJitterFactor(0.25).
		WithMaxRetries(1).
		Build()
	return &Adapter{scorer: s, cfg: cfg, retry: retry, log: log}
}

// Triage scores items in batches. It returns results for the posts that
// scored and the items whose batch failed twice. A non-nil error means the
// run was cancelled; partial results are still returned.
func (a *Adapter) Triage(ctx context.Context, items []Item) ([]TriageResult, []Item, error) {
	if len(items) == 0 {
		return nil, nil, nil
	}

	batches := splitBatches(items, a.cfg.BatchSize)

	var mu sync.Mutex
	var results []TriageResult
	var failed []Item

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				failed = append(failed, batch...)
				mu.Unlock()
				return nil
			}

			batchResults, err := failsafe.With(a.retry).WithContext(gctx).Get(func() ([]TriageResult, error) {
				return a.scorer.TriageBatch(gctx, batch)
			})
			if err != nil {
				a.log.WithFields(logrus.Fields{
					"batch": i + 1,
					"size":  len(batch),
				}).WithError(err).Warn("triage batch failed after retry")
				mu.Lock()
				failed = append(failed, batch...)
				mu.Unlock()
				return nil
			}

			scored := make(map[string]bool, len(batchResults))
			for _, r := range batchResults {
				scored[r.PostID] = true
			}

			mu.Lock()
			results = append(results, batchResults...)
			// Items the model skipped are requeued alongside failed batches.
			for _, item := range batch {
				if !scored[item.ID] {
					failed = append(failed, item)
				}
			}
			mu.Unlock()

			a.log.WithFields(logrus.Fields{
				"batch":  i + 1,
				"total":  len(batches),
				"scored": len(batchResults),
			}).Debug("triage batch complete")
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, failed, err
	}
	return results, failed, nil
}

// ShouldEnrich reports whether a score clears the high-signal gate for the
// deeper analysis pass.
func (a *Adapter) ShouldEnrich(score float64) bool {
	return score >= a.cfg.HighSignalThreshold
}

// Enrich runs the deep analysis pass. Failures degrade gracefully: the caller
// keeps the triage result either way.
func (a *Adapter) Enrich(ctx context.Context, in EnrichInput) (EnrichmentResult, error) {
	return a.scorer.Enrich(ctx, in)
}

func splitBatches(items []Item, size int) [][]Item {
	var batches [][]Item
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
