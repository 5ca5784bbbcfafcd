package rss

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepResult is one feed's outcome within a sweep.
type SweepResult struct {
	FeedID       string `json:"feed_id"`
	Success      bool   `json:"success"`
	ArticleCount int    `json:"article_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Sweep refreshes every feed whose last fetch is null or older than the
// refresh interval. Feeds are processed by a bounded worker pool; each unit
// carries its own fetch timeout, and one feed's failure never aborts the
// others — it becomes that feed's result entry.
func (e *Engine) Sweep(ctx context.Context) ([]SweepResult, error) {
	cutoff := time.Now().Add(-e.staleAfter)
	feeds, err := e.store.StaleFeeds(ctx, cutoff)
	if err != nil {
		return nil, &PersistenceError{Op: "select stale feeds", Err: err}
	}
	if len(feeds) == 0 {
		return []SweepResult{}, nil
	}

	e.log.Infow("sweep started", "feeds", len(feeds), "workers", e.workers)

	results := make([]SweepResult, len(feeds))
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, feed := range feeds {
		i, feed := i, feed
		g.Go(func() error {
			// Each unit gets its own deadline so a stalled fetch or store
			// write cannot pin a worker past the per-request budget.
			unitCtx, cancel := context.WithTimeout(ctx, e.unitTimeout)
			defer cancel()

			res := SweepResult{FeedID: feed.ID}
			fetched, err := e.fetcher.Fetch(unitCtx, feed.URL)
			if err != nil {
				res.Error = err.Error()
				results[i] = res
				return nil
			}
			parsedFeed, err := e.parser.Parse(fetched.Body, feed.URL)
			if err != nil {
				res.Error = err.Error()
				results[i] = res
				return nil
			}
			rec, err := e.reconciler.Reconcile(unitCtx, parsedFeed, feed.URL, nil)
			if err != nil {
				res.Error = err.Error()
				results[i] = res
				return nil
			}
			res.Success = true
			res.ArticleCount = rec.ArticleCount
			results[i] = res
			return nil
		})
	}
	// Failures are captured per feed above; a worker never returns an error.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
			e.log.Warnw("feed refresh failed", "feed_id", r.FeedID, "error", r.Error)
		}
	}
	e.log.Infow("sweep finished", "feeds", len(feeds), "failed", failures)

	return results, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := e.Sweep(ctx); err != nil {
		e.log.Errorw("sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.log.Errorw("sweep failed", "error", err)
			}
		}
	}
}
