package rss

import (
	"context"
	"time"

	"go.uber.org/zap"

	"greader/internal/database"
)

// Options carries the engine's tunables.
type Options struct {
	FetchTimeout     time.Duration
	MaxResponseBytes int64
	RefreshInterval  time.Duration
	SweepWorkers     int
	RateLimitWindow  time.Duration
	RateLimitMax     int
}

// Engine ties the pipeline together: rate limiter in front, then
// fetch, parse, reconcile. The sweep drives the same pipeline per feed.
type Engine struct {
	store       database.Store
	fetcher     *Fetcher
	parser      *Parser
	reconciler  *Reconciler
	limiter     *RateLimiter
	staleAfter  time.Duration
	workers     int
	unitTimeout time.Duration
	log         *zap.SugaredLogger
}

func NewEngine(store database.Store, opts Options, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:       store,
		fetcher:     NewFetcher(opts.FetchTimeout, opts.MaxResponseBytes),
		parser:      NewParser(),
		reconciler:  NewReconciler(store),
		limiter:     NewRateLimiter(NewMemoryCounters(), opts.RateLimitWindow, opts.RateLimitMax),
		staleAfter:  opts.RefreshInterval,
		workers:     opts.SweepWorkers,
		unitTimeout: opts.FetchTimeout,
		log:         log,
	}
}

// SetTestingMode forwards to the fetcher's loopback escape hatch, for tests
// that serve feeds from httptest servers.
func (e *Engine) SetTestingMode(enabled bool) {
	e.fetcher.SetTestingMode(enabled)
}

// Subscribe fetches feedURL, reconciles it under its post-redirect URL and,
// when sub is non-nil, attaches the subscription. The rate limiter gates
// identity before any network I/O; a denial has no side effects.
func (e *Engine) Subscribe(ctx context.Context, identity, feedURL string, sub *Subscriber) (*ReconcileResult, error) {
	if !e.limiter.Allow(identity) {
		return nil, &RateLimitError{Identity: identity}
	}

	fetched, err := e.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	parsed, err := e.parser.Parse(fetched.Body, fetched.FinalURL)
	if err != nil {
		return nil, err
	}
	res, err := e.reconciler.Reconcile(ctx, parsed, fetched.FinalURL, sub)
	if err != nil {
		return nil, err
	}

	e.log.Infow("feed reconciled", "url", fetched.FinalURL, "new_articles", res.ArticleCount)
	return res, nil
}

// RefreshFeed re-fetches a known feed by ID. The stored URL stays the
// canonical key for the refresh, so a feed that starts redirecting elsewhere
// cannot silently fork into a second row.
func (e *Engine) RefreshFeed(ctx context.Context, identity, feedID string) (*ReconcileResult, error) {
	if !e.limiter.Allow(identity) {
		return nil, &RateLimitError{Identity: identity}
	}

	feed, err := e.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, &PersistenceError{Op: "load feed " + feedID, Err: err}
	}
	if feed == nil {
		return nil, &ValidationError{Reason: "feed not found"}
	}

	fetched, err := e.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, err
	}
	parsed, err := e.parser.Parse(fetched.Body, feed.URL)
	if err != nil {
		return nil, err
	}
	return e.reconciler.Reconcile(ctx, parsed, feed.URL, nil)
}
